package meshcore

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/meshcore/agent"
	"github.com/hupe1980/meshcore/config"
	"github.com/hupe1980/meshcore/core"
	"github.com/hupe1980/meshcore/internal/testutil"
	"github.com/hupe1980/meshcore/model"
	"github.com/hupe1980/meshcore/router"
	"github.com/hupe1980/meshcore/thread"
)

type echoOptions struct {
	Prompt string `json:"prompt"`
}

type echoAgent = agent.Agent[echoOptions, *thread.Thread, string]

func echoFactory() agent.Factory {
	return agent.NewFactory[echoOptions, *thread.Thread, string](agent.HookFuncs[echoOptions, *thread.Thread, string]{
		InitializeFunc: func(ctx context.Context, a *echoAgent, opts echoOptions) (*thread.Thread, error) {
			t, err := a.NewThread(ctx)
			if err != nil {
				return nil, err
			}
			a.Notify("echo.start", "prompt", opts.Prompt)
			return t, t.AppendUserMessage(a.ID(), opts.Prompt)
		},
		StepFunc: func(ctx context.Context, a *echoAgent, t *thread.Thread) (*thread.Thread, error) {
			next, err := a.Advance(ctx, t)
			if err != nil {
				return t, err
			}
			return next, a.Stop()
		},
		FinalizeFunc: func(_ context.Context, _ *echoAgent, t *thread.Thread) (string, error) {
			last, _ := t.Last()
			return last.Text, nil
		},
	}, func(c *agent.Config) {
		c.Name = "echo"
		c.Model = testutil.StubMeta
	})
}

type waitOptions struct{}

func waitFactory() agent.Factory {
	type waitAgent = agent.Agent[waitOptions, int, int]
	return agent.NewFactory[waitOptions, int, int](agent.HookFuncs[waitOptions, int, int]{
		InitializeFunc: func(context.Context, *waitAgent, waitOptions) (int, error) { return 0, nil },
		StepFunc: func(ctx context.Context, _ *waitAgent, n int) (int, error) {
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Millisecond):
			}
			return n + 1, nil
		},
		FinalizeFunc: func(_ context.Context, _ *waitAgent, n int) (int, error) { return n, nil },
	})
}

func newTestRuntime(t *testing.T, mock *model.MockClient) *Runtime {
	t.Helper()
	r := router.New(func(o *router.Options) { o.Retry.MaxAttempts = 1 })
	r.Register(testutil.StubMeta.Provider, mock, router.Limit{})

	rt := New(func(o *Options) { o.Router = r })
	require.NoError(t, rt.Register("test", "echo", echoFactory()))
	require.NoError(t, rt.Register("test", "wait", waitFactory()))
	return rt
}

func TestSpawn_Echo(t *testing.T) {
	mock := model.NewMockClient(testutil.StubMeta.Provider).
		AddText("done", core.Usage{PromptTokens: 100, CompletionTokens: 50})
	rt := newTestRuntime(t, mock)

	resp := rt.Spawn(context.Background(), SpawnRequest{
		Type:    "test/echo",
		Options: json.RawMessage(`{"prompt":"say done"}`),
	})

	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "done", resp.Result)
	require.NotNil(t, resp.Session)
	assert.True(t, resp.Session.Ended)
	assert.Equal(t, 1, resp.Session.Exchanges)
	require.Len(t, resp.Session.Ledger, 1)
	assert.Equal(t, 150, resp.Session.TokensPerModel[testutil.StubMeta.ID])
	// 100 * 1/1e6 + 50 * 2/1e6
	assert.Equal(t, "0.0002", resp.Session.Cost.String())

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, testutil.StubMeta.ID, reqs[0].Model)

	assert.Contains(t, resp.Trace, "echo.start prompt=say done")
	assert.Equal(t, 1, strings.Count(resp.Trace, "\n"))
}

func TestSpawn_UnknownType(t *testing.T) {
	rt := newTestRuntime(t, model.NewMockClient(testutil.StubMeta.Provider))

	resp := rt.Spawn(context.Background(), SpawnRequest{Type: "test/missing"})
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
	assert.Nil(t, resp.Session)
	assert.Empty(t, rt.Status().Sessions)
}

func TestSpawn_BadOptions(t *testing.T) {
	rt := newTestRuntime(t, model.NewMockClient(testutil.StubMeta.Provider))

	resp := rt.Spawn(context.Background(), SpawnRequest{Type: "echo", Options: json.RawMessage(`[1,2]`)})
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Session)
	assert.True(t, resp.Session.Ended)
	assert.NotEmpty(t, resp.Session.Error)
}

func TestSpawn_TimeoutAborts(t *testing.T) {
	rt := newTestRuntime(t, model.NewMockClient(testutil.StubMeta.Provider))

	resp := rt.Spawn(context.Background(), SpawnRequest{Type: "test/wait", Timeout: 0.05})
	require.NotNil(t, resp.Session)
	assert.True(t, resp.Session.Ended)

	sess, err := rt.opts.Store.Get(resp.Session.ID)
	require.NoError(t, err)
	assert.True(t, sess.Aborted())
}

func TestStatus(t *testing.T) {
	mock := model.NewMockClient(testutil.StubMeta.Provider).
		AddText("one", core.Usage{PromptTokens: 1, CompletionTokens: 1}).
		AddText("two", core.Usage{PromptTokens: 2, CompletionTokens: 2})
	rt := newTestRuntime(t, mock)

	first := rt.Spawn(context.Background(), SpawnRequest{Type: "test/echo", Options: json.RawMessage(`{"prompt":"a"}`)})
	second := rt.Spawn(context.Background(), SpawnRequest{Type: "test/echo", Options: json.RawMessage(`{"prompt":"b"}`)})
	require.True(t, first.Success)
	require.True(t, second.Success)

	status := rt.Status()
	require.Len(t, status.Sessions, 2)
	assert.Equal(t, first.Session.ID, status.Sessions[0].ID)
	assert.Equal(t, second.Session.ID, status.Sessions[1].ID)
	assert.Equal(t, 4, status.Sessions[1].TokensPerModel[testutil.StubMeta.ID])
	assert.True(t, status.Sessions[0].Ended)
}

func TestAbort_UnknownSession(t *testing.T) {
	rt := New()
	assert.ErrorIs(t, rt.Abort("nope"), core.ErrInvalidState)
}

func TestNewFromConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg, err := config.Parse([]byte(`
logging:
  level: error
timeout: 30s
session:
  maxAgents: 4
providers:
  openai:
    apiKey: sk-test
  local:
    apiKey: local-key
    baseURL: http://localhost:8080/v1
models:
  - id: local-llama
    provider: local
    promptPerMillion: 0.1
    completionPerMillion: 0.2
`))
	require.NoError(t, err)

	rt, err := NewFromConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"local", "openai"}, rt.Router().Providers())
	assert.Equal(t, 30*time.Second, rt.opts.DefaultTimeout)
	assert.Equal(t, 4, rt.opts.MaxAgents)

	meta, err := rt.Catalog().Lookup("local-llama")
	require.NoError(t, err)
	assert.Equal(t, "local", meta.Provider)
}
