package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/meshcore/core"
	"github.com/hupe1980/meshcore/internal/testutil"
	"github.com/hupe1980/meshcore/model"
	"github.com/hupe1980/meshcore/session"
	"github.com/hupe1980/meshcore/thread"
	"github.com/hupe1980/meshcore/tool"
)

type nopHooks = HookFuncs[struct{}, struct{}, struct{}]

func noop() nopHooks {
	return nopHooks{
		InitializeFunc: func(context.Context, *Agent[struct{}, struct{}, struct{}], struct{}) (struct{}, error) {
			return struct{}{}, nil
		},
		StepFunc: func(_ context.Context, a *Agent[struct{}, struct{}, struct{}], s struct{}) (struct{}, error) {
			return s, a.Stop()
		},
		FinalizeFunc: func(_ context.Context, _ *Agent[struct{}, struct{}, struct{}], s struct{}) (struct{}, error) {
			return s, nil
		},
	}
}

func spawnWithThread(t *testing.T, sess *session.Session, optFns ...func(c *Config)) (*Agent[struct{}, struct{}, struct{}], *thread.Thread) {
	t.Helper()
	optFns = append([]func(c *Config){func(c *Config) { c.Model = testutil.StubMeta }}, optFns...)
	a, err := Spawn[struct{}, struct{}, struct{}](sess, noop(), struct{}{}, optFns...)
	require.NoError(t, err)
	th, err := a.NewThread(context.Background())
	require.NoError(t, err)
	require.NoError(t, th.AppendUserMessage(a.ID(), "hello"))
	return a, th
}

func echoTool(name string) tool.Tool {
	return tool.NewFunctionTool(name, "echo", nil, func(_ context.Context, _ core.Member, args map[string]any) (any, error) {
		return name + " ok", nil
	})
}

func TestAdvance_Text(t *testing.T) {
	sess, mock := testutil.NewSessionBuilder().Text("hi there").Build()
	a, th := spawnWithThread(t, sess)

	got, err := a.Advance(context.Background(), th)
	require.NoError(t, err)
	assert.Same(t, th, got)
	assert.True(t, got.Complete())

	last, _ := got.Last()
	assert.Equal(t, "hi there", last.Text)
	assert.Len(t, sess.Ledger(), 1)
	assert.Equal(t, "stub-model", mock.Requests()[0].Model)

	// complete threads need new input before the next turn
	_, err = a.Advance(context.Background(), got)
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestAdvance_TwoToolCallsOneFailing(t *testing.T) {
	sess, mock := testutil.NewSessionBuilder().
		ToolCalls(testutil.Call("c1", "a", "{}"), testutil.Call("c2", "b", "{}")).
		Text("final").
		Build()

	failing := tool.NewFunctionTool("b", "fails", nil, func(context.Context, core.Member, map[string]any) (any, error) {
		panic("b exploded")
	})
	a, th := spawnWithThread(t, sess, func(c *Config) { c.Tools = []tool.Tool{echoTool("a"), failing} })

	got, err := a.Advance(context.Background(), th)
	require.NoError(t, err)
	assert.NotSame(t, th, got)
	assert.True(t, a.Owns(got))
	assert.False(t, a.Owns(th))

	ex := got.Exchanges()
	require.Len(t, ex, 5) // user, tool calls, result a, result b, final
	assert.True(t, ex[1].IsToolCalls())

	require.NotNil(t, ex[2].Result)
	assert.Equal(t, "c1", ex[2].Result.CallID)
	assert.Equal(t, "a ok", ex[2].Result.Content)
	assert.False(t, ex[2].Result.IsError)

	require.NotNil(t, ex[3].Result)
	assert.Equal(t, "c2", ex[3].Result.CallID)
	assert.True(t, ex[3].Result.IsError)
	assert.True(t, core.IsToolError(ex[3].Result.Content))
	assert.Contains(t, ex[3].Result.Content, "b exploded")

	assert.Equal(t, "final", ex[4].Text)
	assert.True(t, got.Resolved())

	// the follow-up request carried both results
	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Messages, 4)
	assert.Len(t, reqs[0].Tools, 2)
	assert.Len(t, sess.Ledger(), 2)
}

func TestAdvance_ValidationErrorBecomesMarkedResult(t *testing.T) {
	sess, _ := testutil.NewSessionBuilder().
		ToolCalls(testutil.Call("c1", "add", `{"a": "x"}`)).
		Text("sorry").
		Build()

	add := tool.NewFunctionTool("add", "adds", map[string]any{
		"type":       "object",
		"properties": map[string]any{"a": map[string]any{"type": "number"}},
		"required":   []string{"a"},
	}, func(_ context.Context, _ core.Member, args map[string]any) (any, error) {
		return args["a"], nil
	})
	a, th := spawnWithThread(t, sess, func(c *Config) { c.Tools = []tool.Tool{add} })

	got, err := a.Advance(context.Background(), th)
	require.NoError(t, err)

	res := got.Exchanges()[2].Result
	require.NotNil(t, res)
	assert.True(t, strings.HasPrefix(res.Content, core.ToolErrorMarker))
	assert.Contains(t, res.Content, tool.CodeValidation)
	assert.True(t, res.IsError)
}

func TestAdvance_UnknownTool(t *testing.T) {
	sess, _ := testutil.NewSessionBuilder().
		ToolCalls(testutil.Call("c1", "missing", "{}")).
		Text("done").
		Build()
	a, th := spawnWithThread(t, sess)

	got, err := a.Advance(context.Background(), th)
	require.NoError(t, err)
	res := got.Exchanges()[2].Result
	require.NotNil(t, res)
	assert.True(t, core.IsToolError(res.Content))
	assert.Contains(t, res.Content, "missing")
}

func TestAdvance_EatToolResults(t *testing.T) {
	sess, _ := testutil.NewSessionBuilder().
		ToolCalls(testutil.Call("c1", "a", "{}"), testutil.Call("c2", "b", "{}")).
		Text("summary").
		Build()
	a, th := spawnWithThread(t, sess, func(c *Config) {
		c.EatToolResults = true
		c.Tools = []tool.Tool{echoTool("a"), echoTool("b")}
	})
	before := th.Exchanges()

	got, err := a.Advance(context.Background(), th)
	require.NoError(t, err)
	assert.True(t, a.Owns(got))
	assert.Len(t, a.Threads(), 1)

	ex := got.Exchanges()
	require.Len(t, ex, len(before)+2)
	for i := range before {
		assert.True(t, before[i].Equal(ex[i]))
	}
	note := ex[len(before)]
	assert.True(t, note.Synthetic)
	assert.Equal(t, core.RoleSystem, note.Role)
	assert.Equal(t, "[called tools: a, b]", note.Text)
	assert.Equal(t, "summary", ex[len(before)+1].Text)
}

func TestAdvance_EatToolResultsWithoutToolsKeepsThread(t *testing.T) {
	sess, _ := testutil.NewSessionBuilder().Text("plain").Build()
	a, th := spawnWithThread(t, sess, func(c *Config) { c.EatToolResults = true })

	got, err := a.Advance(context.Background(), th)
	require.NoError(t, err)
	assert.Same(t, th, got)
}

func TestAdvance_NotOwner(t *testing.T) {
	sess, mock := testutil.NewSessionBuilder().Text("x").Build()
	a, _ := spawnWithThread(t, sess)
	_, foreign := spawnWithThread(t, sess)

	_, err := a.Advance(context.Background(), foreign)
	assert.ErrorIs(t, err, core.ErrNotOwner)

	_, err = a.HandleToolCalls(context.Background(), foreign)
	assert.ErrorIs(t, err, core.ErrNotOwner)

	built, err := testutil.NewThreadBuilder().User("hi").Owner("someone-else").Build()
	require.NoError(t, err)
	_, err = a.Advance(context.Background(), built)
	assert.ErrorIs(t, err, core.ErrNotOwner)

	unowned, err := testutil.NewThreadBuilder().User("hi").Build()
	require.NoError(t, err)
	_, err = a.Advance(context.Background(), unowned)
	assert.ErrorIs(t, err, core.ErrNotOwner)

	assert.Empty(t, mock.Requests())
}

func TestAdvance_Busy(t *testing.T) {
	sess, _ := testutil.NewSessionBuilder().Text("x").Build()
	a, th := spawnWithThread(t, sess)

	require.True(t, th.TryAcquire())
	_, err := a.Advance(context.Background(), th)
	assert.ErrorIs(t, err, core.ErrThreadBusy)
	th.Release()

	_, err = a.Advance(context.Background(), th)
	assert.NoError(t, err)
}

func TestAdvance_BusyFlagPrecedesChecks(t *testing.T) {
	sess, mock := testutil.NewSessionBuilder().Build()
	a, _ := spawnWithThread(t, sess)
	_, foreign := spawnWithThread(t, sess)

	// Even a thread the caller may not advance reports busy while held, so the
	// ownership and state checks always run under the flag.
	require.True(t, foreign.TryAcquire())
	_, err := a.Advance(context.Background(), foreign)
	assert.ErrorIs(t, err, core.ErrThreadBusy)
	foreign.Release()

	assert.Empty(t, mock.Requests())
}

func TestAdvance_HandedOverThreadIsNotBilled(t *testing.T) {
	sess, mock := testutil.NewSessionBuilder().
		ToolCalls(testutil.Call("c1", "a", "{}")).
		Text("done").
		Build()
	a, th := spawnWithThread(t, sess, func(c *Config) { c.Tools = []tool.Tool{echoTool("a")} })

	got, err := a.Advance(context.Background(), th)
	require.NoError(t, err)
	require.NotSame(t, th, got)

	// the old instance was handed over; advancing it again never reaches the model
	_, err = a.Advance(context.Background(), th)
	assert.ErrorIs(t, err, core.ErrNotOwner)
	assert.Len(t, mock.Requests(), 2)
	assert.Len(t, sess.Ledger(), 2)
}

func TestAdvance_FollowUpFailureReturnsOwnedThread(t *testing.T) {
	sess, _ := testutil.NewSessionBuilder().
		ToolCalls(testutil.Call("c1", "a", "{}")).
		Error(&model.StatusError{Provider: "stub", StatusCode: 400, Err: errors.New("bad request")}).
		Text("recovered").
		Build()
	a, th := spawnWithThread(t, sess, func(c *Config) { c.Tools = []tool.Tool{echoTool("a")} })

	got, err := a.Advance(context.Background(), th)
	assert.ErrorIs(t, err, core.ErrProvider)
	require.NotNil(t, got)
	assert.NotSame(t, th, got)
	assert.True(t, a.Owns(got))
	assert.False(t, a.Owns(th))
	assert.Len(t, a.Threads(), 1)
	assert.True(t, got.Resolved())

	// the conversation resumes from the returned instance
	final, err := a.Advance(context.Background(), got)
	require.NoError(t, err)
	assert.Same(t, got, final)
	last, _ := final.Last()
	assert.Equal(t, "recovered", last.Text)
}

func TestAdvance_InvalidResponse(t *testing.T) {
	sess, _ := testutil.NewSessionBuilder().Response(&model.Response{}).Build()
	a, th := spawnWithThread(t, sess)

	_, err := a.Advance(context.Background(), th)
	assert.ErrorIs(t, err, core.ErrInvalidResponse)
}

func TestAdvance_ProviderError(t *testing.T) {
	sess, _ := testutil.NewSessionBuilder().
		Error(&model.StatusError{Provider: "stub", StatusCode: 400, Err: errors.New("bad request")}).
		Build()
	a, th := spawnWithThread(t, sess)

	_, err := a.Advance(context.Background(), th)
	assert.ErrorIs(t, err, core.ErrProvider)
	assert.Empty(t, sess.Ledger())
	assert.True(t, th.Resolved())
}

func TestAdvance_MaxToolRounds(t *testing.T) {
	sess, _ := testutil.NewSessionBuilder().
		ToolCalls(testutil.Call("c1", "a", "{}")).
		ToolCalls(testutil.Call("c2", "a", "{}")).
		Build()
	a, th := spawnWithThread(t, sess, func(c *Config) {
		c.MaxToolRounds = 1
		c.Tools = []tool.Tool{echoTool("a")}
	})

	got, err := a.Advance(context.Background(), th)
	assert.ErrorIs(t, err, core.ErrInvalidState)
	require.NotNil(t, got)
	assert.True(t, a.Owns(got))
	for _, owned := range a.Threads() {
		assert.True(t, owned.Resolved())
	}
}

func TestHandleToolCalls_Direct(t *testing.T) {
	sess, _ := testutil.NewSessionBuilder().Build()
	a, th := spawnWithThread(t, sess, func(c *Config) { c.Tools = []tool.Tool{echoTool("a")} })
	require.NoError(t, th.AppendAssistantToolCalls(a.ID(), []core.ToolCall{testutil.Call("c1", "a", "")}))

	next, err := a.HandleToolCalls(context.Background(), th)
	require.NoError(t, err)
	assert.True(t, next.Resolved())
	assert.Empty(t, th.Owner())
	assert.Equal(t, a.ID(), next.Owner())
	assert.True(t, thread.Equal(th, next))
}

func TestConclude_ConcludesOwnedThreads(t *testing.T) {
	sess, _ := testutil.NewSessionBuilder().Build()
	a, th := spawnWithThread(t, sess)
	other, err := a.NewThread(context.Background())
	require.NoError(t, err)

	require.NoError(t, a.Conclude())
	assert.True(t, th.Concluded())
	assert.True(t, other.Concluded())
	assert.ErrorIs(t, th.AppendUserMessage(a.ID(), "late"), core.ErrInvalidState)
}
