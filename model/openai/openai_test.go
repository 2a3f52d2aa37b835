package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/meshcore/core"
	"github.com/hupe1980/meshcore/model"
)

func newTestClient(t *testing.T, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return NewClient(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
	})
}

func TestClient_InvokeText(t *testing.T) {
	c := newTestClient(t, http.StatusOK, `{
		"id": "c1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
		"choices": [{"index": 0, "finish_reason": "stop",
			"message": {"role": "assistant", "content": "done"}}],
		"usage": {"prompt_tokens": 11, "completion_tokens": 3, "total_tokens": 14}
	}`)

	resp, err := c.Invoke(context.Background(), model.Request{
		Messages: []core.Exchange{core.NewTextExchange(core.RoleUser, "hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text())
	assert.False(t, resp.HasToolCalls())
	assert.Equal(t, core.Usage{PromptTokens: 11, CompletionTokens: 3}, resp.Usage)
}

func TestClient_InvokeToolCalls(t *testing.T) {
	c := newTestClient(t, http.StatusOK, `{
		"id": "c2", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
		"choices": [{"index": 0, "finish_reason": "tool_calls",
			"message": {"role": "assistant", "content": "",
				"tool_calls": [
					{"id": "call_1", "type": "function", "function": {"name": "a", "arguments": "{\"x\":1}"}},
					{"id": "call_2", "type": "function", "function": {"name": "b", "arguments": "{}"}}
				]}}],
		"usage": {"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12}
	}`)

	resp, err := c.Invoke(context.Background(), model.Request{
		Messages: []core.Exchange{core.NewTextExchange(core.RoleUser, "hi")},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 2)
	assert.Nil(t, resp.Content)
	assert.Equal(t, core.ToolCall{ID: "call_1", Name: "a", Arguments: `{"x":1}`}, resp.ToolCalls[0])
	assert.Equal(t, "b", resp.ToolCalls[1].Name)
}

func TestClient_ClassifiesStatus(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusBadGateway} {
		c := newTestClient(t, status, `{"error": {"message": "nope", "type": "x"}}`)
		_, err := c.Invoke(context.Background(), model.Request{
			Messages: []core.Exchange{core.NewTextExchange(core.RoleUser, "hi")},
		})
		require.Error(t, err)

		var se *model.StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, status, se.StatusCode)
		assert.Equal(t, status >= 500, model.IsTransient(err))
	}
}

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages([]core.Exchange{
		core.NewTextExchange(core.RoleSystem, "sys"),
		core.NewTextExchange(core.RoleUser, "hi"),
		core.NewToolCallsExchange([]core.ToolCall{{ID: "1", Name: "a", Arguments: "{}"}}),
		core.NewToolResultExchange(core.ToolResult{CallID: "1", Content: "ok"}),
		core.NewTextExchange(core.RoleAssistant, "bye"),
	})
	require.Len(t, msgs, 5)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	assert.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "1", msgs[3].OfTool.ToolCallID)
	assert.NotNil(t, msgs[4].OfAssistant)
}
