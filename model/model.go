package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/meshcore/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// GenerateOptions holds per-call sampling parameters. Zero values mean
// "provider default".
type GenerateOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int64    `json:"max_tokens,omitempty"`
}

// Request captures the normalized model input built from a thread.
type Request struct {
	Model    string           `json:"model"`              // Provider model id (usually Meta.ID)
	Endpoint string           `json:"endpoint,omitempty"` // Optional base URL override
	Messages []core.Exchange  `json:"messages"`           // Conversation history, in order
	Tools    []ToolDefinition `json:"tools,omitempty"`
	Options  GenerateOptions  `json:"options"`
}

// Response is the canonical invocation result shared by every provider.
// Exactly one of Content / ToolCalls is expected to be meaningful; Content may
// accompany ToolCalls as a preamble.
type Response struct {
	Content   *string         `json:"content,omitempty"`
	ToolCalls []core.ToolCall `json:"toolCalls,omitempty"`
	Usage     core.Usage      `json:"usage"`
}

// Text returns the content or "" when absent.
func (r *Response) Text() string {
	if r == nil || r.Content == nil {
		return ""
	}
	return *r.Content
}

// HasToolCalls reports whether the model requested tool invocations.
func (r *Response) HasToolCalls() bool { return r != nil && len(r.ToolCalls) > 0 }

// HasText reports whether the model produced a plain text reply.
func (r *Response) HasText() bool { return r != nil && r.Content != nil }

// String returns a pointer to s; convenience for building responses.
func String(s string) *string { return &s }

// Client is the minimal interface implemented by provider backends. Clients
// shape the request for their vendor, send it, and normalize the answer.
// Implementations must be safe for concurrent use.
type Client interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
	Provider() string
}

// MockClient is a lightweight in-memory Client useful for tests & examples.
// Responses are returned in FIFO order; when the queue is empty the fallback
// function (if any) is consulted, otherwise a plain echo is returned.
type MockClient struct {
	provider string

	mu       sync.Mutex
	queue    []mockReply
	fallback func(req Request) (*Response, error)
	requests []Request
}

type mockReply struct {
	resp *Response
	err  error
}

// NewMockClient constructs a MockClient reporting the given provider id.
func NewMockClient(provider string) *MockClient {
	return &MockClient{provider: provider}
}

// AddResponse enqueues a canned response.
func (m *MockClient) AddResponse(resp *Response) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockReply{resp: resp})
	return m
}

// AddText enqueues a plain text response with the given usage.
func (m *MockClient) AddText(text string, usage core.Usage) *MockClient {
	return m.AddResponse(&Response{Content: String(text), Usage: usage})
}

// AddToolCalls enqueues a tool call response with the given usage.
func (m *MockClient) AddToolCalls(usage core.Usage, calls ...core.ToolCall) *MockClient {
	return m.AddResponse(&Response{ToolCalls: calls, Usage: usage})
}

// AddError enqueues a failure.
func (m *MockClient) AddError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockReply{err: err})
	return m
}

// SetFallback installs a function answering requests once the queue is drained.
func (m *MockClient) SetFallback(fn func(req Request) (*Response, error)) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = fn
	return m
}

// Requests returns a copy of every request received so far.
func (m *MockClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Invoke implements Client.
func (m *MockClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	if len(m.queue) > 0 {
		r := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return r.resp, r.err
	}
	fallback := m.fallback
	m.mu.Unlock()

	if fallback != nil {
		return fallback(req)
	}

	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}
	last := req.Messages[len(req.Messages)-1]
	return &Response{Content: String("Mock response to: " + last.Text)}, nil
}

// Provider implements Client.
func (m *MockClient) Provider() string { return m.provider }
