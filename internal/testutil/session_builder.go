package testutil

import (
	"github.com/hupe1980/meshcore/core"
	"github.com/hupe1980/meshcore/model"
	"github.com/hupe1980/meshcore/router"
	"github.com/hupe1980/meshcore/session"
)

// StubMeta is the model used by scripted sessions.
var StubMeta = model.Meta{ID: "stub-model", Provider: "stub", Pricing: model.NewPricing(1, 2)}

// SessionBuilder helps construct sessions backed by a scripted MockClient.
// Example:
//
//	sess, mock := NewSessionBuilder().Text("hello").Build()
type SessionBuilder struct {
	mock     *model.MockClient
	optFns   []func(o *session.Options)
	provider string
}

// NewSessionBuilder creates a builder whose mock answers for StubMeta.
func NewSessionBuilder() *SessionBuilder {
	return &SessionBuilder{mock: model.NewMockClient(StubMeta.Provider), provider: StubMeta.Provider}
}

// Text queues a text reply (chainable).
func (b *SessionBuilder) Text(text string) *SessionBuilder {
	b.mock.AddText(text, core.Usage{PromptTokens: 10, CompletionTokens: 5})
	return b
}

// ToolCalls queues a tool-call reply (chainable).
func (b *SessionBuilder) ToolCalls(calls ...core.ToolCall) *SessionBuilder {
	b.mock.AddToolCalls(core.Usage{PromptTokens: 10, CompletionTokens: 5}, calls...)
	return b
}

// Response queues an arbitrary reply (chainable).
func (b *SessionBuilder) Response(resp *model.Response) *SessionBuilder {
	b.mock.AddResponse(resp)
	return b
}

// Error queues a failure (chainable).
func (b *SessionBuilder) Error(err error) *SessionBuilder {
	b.mock.AddError(err)
	return b
}

// Options adds session options (chainable).
func (b *SessionBuilder) Options(fn func(o *session.Options)) *SessionBuilder {
	b.optFns = append(b.optFns, fn)
	return b
}

// Build wires the mock into a router and returns the session and the mock.
func (b *SessionBuilder) Build() (*session.Session, *model.MockClient) {
	r := router.New(func(o *router.Options) { o.Retry.MaxAttempts = 1 })
	r.Register(b.provider, b.mock, router.Limit{})
	return session.New(r, b.optFns...), b.mock
}
