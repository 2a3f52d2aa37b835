package testutil

import (
	"github.com/hupe1980/meshcore/core"
	"github.com/hupe1980/meshcore/thread"
)

// ThreadBuilder provides a fluent helper for constructing threads in tests.
// Example:
//
//	th, err := NewThreadBuilder().System("be brief").User("hi").Owner("a1").Build()
//
// Steps are replayed through the regular append operations, so an invalid
// sequence makes Build fail.
type ThreadBuilder struct {
	owner string
	steps []func(t *thread.Thread, id string) error
}

// NewThreadBuilder creates an empty builder.
func NewThreadBuilder() *ThreadBuilder { return &ThreadBuilder{} }

// Owner makes the built thread owned by agentID (chainable).
func (b *ThreadBuilder) Owner(agentID string) *ThreadBuilder { b.owner = agentID; return b }

// System appends a system message (chainable).
func (b *ThreadBuilder) System(text string) *ThreadBuilder {
	b.steps = append(b.steps, func(t *thread.Thread, id string) error { return t.AppendSystemMessage(id, text) })
	return b
}

// User appends a user message (chainable).
func (b *ThreadBuilder) User(text string) *ThreadBuilder {
	b.steps = append(b.steps, func(t *thread.Thread, id string) error { return t.AppendUserMessage(id, text) })
	return b
}

// Assistant appends an assistant text reply (chainable).
func (b *ThreadBuilder) Assistant(text string) *ThreadBuilder {
	b.steps = append(b.steps, func(t *thread.Thread, id string) error { return t.AppendAssistantMessage(id, text) })
	return b
}

// ToolCalls appends an assistant tool-call batch (chainable).
func (b *ThreadBuilder) ToolCalls(calls ...core.ToolCall) *ThreadBuilder {
	b.steps = append(b.steps, func(t *thread.Thread, id string) error { return t.AppendAssistantToolCalls(id, calls) })
	return b
}

// ToolResult resolves a pending call (chainable).
func (b *ThreadBuilder) ToolResult(callID, content string) *ThreadBuilder {
	b.steps = append(b.steps, func(t *thread.Thread, id string) error { return t.AppendToolResult(id, callID, content, false) })
	return b
}

// builderID owns the thread while steps replay when no owner was given.
const builderID = "thread-builder"

// Build replays the steps on a new thread. Without Owner the result is
// unowned.
func (b *ThreadBuilder) Build() (*thread.Thread, error) {
	id := b.owner
	if id == "" {
		id = builderID
	}
	t := thread.New()
	if err := t.Adopt(id); err != nil {
		return nil, err
	}
	for _, step := range b.steps {
		if err := step(t, id); err != nil {
			return nil, err
		}
	}
	if b.owner == "" {
		if err := t.Abandon(id); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Call is a shorthand for a tool call with JSON arguments.
func Call(id, name, args string) core.ToolCall {
	return core.ToolCall{ID: id, Name: name, Arguments: args}
}
