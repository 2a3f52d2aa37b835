package core

import (
	"strings"
	"time"
)

// Role tags the author of an Exchange.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolErrorMarker prefixes the content of a tool result produced by a failed
// tool invocation so that models (and tests) can recognise it.
const ToolErrorMarker = "[tool error]"

// ToolCall describes a tool invocation request emitted by the model. Calls
// only ever appear inside an assistant Exchange, as a batch.
type ToolCall struct {
	ID        string `json:"id"`                  // Stable id, matched by the ToolResult
	Name      string `json:"name"`                // Tool name
	Arguments string `json:"arguments,omitempty"` // Serialized argument payload (JSON)
}

// ToolResult describes the outcome of a previously issued ToolCall.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Exchange is one role tagged turn of a conversation. Content is either
// free text or a batch of tool calls (assistant) or a single tool result
// (tool). After it is appended to a thread it is never mutated; threads hand
// out copies.
type Exchange struct {
	Role      Role        `json:"role"`
	Text      string      `json:"text,omitempty"`
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`
	Result    *ToolResult `json:"result,omitempty"`
	// Synthetic marks notes inserted by a rollup rather than produced by a
	// participant of the conversation.
	Synthetic bool      `json:"synthetic,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTextExchange creates a plain text exchange for the given role.
func NewTextExchange(role Role, text string) Exchange {
	return Exchange{Role: role, Text: text, Timestamp: time.Now().UTC()}
}

// NewToolCallsExchange creates an assistant exchange carrying a tool-call batch.
func NewToolCallsExchange(calls []ToolCall) Exchange {
	return Exchange{Role: RoleAssistant, ToolCalls: append([]ToolCall(nil), calls...), Timestamp: time.Now().UTC()}
}

// NewToolResultExchange creates a tool role exchange carrying one result.
func NewToolResultExchange(res ToolResult) Exchange {
	r := res
	return Exchange{Role: RoleTool, Result: &r, Timestamp: time.Now().UTC()}
}

// IsToolCalls reports whether the exchange is an assistant tool-call batch.
func (e Exchange) IsToolCalls() bool { return e.Role == RoleAssistant && len(e.ToolCalls) > 0 }

// IsAssistantText reports whether the exchange is a plain assistant reply.
func (e Exchange) IsAssistantText() bool { return e.Role == RoleAssistant && len(e.ToolCalls) == 0 }

// Clone returns a deep copy so callers cannot alias thread internals.
func (e Exchange) Clone() Exchange {
	c := e
	if e.ToolCalls != nil {
		c.ToolCalls = append([]ToolCall(nil), e.ToolCalls...)
	}
	if e.Result != nil {
		r := *e.Result
		c.Result = &r
	}
	return c
}

// Equal reports structural equality ignoring timestamps.
func (e Exchange) Equal(o Exchange) bool {
	if e.Role != o.Role || e.Text != o.Text || e.Synthetic != o.Synthetic || len(e.ToolCalls) != len(o.ToolCalls) {
		return false
	}
	for i := range e.ToolCalls {
		if e.ToolCalls[i] != o.ToolCalls[i] {
			return false
		}
	}
	if (e.Result == nil) != (o.Result == nil) {
		return false
	}
	return e.Result == nil || *e.Result == *o.Result
}

// ToolNames returns the names of the tools called in this exchange.
func (e Exchange) ToolNames() []string {
	names := make([]string, 0, len(e.ToolCalls))
	for _, c := range e.ToolCalls {
		names = append(names, c.Name)
	}
	return names
}

// IsToolError reports whether a tool result content carries the error marker.
func IsToolError(content string) bool { return strings.HasPrefix(content, ToolErrorMarker) }

// Usage captures token usage statistics for a single model invocation.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Total returns prompt plus completion tokens.
func (u Usage) Total() int { return u.PromptTokens + u.CompletionTokens }

// Add returns the element-wise sum of two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{PromptTokens: u.PromptTokens + o.PromptTokens, CompletionTokens: u.CompletionTokens + o.CompletionTokens}
}
