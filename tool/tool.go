// Package tool implements the function / tool calling contract that lets agents
// invoke structured capabilities (APIs, computations, side‑effects) with schema
// validated arguments, consistent error handling and metadata for LLM guidance.
package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/meshcore/core"
	"github.com/hupe1980/meshcore/internal/util"
	"github.com/hupe1980/meshcore/model"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tools are registered on an agent's configuration; their descriptions are
// advertised to the model, and the agent dispatches the model's tool calls to
// Invoke by name.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define a JSON schema for their input (and optionally their output)
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	Description() string

	// InputSchema returns the JSON schema the raw arguments must satisfy.
	InputSchema() map[string]any

	// OutputSchema returns the JSON schema of the result, or nil when unchecked.
	OutputSchema() map[string]any

	// Invoke parses rawArgs (a JSON object), validates it, runs the tool on
	// behalf of caller and returns its result.
	Invoke(ctx context.Context, caller core.Member, rawArgs string) (any, error)

	// Describe returns the declaration handed to model providers.
	Describe() model.ToolDefinition
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
	Err     error  `json:"-"`
}

// Error codes used by FunctionTool.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeOutput     = "OUTPUT_ERROR"
)

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Describe builds the provider facing declaration of t.
func Describe(t Tool) model.ToolDefinition {
	params := t.InputSchema()
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  params,
		},
	}
}

// Definitions returns the declarations of every tool, in order.
func Definitions(tools []Tool) []model.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, t.Describe())
	}
	return defs
}

// FormatResult renders a tool result as the text stored in the thread.
// Strings are kept verbatim, everything else is JSON encoded.
func FormatResult(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	case []byte:
		return string(r)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
