package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/meshcore/core"
	"github.com/hupe1980/meshcore/internal/util"
	"github.com/hupe1980/meshcore/model"
)

// Func is the signature of functions wrapped by FunctionTool. args holds the
// decoded, already validated input object.
type Func func(ctx context.Context, caller core.Member, args map[string]any) (any, error)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Responsibilities:
//   - Holds the JSON schema of its input and, optionally, its output
//   - Validates model supplied arguments against that schema before execution
//   - Validates the JSON encoded return value against the output schema
//   - Normalizes error handling so callers receive *ToolError with consistent codes:
//     VALIDATION_ERROR  -> schema / argument mismatch (wraps core.ErrValidation)
//     EXECUTION_ERROR   -> underlying function returned an error (non-ToolError)
//     OUTPUT_ERROR      -> the result does not satisfy the output schema
//     (custom codes preserved if the function returns *ToolError directly)
//
// A FunctionTool has no mutable state after its schemas are compiled and is safe
// for concurrent use by multiple goroutines.
type FunctionTool struct {
	name        string
	description string
	input       map[string]any
	output      map[string]any
	fn          Func

	once      sync.Once
	inSchema  *util.Schema
	outSchema *util.Schema
	compErr   error
}

// FunctionToolOptions tweaks FunctionTool construction.
type FunctionToolOptions struct {
	OutputSchema map[string]any
}

// WithOutputSchema declares the JSON schema results must satisfy.
func WithOutputSchema(schema map[string]any) func(o *FunctionToolOptions) {
	return func(o *FunctionToolOptions) {
		o.OutputSchema = schema
	}
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(ctx context.Context, _ core.Member, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(name, description string, input map[string]any, fn Func, optFns ...func(o *FunctionToolOptions)) *FunctionTool {
	opts := FunctionToolOptions{}
	for _, f := range optFns {
		f(&opts)
	}
	return &FunctionTool{
		name:        name,
		description: description,
		input:       input,
		output:      opts.OutputSchema,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the input schema from a struct using reflection.
// It produces a schema equivalent to util.CreateSchema(structType).
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sumTool := NewFunctionToolFromStruct("calculate_sum", "Calculate the sum of two numbers", SumArgs{}, fn)
func NewFunctionToolFromStruct(name, description string, structType any, fn Func, optFns ...func(o *FunctionToolOptions)) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn, optFns...)
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// InputSchema returns the JSON schema describing expected arguments.
func (t *FunctionTool) InputSchema() map[string]any { return t.input }

// OutputSchema returns the JSON schema of the result, nil when unchecked.
func (t *FunctionTool) OutputSchema() map[string]any { return t.output }

// Describe implements Tool.
func (t *FunctionTool) Describe() model.ToolDefinition { return Describe(t) }

func (t *FunctionTool) compile() error {
	t.once.Do(func() {
		if t.inSchema, t.compErr = util.CompileSchema(t.input); t.compErr != nil {
			t.compErr = fmt.Errorf("input schema of %s: %w", t.name, t.compErr)
			return
		}
		if t.outSchema, t.compErr = util.CompileSchema(t.output); t.compErr != nil {
			t.compErr = fmt.Errorf("output schema of %s: %w", t.name, t.compErr)
		}
	})
	return t.compErr
}

// Invoke validates rawArgs against the declared schema, invokes the underlying
// function and checks its result against the output schema.
//
// Error Semantics:
//
//	*ToolError (returned directly)  -> forwarded unchanged
//	validation failure              -> *ToolError{Code: "VALIDATION_ERROR"}
//	other error                     -> *ToolError{Code: "EXECUTION_ERROR"}
//	result rejected                 -> *ToolError{Code: "OUTPUT_ERROR"}
func (t *FunctionTool) Invoke(ctx context.Context, caller core.Member, rawArgs string) (any, error) {
	if err := t.compile(); err != nil {
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeExecution, Err: err}
	}

	raw := strings.TrimSpace(rawArgs)
	if raw == "" {
		raw = "{}"
	}

	if err := t.inSchema.ValidateJSON([]byte(raw)); err != nil {
		return nil, validationFailure(t.name, err)
	}

	args := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, validationFailure(t.name, &ValidationError{Field: "(root)", Message: "arguments must be a JSON object"})
	}

	result, err := t.fn(ctx, caller, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			return nil, toolErr
		}
		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
			Err:     err,
		}
	}

	if err := t.outSchema.ValidateValue(result); err != nil {
		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("result validation failed: %v", err),
			Code:    CodeOutput,
			Details: err,
			Err:     err,
		}
	}

	return result, nil
}

func validationFailure(name string, err error) *ToolError {
	return &ToolError{
		Tool:    name,
		Message: fmt.Sprintf("parameter validation failed: %v", err),
		Code:    CodeValidation,
		Details: err,
		Err:     err,
	}
}
