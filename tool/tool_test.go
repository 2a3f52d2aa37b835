package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/meshcore/core"
)

type member struct{}

func (member) ID() string   { return "agent-1" }
func (member) Name() string { return "tester" }

var sumParams = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"a": map[string]any{"type": "number"},
		"b": map[string]any{"type": "number"},
	},
	"required": []string{"a", "b"},
}

func sum(_ context.Context, _ core.Member, args map[string]any) (any, error) {
	return args["a"].(float64) + args["b"].(float64), nil
}

func TestToolError(t *testing.T) {
	err := NewToolError("search", "failed to connect", "CONNECTION_ERROR")
	assert.Equal(t, "tool error [CONNECTION_ERROR] in search: failed to connect", err.Error())

	err = &ToolError{Tool: "search", Message: "oops"}
	assert.Equal(t, "tool error in search: oops", err.Error())
}

func TestFunctionTool_Success(t *testing.T) {
	sumTool := NewFunctionTool("sum", "Add numbers", sumParams, sum)

	result, err := sumTool.Invoke(context.Background(), member{}, `{"a": 2, "b": 3}`)
	require.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	sumTool := NewFunctionTool("sum", "Add numbers", sumParams, sum)

	tests := []struct {
		name string
		args string
	}{
		{"missing field", `{"a": 1}`},
		{"wrong type", `{"a": "one", "b": 2}`},
		{"not json", `not json`},
		{"not an object", `[1, 2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sumTool.Invoke(context.Background(), member{}, tt.args)
			require.Error(t, err)

			var toolErr *ToolError
			require.ErrorAs(t, err, &toolErr)
			assert.Equal(t, CodeValidation, toolErr.Code)
			assert.ErrorIs(t, err, core.ErrValidation)
		})
	}
}

func TestFunctionTool_EmptyArgsMeansEmptyObject(t *testing.T) {
	var got map[string]any
	noop := NewFunctionTool("noop", "Does nothing", nil, func(_ context.Context, _ core.Member, args map[string]any) (any, error) {
		got = args
		return "ok", nil
	})

	result, err := noop.Invoke(context.Background(), member{}, "")
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Empty(t, got)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	execTool := NewFunctionTool("fail", "Fails", nil, func(_ context.Context, _ core.Member, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	_, err := execTool.Invoke(context.Background(), member{}, "{}")

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)
}

func TestFunctionTool_ForwardsToolError(t *testing.T) {
	custom := NewToolError("quota", "quota exhausted", "QUOTA")
	quota := NewFunctionTool("quota", "", nil, func(_ context.Context, _ core.Member, _ map[string]any) (any, error) {
		return nil, custom
	})
	_, err := quota.Invoke(context.Background(), member{}, "{}")
	assert.Same(t, custom, err)
}

func TestFunctionTool_OutputSchema(t *testing.T) {
	out := map[string]any{
		"type":     "object",
		"required": []string{"total"},
		"properties": map[string]any{
			"total": map[string]any{"type": "number"},
		},
	}

	good := NewFunctionTool("good", "", sumParams, func(_ context.Context, _ core.Member, args map[string]any) (any, error) {
		return map[string]any{"total": args["a"].(float64) + args["b"].(float64)}, nil
	}, WithOutputSchema(out))
	result, err := good.Invoke(context.Background(), member{}, `{"a":1,"b":1}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"total": 2.0}, result)
	assert.Equal(t, out, good.OutputSchema())

	bad := NewFunctionTool("bad", "", sumParams, sum, WithOutputSchema(out))
	_, err = bad.Invoke(context.Background(), member{}, `{"a":1,"b":1}`)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeOutput, toolErr.Code)
}

func TestFunctionTool_CallerIsPassed(t *testing.T) {
	whoami := NewFunctionTool("whoami", "", nil, func(_ context.Context, caller core.Member, _ map[string]any) (any, error) {
		return caller.Name(), nil
	})
	result, err := whoami.Invoke(context.Background(), member{}, "{}")
	require.NoError(t, err)
	assert.Equal(t, "tester", result)
}

func TestNewFunctionToolFromStruct(t *testing.T) {
	type args struct {
		City  string `json:"city" description:"City name"`
		Units string `json:"units,omitempty"`
	}
	weather := NewFunctionToolFromStruct("weather", "Get the weather", args{}, func(_ context.Context, _ core.Member, a map[string]any) (any, error) {
		return "sunny in " + a["city"].(string), nil
	})

	schema := weather.InputSchema()
	assert.Equal(t, "object", schema["type"])
	assert.Contains(t, schema["properties"], "city")

	result, err := weather.Invoke(context.Background(), member{}, `{"city":"Berlin"}`)
	require.NoError(t, err)
	assert.Equal(t, "sunny in Berlin", result)

	_, err = weather.Invoke(context.Background(), member{}, `{}`)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestDescribe(t *testing.T) {
	sumTool := NewFunctionTool("sum", "Add numbers", sumParams, sum)
	def := sumTool.Describe()
	assert.Equal(t, "function", def.Type)
	assert.Equal(t, "sum", def.Function.Name)
	assert.Equal(t, "Add numbers", def.Function.Description)
	assert.Equal(t, sumParams, def.Function.Parameters)

	noop := NewFunctionTool("noop", "", nil, sum)
	assert.Equal(t, "object", noop.Describe().Function.Parameters["type"])

	defs := Definitions([]Tool{sumTool, noop})
	require.Len(t, defs, 2)
	assert.Equal(t, "noop", defs[1].Function.Name)
	assert.Nil(t, Definitions(nil))
}

func TestFormatResult(t *testing.T) {
	assert.Equal(t, "plain", FormatResult("plain"))
	assert.Equal(t, "5", FormatResult(5))
	assert.Equal(t, `{"a":1}`, FormatResult(map[string]int{"a": 1}))
	assert.Equal(t, "", FormatResult(nil))
}
