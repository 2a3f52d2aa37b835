// Package anthropic provides a model.Client for the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/meshcore/core"
	"github.com/hupe1980/meshcore/model"
)

// ProviderID is the provider identifier this client registers under.
const ProviderID = "anthropic"

// Options configures the Anthropic client adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
}

// Client wraps the Anthropic Messages API behind the model.Client interface.
type Client struct {
	client *anthropic.Client
	opts   Options
}

// NewClient creates a new Anthropic client using the official SDK. SDK level
// retries are disabled; the router owns the retry policy.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Client{
		client: &client,
		opts:   opts,
	}
}

// NewClientFromSDK creates a new Anthropic client from an existing SDK client.
func NewClientFromSDK(client *anthropic.Client, optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Client{
		client: client,
		opts:   opts,
	}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Provider implements model.Client.
func (c *Client) Provider() string { return ProviderID }

// Invoke implements model.Client. System exchanges move to the top-level
// system parameter, tool results travel as user-role tool_result blocks.
func (c *Client) Invoke(ctx context.Context, req model.Request) (*model.Response, error) {
	modelID := c.opts.Model
	if req.Model != "" {
		modelID = anthropic.Model(req.Model)
	}
	temperature := c.opts.Temperature
	if req.Options.Temperature != nil {
		temperature = *req.Options.Temperature
	}
	maxTokens := c.opts.MaxTokens
	if req.Options.MaxTokens > 0 {
		maxTokens = req.Options.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       modelID,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
	}

	if systemBlocks := extractSystem(req.Messages); len(systemBlocks) > 0 {
		params.System = systemBlocks
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	var reqOpts []option.RequestOption
	if req.Endpoint != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(req.Endpoint))
	}

	resp, err := c.client.Messages.New(ctx, params, reqOpts...)
	if err != nil {
		return nil, classify(err)
	}

	return normalize(resp), nil
}

// normalize maps text / tool_use blocks and input_tokens / output_tokens usage
// into the canonical response.
func normalize(resp *anthropic.Message) *model.Response {
	out := &model.Response{
		Usage: core.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}

	var text string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text += block.AsText().Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := "{}"
			if toolBlock.Input != nil {
				if raw, err := json.Marshal(toolBlock.Input); err == nil && string(raw) != "null" {
					args = string(raw)
				}
			}
			out.ToolCalls = append(out.ToolCalls, core.ToolCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: args,
			})
		}
	}

	if text != "" || len(out.ToolCalls) == 0 {
		out.Content = model.String(text)
	}
	return out
}

// buildMessages converts exchanges to Anthropic message format. Consecutive
// tool results are grouped into one user message as the API requires.
func buildMessages(exchanges []core.Exchange) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	var pendingResults []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(pendingResults) > 0 {
			messages = append(messages, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, ex := range exchanges {
		switch ex.Role {
		case core.RoleSystem:
			continue // handled separately
		case core.RoleTool:
			if ex.Result != nil {
				pendingResults = append(pendingResults, anthropic.NewToolResultBlock(ex.Result.CallID, ex.Result.Content, ex.Result.IsError))
			}
			continue
		}

		flush()

		switch ex.Role {
		case core.RoleUser:
			if ex.Text != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(ex.Text)))
			}
		case core.RoleAssistant:
			if content := buildAssistantContent(ex); len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		}
	}
	flush()

	return messages
}

// extractSystem extracts system exchanges (including synthetic rollup notes).
func extractSystem(exchanges []core.Exchange) []anthropic.TextBlockParam {
	var systemBlocks []anthropic.TextBlockParam

	for _, ex := range exchanges {
		if ex.Role == core.RoleSystem && ex.Text != "" {
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{
				Text: ex.Text,
			})
		}
	}

	return systemBlocks
}

// buildAssistantContent builds content for assistant messages
func buildAssistantContent(ex core.Exchange) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	if ex.Text != "" {
		content = append(content, anthropic.NewTextBlock(ex.Text))
	}
	for _, tc := range ex.ToolCalls {
		var input any = map[string]any{}
		if tc.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
				input = tc.Arguments // fallback to string
			}
		}
		content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
	}

	return content
}

// buildTools converts tool definitions to the Anthropic input_schema format.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if params := tool.Function.Parameters; params != nil {
			if properties, exists := params["properties"]; exists {
				inputSchema.Properties = properties
			}
			inputSchema.Required = requiredFields(params["required"])
		}

		tp := anthropic.ToolParam{
			Name:        tool.Function.Name,
			InputSchema: inputSchema,
		}
		if tool.Function.Description != "" {
			tp.Description = anthropic.String(tool.Function.Description)
		}
		anthropicTools[i] = anthropic.ToolUnionParam{OfTool: &tp}
	}

	return anthropicTools
}

func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// classify turns SDK errors into model.StatusError so the router can decide
// whether to retry.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &model.StatusError{Provider: ProviderID, StatusCode: apiErr.StatusCode, Err: fmt.Errorf("anthropic api error: %w", err)}
	}
	return &model.StatusError{Provider: ProviderID, Err: fmt.Errorf("anthropic transport error: %w", err)}
}
