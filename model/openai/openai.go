// Package openai provides an implementation of model.Client using the OpenAI
// Chat Completions API (including function/tool calling). It adapts meshcore's
// normalized Request into the SDK's message format and normalizes the answer
// (text or tool calls, prompt_tokens / completion_tokens usage) back into the
// canonical model.Response.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/meshcore/core"
	"github.com/hupe1980/meshcore/model"
)

// ProviderID is the provider identifier this client registers under.
const ProviderID = "openai"

// Options configure the OpenAI client adapter.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
}

// Client wraps the OpenAI Chat Completions API behind the model.Client interface.
type Client struct {
	client *openai.Client
	opts   Options
}

// NewClient creates a new OpenAI client using the official SDK. SDK level
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

	client := openai.NewClient(clientOpts...)
	return &Client{client: &client, opts: opts}
}

// NewClientFromSDK creates a new OpenAI client from an existing SDK client.
func NewClientFromSDK(client *openai.Client, optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
}

// Provider implements model.Client.
func (c *Client) Provider() string { return ProviderID }

// Invoke implements model.Client.
func (c *Client) Invoke(ctx context.Context, req model.Request) (*model.Response, error) {
	params := c.buildParams(req, buildMessages(req.Messages))

	var reqOpts []option.RequestOption
	if req.Endpoint != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(req.Endpoint))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params, reqOpts...)
	if err != nil {
		return nil, classify(err)
	}
	return normalize(resp)
}

// buildMessages converts exchanges into OpenAI chat messages. Tool results are
// emitted as tool messages right where the thread placed them, which is always
// directly after the assistant batch that issued them.
func buildMessages(exchanges []core.Exchange) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(exchanges))
	for _, ex := range exchanges {
		switch ex.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(ex.Text))
		case core.RoleUser:
			messages = append(messages, openai.UserMessage(ex.Text))
		case core.RoleAssistant:
			if !ex.IsToolCalls() {
				messages = append(messages, openai.AssistantMessage(ex.Text))
				continue
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toToolCallParams(ex.ToolCalls),
				},
			})
		case core.RoleTool:
			if ex.Result == nil {
				continue
			}
			messages = append(messages, openai.ToolMessage(ex.Result.Content, ex.Result.CallID))
		}
	}
	return messages
}

func toToolCallParams(calls []core.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	out := make([]openai.ChatCompletionMessageToolCallParam, 0, len(calls))
	for _, tc := range calls {
		out = append(out, openai.ChatCompletionMessageToolCallParam{
			ID:   tc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return out
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (c *Client) buildParams(
	req model.Request,
	messages []openai.ChatCompletionMessageParamUnion,
) openai.ChatCompletionNewParams {
	modelID := req.Model
	if modelID == "" {
		modelID = c.opts.Model
	}
	temperature := c.opts.Temperature
	if req.Options.Temperature != nil {
		temperature = *req.Options.Temperature
	}
	maxTokens := c.opts.MaxCompletionTokens
	if req.Options.MaxTokens > 0 {
		maxTokens = req.Options.MaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               modelID,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Function.Name,
				Description: openai.String(tdef.Function.Description),
				Parameters:  tdef.Function.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

// normalize maps a completion into the canonical response.
func normalize(resp *openai.ChatCompletion) (*model.Response, error) {
	if len(resp.Choices) == 0 {
		return nil, &model.StatusError{Provider: ProviderID, StatusCode: 502, Err: errors.New("no choices returned")}
	}
	msg := resp.Choices[0].Message

	out := &model.Response{
		Usage: core.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		},
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if msg.Content != "" || len(out.ToolCalls) == 0 {
		out.Content = model.String(msg.Content)
	}
	return out, nil
}

// classify turns SDK errors into model.StatusError so the router can decide
// whether to retry.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &model.StatusError{Provider: ProviderID, StatusCode: apiErr.StatusCode, Err: fmt.Errorf("openai api error: %w", err)}
	}
	return &model.StatusError{Provider: ProviderID, Err: fmt.Errorf("openai transport error: %w", err)}
}
