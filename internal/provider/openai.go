package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/zapagent/zapagent/internal/log"
	"github.com/zapagent/zapagent/internal/model"
)

// OpenAI is the adapter for OpenAI-compatible chat-completion endpoints.
// With a custom BaseURL it also serves OpenRouter, LM Studio, llama.cpp
// server and every other endpoint speaking the same dialect.
type OpenAI struct {
	logger log.Logger
}

// NewOpenAI creates the adapter.
func NewOpenAI(logger log.Logger) *OpenAI {
	return &OpenAI{logger: logger.With("adapter", "openai")}
}

func (o *OpenAI) Complete(ctx context.Context, cfg model.ProviderConfig, req Request) (*Response, error) {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(cfg.Model),
		Messages: buildOpenAIMessages(req),
	}
	if cfg.Temperature > 0 {
		params.Temperature = openai.Float(cfg.Temperature)
	}
	if cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(cfg.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = buildOpenAITools(req.Tools)
	}

	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(cfg.Name, err)
	}
	if len(completion.Choices) == 0 {
		return nil, &Error{Kind: KindInvalidResponse, Provider: cfg.Name,
			Err: errors.New("completion has no choices")}
	}

	msg := completion.Choices[0].Message
	resp := &Response{
		Text:  msg.Content,
		Model: completion.Model,
		Usage: Usage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
		},
	}

	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, &Error{Kind: KindInvalidResponse, Provider: cfg.Name,
					Err: fmt.Errorf("malformed tool arguments for %s: %w", tc.Function.Name, err)}
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}

	if resp.Text == "" && len(resp.ToolCalls) == 0 {
		return nil, &Error{Kind: KindInvalidResponse, Provider: cfg.Name,
			Err: errors.New("completion has neither text nor tool calls")}
	}
	return resp, nil
}

func buildOpenAIMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}

	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleAssistant:
			am := openai.AssistantMessage(m.Text)
			if len(m.ToolCalls) > 0 {
				calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(m.ToolCalls))
				for _, tc := range m.ToolCalls {
					argsJSON, _ := json.Marshal(tc.Args)
					calls = append(calls, openai.ChatCompletionMessageToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: string(argsJSON),
						},
					})
				}
				am.OfAssistant.ToolCalls = calls
			}
			msgs = append(msgs, am)
		case model.RoleTool:
			msgs = append(msgs, openai.ToolMessage(m.Text, m.ToolCallID))
		default:
			msgs = append(msgs, openai.UserMessage(m.Text))
		}
	}
	return msgs
}

func buildOpenAITools(tools []ToolSpec) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  shared.FunctionParameters(t.Parameters),
			},
		})
	}
	return out
}

// classifyOpenAIError maps SDK errors onto the gateway taxonomy.
func classifyOpenAIError(name string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Provider: name, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Provider: name, Err: err}
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return &Error{Kind: KindAuth, Provider: name, Err: err}
		case apiErr.StatusCode == 429:
			return &Error{Kind: KindRateLimit, Provider: name, Err: err}
		case apiErr.StatusCode == 408:
			return &Error{Kind: KindTimeout, Provider: name, Err: err}
		case apiErr.StatusCode >= 500:
			return &Error{Kind: KindUnavailable, Provider: name, Err: err}
		case apiErr.StatusCode >= 400:
			return &Error{Kind: KindInvalidResponse, Provider: name, Err: err}
		}
	}

	return &Error{Kind: KindUnavailable, Provider: name, Err: err}
}
