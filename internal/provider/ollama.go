package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/zapagent/zapagent/internal/log"
	"github.com/zapagent/zapagent/internal/model"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	ollamaTimeout        = 120 * time.Second
	ollamaMaxResponse    = 4 << 20
)

// Ollama talks the native /api/chat protocol of a local Ollama server.
// The native endpoint is used instead of Ollama's OpenAI compatibility layer
// because it reports model load state and token counts directly.
type Ollama struct {
	hc     *http.Client
	logger log.Logger
}

// NewOllama creates the adapter.
func NewOllama(logger log.Logger) *Ollama {
	return &Ollama{
		hc:     &http.Client{Timeout: ollamaTimeout},
		logger: logger.With("adapter", "ollama"),
	}
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	PromptEvalCount int64         `json:"prompt_eval_count"`
	EvalCount       int64         `json:"eval_count"`
	Error           string        `json:"error"`
}

func (o *Ollama) Complete(ctx context.Context, cfg model.ProviderConfig, req Request) (*Response, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	endpoint := strings.TrimSuffix(baseURL, "/") + "/api/chat"

	body := ollamaChatRequest{
		Model:    cfg.Model,
		Messages: buildOllamaMessages(req),
		Stream:   false,
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, ollamaTool{
			Type: "function",
			Function: ollamaToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	options := map[string]any{}
	if cfg.Temperature > 0 {
		options["temperature"] = cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		options["num_predict"] = cfg.MaxTokens
	}
	if len(options) > 0 {
		body.Options = options
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Kind: KindInvalidResponse, Provider: cfg.Name,
			Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Provider: cfg.Name, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := o.hc.Do(httpReq)
	if err != nil {
		return nil, classifyOllamaTransport(cfg.Name, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, ollamaMaxResponse))
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Provider: cfg.Name,
			Err: fmt.Errorf("read response: %w", err)}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		kind := KindUnavailable
		switch {
		case httpResp.StatusCode == 404:
			// Unknown model name is a configuration problem, not an outage
			kind = KindInvalidResponse
		case httpResp.StatusCode == 429:
			kind = KindRateLimit
		}
		return nil, &Error{Kind: kind, Provider: cfg.Name,
			Err: fmt.Errorf("status %d: %s", httpResp.StatusCode, truncateBody(data))}
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &Error{Kind: KindInvalidResponse, Provider: cfg.Name,
			Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.Error != "" {
		return nil, &Error{Kind: KindUnavailable, Provider: cfg.Name,
			Err: errors.New(parsed.Error)}
	}

	resp := &Response{
		Text:  parsed.Message.Content,
		Model: parsed.Model,
		Usage: Usage{InputTokens: parsed.PromptEvalCount, OutputTokens: parsed.EvalCount},
	}
	for i, tc := range parsed.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			// The native protocol carries no call IDs; synthesize stable ones
			ID:   fmt.Sprintf("call_%d", i),
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		})
	}

	if resp.Text == "" && len(resp.ToolCalls) == 0 {
		return nil, &Error{Kind: KindInvalidResponse, Provider: cfg.Name,
			Err: errors.New("response has neither text nor tool calls")}
	}
	return resp, nil
}

func buildOllamaMessages(req Request) []ollamaMessage {
	msgs := make([]ollamaMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		om := ollamaMessage{Content: m.Text}
		switch m.Role {
		case model.RoleAssistant:
			om.Role = "assistant"
			for _, tc := range m.ToolCalls {
				om.ToolCalls = append(om.ToolCalls, ollamaToolCall{
					Function: ollamaFunction{Name: tc.Name, Arguments: tc.Args},
				})
			}
		case model.RoleTool:
			om.Role = "tool"
		default:
			om.Role = "user"
		}
		msgs = append(msgs, om)
	}
	return msgs
}

func classifyOllamaTransport(name string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Provider: name, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Provider: name, Err: err}
	}
	return &Error{Kind: KindUnavailable, Provider: name, Err: err}
}

func truncateBody(data []byte) string {
	const limit = 200
	if len(data) <= limit {
		return string(data)
	}
	return string(data[:limit]) + "..."
}
