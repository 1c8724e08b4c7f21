package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/zapagent/zapagent/internal/log"
	"github.com/zapagent/zapagent/internal/model"
)

// Gemini is the adapter for the Gemini API via google.golang.org/genai.
type Gemini struct {
	logger log.Logger

	mu      sync.Mutex
	clients map[string]*genai.Client // keyed by API key
}

// NewGemini creates the adapter.
func NewGemini(logger log.Logger) *Gemini {
	return &Gemini{
		logger:  logger.With("adapter", "gemini"),
		clients: make(map[string]*genai.Client),
	}
}

func (g *Gemini) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[apiKey]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	g.clients[apiKey] = c
	return c, nil
}

func (g *Gemini) Complete(ctx context.Context, cfg model.ProviderConfig, req Request) (*Response, error) {
	client, err := g.client(ctx, cfg.APIKey)
	if err != nil {
		return nil, &Error{Kind: KindAuth, Provider: cfg.Name,
			Err: fmt.Errorf("create client: %w", err)}
	}

	genCfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if cfg.Temperature > 0 {
		genCfg.Temperature = genai.Ptr(float32(cfg.Temperature))
	}
	if cfg.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(cfg.MaxTokens)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGeminiSchema(t.Parameters),
			})
		}
		genCfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := client.Models.GenerateContent(ctx, cfg.Model, buildGeminiContents(req), genCfg)
	if err != nil {
		return nil, classifyGeminiError(cfg.Name, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &Error{Kind: KindInvalidResponse, Provider: cfg.Name,
			Err: errors.New("response has no candidates")}
	}

	out := &Response{Model: cfg.Model}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:  int64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	var text strings.Builder
	for i, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:   fmt.Sprintf("call_%d", i),
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		}
	}
	out.Text = text.String()

	if out.Text == "" && len(out.ToolCalls) == 0 {
		return nil, &Error{Kind: KindInvalidResponse, Provider: cfg.Name,
			Err: errors.New("response has neither text nor tool calls")}
	}
	return out, nil
}

func buildGeminiContents(req Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleAssistant:
			parts := []*genai.Part{}
			if m.Text != "" {
				parts = append(parts, genai.NewPartFromText(m.Text))
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: tc.Args},
				})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
		case model.RoleTool:
			part := genai.NewPartFromFunctionResponse(m.ToolName, map[string]any{"result": m.Text})
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		default:
			contents = append(contents, genai.NewContentFromText(m.Text, genai.RoleUser))
		}
	}
	return contents
}

// toGeminiSchema converts a JSON Schema map into the genai schema type.
// Only the subset tool definitions actually use is mapped: type, properties,
// items, required, enum and description.
func toGeminiSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}

	if t, ok := m["type"].(string); ok {
		switch strings.ToLower(t) {
		case "string":
			s.Type = genai.TypeString
		case "number":
			s.Type = genai.TypeNumber
		case "integer":
			s.Type = genai.TypeInteger
		case "boolean":
			s.Type = genai.TypeBoolean
		case "array":
			s.Type = genai.TypeArray
		case "object":
			s.Type = genai.TypeObject
		}
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if pm, ok := raw.(map[string]any); ok {
				s.Properties[name] = toGeminiSchema(pm)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = toGeminiSchema(items)
	}
	if reqs, ok := m["required"].([]any); ok {
		for _, r := range reqs {
			if name, ok := r.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
	}
	if enum, ok := m["enum"].([]any); ok {
		for _, e := range enum {
			if v, ok := e.(string); ok {
				s.Enum = append(s.Enum, v)
			}
		}
	}
	return s
}

func classifyGeminiError(name string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Provider: name, Err: err}
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 401 || apiErr.Code == 403:
			return &Error{Kind: KindAuth, Provider: name, Err: err}
		case apiErr.Code == 429:
			return &Error{Kind: KindRateLimit, Provider: name, Err: err}
		case apiErr.Code >= 500:
			return &Error{Kind: KindUnavailable, Provider: name, Err: err}
		case apiErr.Code >= 400:
			return &Error{Kind: KindInvalidResponse, Provider: name, Err: err}
		}
	}

	return &Error{Kind: KindUnavailable, Provider: name, Err: err}
}
