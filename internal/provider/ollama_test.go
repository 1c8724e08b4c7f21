package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zapagent/zapagent/internal/log"
	"github.com/zapagent/zapagent/internal/model"
)

func TestOllama_TextCompletion(t *testing.T) {
	var gotReq ollamaChatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Model:           "llama3.2",
			Message:         ollamaMessage{Role: "assistant", Content: "resposta"},
			PromptEvalCount: 10,
			EvalCount:       5,
		})
	}))
	defer srv.Close()

	adapter := NewOllama(log.NewNop())
	cfg := model.ProviderConfig{
		Kind: model.ProviderOllama, Name: "local",
		BaseURL: srv.URL, Model: "llama3.2",
		Temperature: 0.5, MaxTokens: 256,
	}

	resp, err := adapter.Complete(context.Background(), cfg, Request{
		System:   "seja breve",
		Messages: []Message{{Role: model.RoleUser, Text: "oi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if resp.Text != "resposta" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 5 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if gotReq.Stream {
		t.Error("stream must be false on the non-streaming path")
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("messages = %+v, want system then user", gotReq.Messages)
	}
	if gotReq.Options["temperature"] != 0.5 {
		t.Errorf("temperature option = %v", gotReq.Options["temperature"])
	}
}

func TestOllama_ToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Model: "llama3.2",
			Message: ollamaMessage{
				Role: "assistant",
				ToolCalls: []ollamaToolCall{
					{Function: ollamaFunction{Name: "consultar_saldo", Arguments: map[string]any{"dia": "hoje"}}},
				},
			},
		})
	}))
	defer srv.Close()

	adapter := NewOllama(log.NewNop())
	cfg := model.ProviderConfig{Kind: model.ProviderOllama, Name: "local", BaseURL: srv.URL, Model: "llama3.2"}

	resp, err := adapter.Complete(context.Background(), cfg, Request{
		Messages: []Message{{Role: model.RoleUser, Text: "qual o total de hoje?"}},
		Tools:    []ToolSpec{{Name: "consultar_saldo", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %+v", resp.ToolCalls)
	}
	tc := resp.ToolCalls[0]
	if tc.Name != "consultar_saldo" || tc.Args["dia"] != "hoje" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.ID == "" {
		t.Error("adapter must synthesize call IDs")
	}
}

func TestOllama_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
	}{
		{"unknown model", 404, `{"error":"model not found"}`, KindInvalidResponse},
		{"throttled", 429, `busy`, KindRateLimit},
		{"server error", 500, `boom`, KindUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			adapter := NewOllama(log.NewNop())
			cfg := model.ProviderConfig{Kind: model.ProviderOllama, Name: "local", BaseURL: srv.URL, Model: "m"}

			_, err := adapter.Complete(context.Background(), cfg, Request{
				Messages: []Message{{Role: model.RoleUser, Text: "x"}},
			})
			var perr *Error
			if !errors.As(err, &perr) {
				t.Fatalf("error = %v, want *Error", err)
			}
			if perr.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", perr.Kind, tt.wantKind)
			}
		})
	}
}

func TestOllama_EmptyResponseIsInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{Model: "m", Message: ollamaMessage{Role: "assistant"}})
	}))
	defer srv.Close()

	adapter := NewOllama(log.NewNop())
	cfg := model.ProviderConfig{Kind: model.ProviderOllama, Name: "local", BaseURL: srv.URL, Model: "m"}

	_, err := adapter.Complete(context.Background(), cfg, Request{
		Messages: []Message{{Role: model.RoleUser, Text: "x"}},
	})
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindInvalidResponse {
		t.Errorf("error = %v, want KindInvalidResponse", err)
	}
}

func TestToGeminiSchema(t *testing.T) {
	in := map[string]any{
		"type":        "object",
		"description": "args",
		"required":    []any{"cidade"},
		"properties": map[string]any{
			"cidade": map[string]any{"type": "string", "enum": []any{"sp", "rj"}},
			"dias":   map[string]any{"type": "integer"},
		},
	}

	s := toGeminiSchema(in)
	if s.Type != "OBJECT" {
		t.Errorf("Type = %v", s.Type)
	}
	if len(s.Required) != 1 || s.Required[0] != "cidade" {
		t.Errorf("Required = %v", s.Required)
	}
	cidade := s.Properties["cidade"]
	if cidade == nil || cidade.Type != "STRING" || len(cidade.Enum) != 2 {
		t.Errorf("cidade schema = %+v", cidade)
	}
	if s.Properties["dias"].Type != "INTEGER" {
		t.Errorf("dias schema = %+v", s.Properties["dias"])
	}
}
