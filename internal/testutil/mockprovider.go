package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/zapagent/zapagent/internal/model"
	"github.com/zapagent/zapagent/internal/provider"
)

// MockProvider is a deterministic provider.Client for tests. It matches the
// last user message against registered substring patterns and returns the
// corresponding canned response.
//
// Thread-safe for concurrent use.
type MockProvider struct {
	mu       sync.Mutex
	rules    []mockRule
	fallback string
	calls    []ProviderCall
}

type mockRule struct {
	pattern   string
	response  string
	toolCalls []provider.ToolCall
}

// ProviderCall records a single completion call.
type ProviderCall struct {
	UserMessage string
	Response    string
	ToolCalls   int
}

// NewMockProvider creates a mock provider client. The fallback text is
// returned when no pattern matches.
func NewMockProvider(fallback string) *MockProvider {
	return &MockProvider{fallback: fallback}
}

// Respond registers a text response for messages containing pattern.
// Patterns are checked in registration order; first match wins.
func (m *MockProvider) Respond(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: pattern, response: response})
}

// RespondWithTools registers tool calls for messages containing pattern.
func (m *MockProvider) RespondWithTools(pattern string, calls ...provider.ToolCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: pattern, toolCalls: calls})
}

// Complete implements provider.Client.
func (m *MockProvider) Complete(_ context.Context, cfg model.ProviderConfig, req provider.Request) (*provider.Response, error) {
	userMsg := lastUserText(req.Messages)

	m.mu.Lock()
	defer m.mu.Unlock()

	resp := &provider.Response{Text: m.fallback, Model: cfg.Model}
	for _, rule := range m.rules {
		if strings.Contains(userMsg, rule.pattern) {
			resp.Text = rule.response
			resp.ToolCalls = rule.toolCalls
			break
		}
	}

	m.calls = append(m.calls, ProviderCall{
		UserMessage: userMsg,
		Response:    resp.Text,
		ToolCalls:   len(resp.ToolCalls),
	})
	return resp, nil
}

// Calls returns a copy of the recorded calls.
func (m *MockProvider) Calls() []ProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ProviderCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func lastUserText(msgs []provider.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleUser {
			return msgs[i].Text
		}
	}
	return ""
}

// FailingProvider is a provider.Client that always returns the configured
// error, for gateway fallback tests.
type FailingProvider struct {
	Err error
}

// Complete implements provider.Client.
func (f FailingProvider) Complete(context.Context, model.ProviderConfig, provider.Request) (*provider.Response, error) {
	return nil, f.Err
}
