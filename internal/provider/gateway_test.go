package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/zapagent/zapagent/internal/log"
	"github.com/zapagent/zapagent/internal/model"
)

// stubClient returns canned responses per provider name.
type stubClient struct {
	responses map[string]*Response
	errs      map[string]error
	calls     []string
}

func (s *stubClient) Complete(_ context.Context, cfg model.ProviderConfig, _ Request) (*Response, error) {
	s.calls = append(s.calls, cfg.Name)
	if err, ok := s.errs[cfg.Name]; ok {
		return nil, err
	}
	if resp, ok := s.responses[cfg.Name]; ok {
		return resp, nil
	}
	return &Response{Text: "ok from " + cfg.Name}, nil
}

func newTestGateway(stub *stubClient) *Gateway {
	return NewGateway(map[model.ProviderKind]Client{
		model.ProviderOpenAI: stub,
		model.ProviderOllama: stub,
	}, GatewayConfig{}, log.NewNop())
}

func chain(names ...string) []model.ProviderConfig {
	out := make([]model.ProviderConfig, 0, len(names))
	for _, n := range names {
		out = append(out, model.ProviderConfig{Kind: model.ProviderOpenAI, Name: n, Model: "m"})
	}
	return out
}

func TestGateway_PrimarySucceeds(t *testing.T) {
	stub := &stubClient{}
	gw := newTestGateway(stub)

	resp, err := gw.Complete(context.Background(), chain("primary", "backup"), Request{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "ok from primary" {
		t.Errorf("Text = %q", resp.Text)
	}
	if len(stub.calls) != 1 {
		t.Errorf("backup should not be called, calls = %v", stub.calls)
	}
}

func TestGateway_TimeoutAdvances(t *testing.T) {
	stub := &stubClient{errs: map[string]error{
		"primary": &Error{Kind: KindTimeout, Provider: "primary", Err: errors.New("deadline")},
	}}
	gw := newTestGateway(stub)

	resp, err := gw.Complete(context.Background(), chain("primary", "backup"), Request{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "ok from backup" {
		t.Errorf("Text = %q, want backup's answer", resp.Text)
	}
	if len(stub.calls) != 2 {
		t.Errorf("calls = %v, want [primary backup]", stub.calls)
	}
}

func TestGateway_RateLimitAdvances(t *testing.T) {
	stub := &stubClient{errs: map[string]error{
		"primary": &Error{Kind: KindRateLimit, Provider: "primary", Err: errors.New("429")},
	}}
	gw := newTestGateway(stub)

	resp, err := gw.Complete(context.Background(), chain("primary", "backup"), Request{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "ok from backup" {
		t.Errorf("Text = %q, want backup's answer", resp.Text)
	}
}

func TestGateway_AuthIsFatal(t *testing.T) {
	stub := &stubClient{errs: map[string]error{
		"primary": &Error{Kind: KindAuth, Provider: "primary", Err: errors.New("bad key")},
	}}
	gw := newTestGateway(stub)

	_, err := gw.Complete(context.Background(), chain("primary", "backup"), Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindAuth {
		t.Errorf("error = %v, want KindAuth", err)
	}
	if len(stub.calls) != 1 {
		t.Errorf("auth failure must not trigger fallback, calls = %v", stub.calls)
	}
}

func TestGateway_Exhaustion(t *testing.T) {
	stub := &stubClient{errs: map[string]error{
		"a": &Error{Kind: KindUnavailable, Provider: "a", Err: errors.New("down")},
		"b": &Error{Kind: KindTimeout, Provider: "b", Err: errors.New("slow")},
	}}
	gw := newTestGateway(stub)

	_, err := gw.Complete(context.Background(), chain("a", "b"), Request{})
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("error = %v, want ErrExhausted", err)
	}
	// Last classified error stays inspectable through the wrap
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindTimeout {
		t.Errorf("wrapped error = %v, want last provider's KindTimeout", err)
	}
}

func TestGateway_EmptyChain(t *testing.T) {
	gw := newTestGateway(&stubClient{})
	_, err := gw.Complete(context.Background(), nil, Request{})
	if !errors.Is(err, ErrEmptyChain) {
		t.Errorf("error = %v, want ErrEmptyChain", err)
	}
}

func TestGateway_UnknownKindSkips(t *testing.T) {
	stub := &stubClient{}
	gw := NewGateway(map[model.ProviderKind]Client{model.ProviderOpenAI: stub}, GatewayConfig{}, log.NewNop())

	cfgs := []model.ProviderConfig{
		{Kind: model.ProviderGemini, Name: "gem", Model: "m"}, // no adapter registered
		{Kind: model.ProviderOpenAI, Name: "oai", Model: "m"},
	}
	resp, err := gw.Complete(context.Background(), cfgs, Request{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "ok from oai" {
		t.Errorf("Text = %q", resp.Text)
	}
}

func TestGateway_FallbackIsPerCall(t *testing.T) {
	stub := &stubClient{errs: map[string]error{
		"primary": &Error{Kind: KindUnavailable, Provider: "primary", Err: errors.New("down")},
	}}
	gw := newTestGateway(stub)
	cfgs := chain("primary", "backup")

	if _, err := gw.Complete(context.Background(), cfgs, Request{}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	// Primary recovers; the next call must start from it again
	stub.errs = nil
	resp, err := gw.Complete(context.Background(), cfgs, Request{})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if resp.Text != "ok from primary" {
		t.Errorf("Text = %q, fallback must not stick across calls", resp.Text)
	}
}

func TestErrorAdvances(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindAuth, false},
		{KindRateLimit, true},
		{KindTimeout, true},
		{KindInvalidResponse, true},
		{KindUnavailable, true},
	}
	for _, tt := range tests {
		e := &Error{Kind: tt.kind, Provider: "p", Err: errors.New("x")}
		if got := e.Advances(); got != tt.want {
			t.Errorf("Advances(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
