// Package provider abstracts chat-completion backends behind a single
// gateway with ordered fallback.
//
// An agent carries an ordered provider chain (primary first). The gateway
// tries each entry for one call: errors classified as timeout, invalid
// response or unavailable advance to the next provider; auth and rate-limit
// errors of the caller's own making do not mask themselves behind fallbacks
// forever — auth fails the call immediately, rate limit advances only when a
// fallback exists.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/zapagent/zapagent/internal/model"
)

// ErrExhausted is returned when every provider in the chain failed.
var ErrExhausted = errors.New("provider: all providers in chain failed")

// ErrEmptyChain is returned for a call without any configured provider.
var ErrEmptyChain = errors.New("provider: empty provider chain")

// Kind classifies a provider failure. Only Timeout, InvalidResponse and
// Unavailable advance the gateway to the next provider in the chain.
type Kind string

const (
	KindAuth            Kind = "auth"
	KindRateLimit       Kind = "rate_limit"
	KindTimeout         Kind = "timeout"
	KindInvalidResponse Kind = "invalid_response"
	KindUnavailable     Kind = "unavailable"
)

// Error is a classified provider failure.
type Error struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Advances reports whether this failure moves the call to the next provider.
func (e *Error) Advances() bool {
	switch e.Kind {
	case KindTimeout, KindInvalidResponse, KindUnavailable, KindRateLimit:
		return true
	default:
		return false
	}
}

// classify wraps err as *Error unless it already is one.
func classify(name string, kind Kind, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Kind: kind, Provider: name, Err: err}
}

// Message is one turn handed to a provider. Role follows the history roles;
// the system prompt travels separately on the Request.
type Message struct {
	Role model.Role
	Text string

	// ImageRef carries an inline media reference for multimodal turns.
	// Adapters that cannot express media fall back to the text caption.
	ImageRef string
	MIME     string

	// ToolCalls is set on assistant turns that requested tools.
	ToolCalls []ToolCall

	// ToolCallID and ToolName are set on tool-result turns.
	ToolCallID string
	ToolName   string
}

// ToolCall is a model request to invoke a tool.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolSpec advertises a callable tool to the model. Parameters is a JSON
// Schema document in map form.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one completion call.
type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolSpec
	Temperature float64
	MaxTokens   int
}

// Usage reports token accounting when the backend provides it.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is the outcome of a completion call. Either Text, ToolCalls or
// both may be set; an empty response is classified as invalid by adapters.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Model     string
	Usage     Usage
}

// Client is one backend adapter. Implementations classify their failures as
// *Error so the gateway can decide whether to advance.
type Client interface {
	Complete(ctx context.Context, cfg model.ProviderConfig, req Request) (*Response, error)
}
