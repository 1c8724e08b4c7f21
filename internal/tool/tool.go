// Package tool presents every callable capability to the model as a uniform
// (name, description, parameter schema) triple and dispatches tool calls to
// the variant that owns them.
//
// Three execution contracts exist:
//   - Rest: a templated HTTP call with response-path extraction
//   - Code: a short script in a throwaway sandbox
//   - Remote: a proxied call to an MCP tool catalog
//
// Tool failures are never exceptions. Every fault becomes a structured
// failure Result that flows back into the model loop, so the model can
// correct itself or give up gracefully.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// Definition advertises a tool to the provider gateway.
type Definition struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
}

// SchemaMap renders the parameter schema as a generic JSON map, the form
// provider adapters consume. A nil schema yields a permissive empty object
// schema.
func (d Definition) SchemaMap() (map[string]any, error) {
	if d.Schema == nil {
		return map[string]any{"type": "object"}, nil
	}
	raw, err := json.Marshal(d.Schema)
	if err != nil {
		return nil, fmt.Errorf("tool %s: marshal schema: %w", d.Name, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("tool %s: unmarshal schema: %w", d.Name, err)
	}
	return m, nil
}

// Call is one model-requested tool invocation.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// Result is the structured outcome handed back to the model. A failed
// result carries Err; Payload is empty then.
type Result struct {
	OK      bool
	Payload string
	Err     string
}

// Failure builds a failed result from a printf-style message.
func Failure(format string, args ...any) Result {
	return Result{OK: false, Err: fmt.Sprintf(format, args...)}
}

// Success builds a successful result.
func Success(payload string) Result {
	return Result{OK: true, Payload: payload}
}

// Text returns the string the model sees for this result.
func (r Result) Text() string {
	if r.OK {
		return r.Payload
	}
	return "tool error: " + r.Err
}

// RunContext carries the conversation-scoped variables tools may reference.
type RunContext struct {
	ConnectionID string
	Counterpart  string
	Timestamp    time.Time
}

// Tool is one callable capability.
type Tool interface {
	Definition() Definition
	Invoke(ctx context.Context, call Call, rc RunContext) Result
}
