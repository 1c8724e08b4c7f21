package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/zapagent/zapagent/internal/log"
)

// Dispatcher owns the tool registry and runs every tool call through schema
// validation first. Safe for concurrent use: runs dispatch concurrently
// while Sync-driven registration rewrites remote entries.
type Dispatcher struct {
	logger log.Logger

	mu       sync.RWMutex
	tools    map[string]Tool
	resolved map[string]*jsonschema.Resolved
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger log.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logger.With("component", "tool"),
		tools:    make(map[string]Tool),
		resolved: make(map[string]*jsonschema.Resolved),
	}
}

// Register adds or replaces a tool. The parameter schema is resolved once
// here so dispatch-time validation is cheap.
func (d *Dispatcher) Register(t Tool) error {
	def := t.Definition()
	if def.Name == "" {
		return fmt.Errorf("tool: definition has no name")
	}

	var resolved *jsonschema.Resolved
	if def.Schema != nil {
		r, err := def.Schema.Resolve(nil)
		if err != nil {
			return fmt.Errorf("tool %s: resolve schema: %w", def.Name, err)
		}
		resolved = r
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.tools[def.Name] = t
	d.resolved[def.Name] = resolved
	return nil
}

// Unregister removes a tool by name.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tools, name)
	delete(d.resolved, name)
}

// Definitions returns the definitions for the named tools, in name order.
// Unknown names are skipped: an agent referencing a missing tool simply does
// not advertise it.
func (d *Dispatcher) Definitions(names []string) []Definition {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var defs []Definition
	for _, name := range names {
		if t, ok := d.tools[name]; ok {
			defs = append(defs, t.Definition())
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Dispatch validates the call arguments and invokes the owning tool.
// An unknown tool name and a schema violation both produce structured
// failures, never an error: the model gets to read them and retry.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call, rc RunContext) Result {
	d.mu.RLock()
	t, ok := d.tools[call.Name]
	resolved := d.resolved[call.Name]
	d.mu.RUnlock()

	if !ok {
		d.logger.Warn("unknown tool requested", "tool", call.Name)
		return Failure("unknown tool: %q", call.Name)
	}

	if resolved != nil {
		args := call.Args
		if args == nil {
			args = map[string]any{}
		}
		if err := resolved.Validate(args); err != nil {
			d.logger.Debug("tool arguments rejected", "tool", call.Name, "error", err)
			return Failure("invalid arguments for %s: %v", call.Name, err)
		}
	}

	result := t.Invoke(ctx, call, rc)
	if result.OK {
		d.logger.Debug("tool dispatched", "tool", call.Name, "payload_len", len(result.Payload))
	} else {
		d.logger.Warn("tool failed", "tool", call.Name, "error", result.Err)
	}
	return result
}
