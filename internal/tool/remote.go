package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zapagent/zapagent/internal/log"
)

// Remote transport kinds.
const (
	RemoteSSE        = "sse"
	RemoteStreamable = "streamable"
)

// ErrNotSynced indicates a remote call before any successful Sync.
var ErrNotSynced = errors.New("tool: remote catalog not synced")

const remoteCallTimeout = 60 * time.Second

// RemoteConfig declares a connection to an MCP tool catalog.
type RemoteConfig struct {
	// Endpoint is the catalog URL.
	Endpoint string
	// Transport is sse or streamable. Defaults to streamable.
	Transport string
	// CallTimeout bounds a single forwarded call.
	CallTimeout time.Duration
}

// Remote proxies tool calls to an MCP server. Sync refreshes the set of
// remote names and schemas; the fetched tools register themselves on a
// dispatcher via Tools.
type Remote struct {
	cfg    RemoteConfig
	logger log.Logger

	// dial overrides endpoint dialing, for in-memory transports in tests.
	dial func() (mcp.Transport, error)

	mu      sync.Mutex
	session *mcp.ClientSession
	defs    []Definition
}

// NewRemote creates a remote catalog client. No connection is made until
// Sync is called.
func NewRemote(cfg RemoteConfig, logger log.Logger) *Remote {
	if cfg.Transport == "" {
		cfg.Transport = RemoteStreamable
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = remoteCallTimeout
	}
	return &Remote{cfg: cfg, logger: logger.With("component", "tool.remote", "endpoint", cfg.Endpoint)}
}

// Sync connects (or reconnects) to the catalog and refreshes tool names and
// schemas.
func (r *Remote) Sync(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		_ = r.session.Close()
		r.session = nil
	}

	transport, err := r.dialTransport()
	if err != nil {
		return err
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "zapagent", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("tool: connect remote catalog: %w", err)
	}

	listed, err := session.ListTools(ctx, nil)
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("tool: list remote tools: %w", err)
	}

	defs := make([]Definition, 0, len(listed.Tools))
	for _, t := range listed.Tools {
		schema, err := coerceSchema(t.InputSchema)
		if err != nil {
			r.logger.Warn("remote tool schema not usable, skipping",
				"tool", t.Name, "error", err)
			continue
		}
		defs = append(defs, Definition{
			Name:        t.Name,
			Description: t.Description,
			Schema:      schema,
		})
	}

	r.session = session
	r.defs = defs
	r.logger.Info("remote catalog synced", "tools", len(defs))
	return nil
}

func (r *Remote) dialTransport() (mcp.Transport, error) {
	if r.dial != nil {
		return r.dial()
	}
	switch r.cfg.Transport {
	case RemoteSSE:
		return &mcp.SSEClientTransport{Endpoint: r.cfg.Endpoint}, nil
	case RemoteStreamable:
		return &mcp.StreamableClientTransport{Endpoint: r.cfg.Endpoint}, nil
	default:
		return nil, fmt.Errorf("tool: unknown remote transport %q", r.cfg.Transport)
	}
}

// coerceSchema turns a listed inputSchema into a typed schema. Catalogs
// fetched over the wire decode it as a generic JSON value, so it goes
// through a round-trip rather than a type assertion.
func coerceSchema(v any) (*jsonschema.Schema, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(*jsonschema.Schema); ok {
		return s, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("tool: encode listed schema: %w", err)
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("tool: decode listed schema: %w", err)
	}
	return &s, nil
}

// Close shuts the catalog session down.
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil
	}
	err := r.session.Close()
	r.session = nil
	return err
}

// Tools returns one Tool per synced catalog entry, ready to register on a
// dispatcher.
func (r *Remote) Tools() []Tool {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Tool, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, &remoteTool{remote: r, def: def})
	}
	return out
}

// call forwards one invocation to the catalog.
func (r *Remote) call(ctx context.Context, name string, args map[string]any) Result {
	r.mu.Lock()
	session := r.session
	r.mu.Unlock()

	if session == nil {
		return Failure("%v", ErrNotSynced)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	res, err := session.CallTool(callCtx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return Failure("remote tool %s timed out after %s", name, r.cfg.CallTimeout)
		}
		return Failure("remote tool %s failed: %v", name, err)
	}

	var text strings.Builder
	for _, content := range res.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			text.WriteString(tc.Text)
		}
	}

	if res.IsError {
		msg := text.String()
		if msg == "" {
			msg = "remote tool reported an error"
		}
		return Failure("%s", msg)
	}
	return Success(text.String())
}

// remoteTool adapts one catalog entry to the Tool interface.
type remoteTool struct {
	remote *Remote
	def    Definition
}

func (t *remoteTool) Definition() Definition { return t.def }

func (t *remoteTool) Invoke(ctx context.Context, call Call, _ RunContext) Result {
	return t.remote.call(ctx, t.def.Name, call.Args)
}
