// Package engine runs one orchestration pass per inbound message: command
// matching, type policy, optional transcription and retrieval, the provider
// call with its bounded tool loop, and the final atomic archive into history.
//
// The engine is stateless between runs. Everything it needs is read from the
// configuration source at the start of the run, so admin-side edits take
// effect on the next message without restarts.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zapagent/zapagent/internal/config"
	"github.com/zapagent/zapagent/internal/history"
	"github.com/zapagent/zapagent/internal/knowledge"
	"github.com/zapagent/zapagent/internal/log"
	"github.com/zapagent/zapagent/internal/model"
	"github.com/zapagent/zapagent/internal/policy"
	"github.com/zapagent/zapagent/internal/provider"
	"github.com/zapagent/zapagent/internal/tool"
	"github.com/zapagent/zapagent/internal/transcribe"
)

// Message is one inbound event handed to the engine by the supervisor.
type Message struct {
	ConnectionID string
	Counterpart  string
	ContentType  model.ContentType

	// Text is the message body, or the caption for media messages.
	Text string

	// Media carries the raw payload for audio messages; MediaRef points at
	// media the transport stored elsewhere (images).
	Media    []byte
	MediaRef string
	MIME     string

	Timestamp time.Time
}

// CommandRouter matches and executes chat commands.
type CommandRouter interface {
	Handle(ctx context.Context, conn model.Connection, counterpart, text string) (reply string, handled bool, err error)
}

// PolicyResolver decides what to do with a content type.
type PolicyResolver interface {
	Resolve(connID string, contentType model.ContentType) policy.Decision
}

// Completer is the provider gateway port.
type Completer interface {
	Complete(ctx context.Context, chain []model.ProviderConfig, req provider.Request) (*provider.Response, error)
}

// ToolDispatcher validates and runs tool calls.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, call tool.Call, rc tool.RunContext) tool.Result
	Definitions(names []string) []tool.Definition
}

// Retriever queries a knowledge base for relevant chunks.
type Retriever interface {
	Query(ctx context.Context, knowledgeID, text string, k int) ([]knowledge.Chunk, error)
}

// Deps are the engine's collaborators. Retriever and Transcriber are
// optional; the matching features degrade when absent.
type Deps struct {
	Source      model.ConfigSource
	History     history.Store
	Commands    CommandRouter
	Policy      PolicyResolver
	Gateway     Completer
	Tools       ToolDispatcher
	Retriever   Retriever
	Transcriber transcribe.Transcriber
	Logger      log.Logger
}

// Config tunes one engine instance. Zero values fall back to the application
// defaults.
type Config struct {
	RunTimeout        time.Duration
	MaxToolIterations int
	HistoryWindow     int
	RetrievalTopK     int

	// PolicyBeforeCommands applies type rules before command matching for
	// text messages. Off by default: a user must always be able to reach
	// the builtin commands.
	PolicyBeforeCommands bool
}

// Engine orchestrates message runs.
type Engine struct {
	deps   Deps
	cfg    Config
	tracer trace.Tracer
	logger log.Logger
}

// New creates an engine.
func New(deps Deps, cfg Config) *Engine {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = config.DefaultRunTimeoutSeconds * time.Second
	}
	if cfg.MaxToolIterations <= 0 {
		cfg.MaxToolIterations = config.DefaultMaxToolIterations
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = config.DefaultHistoryWindow
	}
	if cfg.RetrievalTopK <= 0 {
		cfg.RetrievalTopK = config.DefaultRetrievalTopK
	}
	return &Engine{
		deps:   deps,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/zapagent/zapagent/internal/engine"),
		logger: deps.Logger.With("component", "engine"),
	}
}

// Handle runs one message end to end and returns the reply to send. An empty
// reply with a nil error means the message was consumed silently (ignored by
// policy, or archived while auto-reply is off). Friendly error replies are
// returned as normal replies; a non-nil error means the run could not even
// decide what to do.
func (e *Engine) Handle(ctx context.Context, msg Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RunTimeout)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "engine.run", trace.WithAttributes(
		attribute.String("connection.id", msg.ConnectionID),
		attribute.String("message.content_type", string(msg.ContentType)),
	))
	defer span.End()

	reply, err := e.run(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return reply, err
}

func (e *Engine) run(ctx context.Context, msg Message) (string, error) {
	conn, err := e.deps.Source.ConnectionByID(msg.ConnectionID)
	if err != nil {
		return "", fmt.Errorf("engine: load connection %q: %w", msg.ConnectionID, err)
	}

	text := strings.TrimSpace(msg.Text)

	// Commands run before type rules unless configured otherwise, so the
	// user can always reach #ativar even when a rule would silence text.
	if !e.cfg.PolicyBeforeCommands {
		if reply, handled := e.tryCommand(ctx, conn, msg, text); handled {
			return reply, nil
		}
	}

	decision := e.deps.Policy.Resolve(conn.ID, msg.ContentType)
	switch decision.Action {
	case model.ActionIgnore:
		e.archive(ctx, msg, model.TextEntry(model.RoleUser, placeholderText(msg, text)))
		return "", nil

	case model.ActionFixedReply:
		e.archive(ctx, msg,
			model.TextEntry(model.RoleUser, placeholderText(msg, text)),
			model.TextEntry(model.RoleAssistant, decision.FixedReply),
		)
		return decision.FixedReply, nil

	case model.ActionTranscribeOnly:
		transcript, err := e.transcribeAudio(ctx, msg)
		if err != nil {
			e.logger.Warn("transcription failed", "connection", conn.ID, "error", err)
			return errorReply(err), nil
		}
		// The transcript is the user's own words; only a user turn is stored.
		e.archive(ctx, msg, model.TextEntry(model.RoleUser, transcript))
		return transcript, nil
	}

	// Process: normalize media into a model-ready user turn.
	userEntry, userMsg, err := e.normalize(ctx, msg, text)
	if err != nil {
		e.logger.Warn("message normalization failed", "connection", conn.ID,
			"content_type", msg.ContentType, "error", err)
		return errorReply(err), nil
	}

	if e.cfg.PolicyBeforeCommands {
		if reply, handled := e.tryCommand(ctx, conn, msg, text); handled {
			return reply, nil
		}
	}

	if !conn.AutoReply {
		e.archive(ctx, msg, userEntry)
		return "", nil
	}

	if conn.ActiveAgentID == "" {
		e.logger.Warn("auto-reply on but no active agent", "connection", conn.ID)
		e.archive(ctx, msg, userEntry)
		return configReply(), nil
	}
	agent, err := e.deps.Source.AgentByID(conn.ActiveAgentID)
	if err != nil {
		e.logger.Error("active agent missing", "connection", conn.ID,
			"agent", conn.ActiveAgentID, "error", err)
		e.archive(ctx, msg, userEntry)
		return configReply(), nil
	}

	return e.modelTurn(ctx, msg, agent, userEntry, userMsg)
}

// tryCommand runs the command router and reports whether the message was
// consumed. Command exchanges are not archived: they are control traffic, not
// conversation, and would pollute the model's context window.
func (e *Engine) tryCommand(ctx context.Context, conn model.Connection, msg Message, text string) (string, bool) {
	if msg.ContentType != model.ContentText {
		return "", false
	}
	reply, handled, err := e.deps.Commands.Handle(ctx, conn, msg.Counterpart, text)
	if !handled {
		return "", false
	}
	if err != nil {
		e.logger.Error("command execution failed", "connection", conn.ID, "error", err)
		return configReply(), true
	}
	return reply, true
}

// normalize turns the inbound payload into a history entry and a provider
// message. Audio is transcribed and treated as text from here on.
func (e *Engine) normalize(ctx context.Context, msg Message, text string) (model.Entry, provider.Message, error) {
	switch msg.ContentType {
	case model.ContentAudio:
		transcript, err := e.transcribeAudio(ctx, msg)
		if err != nil {
			return model.Entry{}, provider.Message{}, err
		}
		return model.TextEntry(model.RoleUser, transcript),
			provider.Message{Role: model.RoleUser, Text: transcript}, nil

	case model.ContentImage:
		entry := model.Entry{
			Role:      model.RoleUser,
			Parts:     []model.Part{{Text: text, ImageRef: msg.MediaRef, MIME: msg.MIME}},
			CreatedAt: time.Now(),
		}
		return entry, provider.Message{
			Role: model.RoleUser, Text: text, ImageRef: msg.MediaRef, MIME: msg.MIME,
		}, nil

	default:
		body := placeholderText(msg, text)
		return model.TextEntry(model.RoleUser, body),
			provider.Message{Role: model.RoleUser, Text: body}, nil
	}
}

func (e *Engine) transcribeAudio(ctx context.Context, msg Message) (string, error) {
	if e.deps.Transcriber == nil {
		return "", errTranscriberOff
	}
	return e.deps.Transcriber.Transcribe(ctx, transcribe.Audio{Data: msg.Media, MIME: msg.MIME})
}

var errTranscriberOff = errors.New("engine: no transcriber configured")

// placeholderText substitutes a short marker for media the model cannot see.
func placeholderText(msg Message, text string) string {
	if text != "" {
		return text
	}
	switch msg.ContentType {
	case model.ContentText:
		return text
	default:
		return "[" + string(msg.ContentType) + "]"
	}
}

// modelTurn assembles context, runs the provider call with its tool loop and
// archives the concluded run.
func (e *Engine) modelTurn(ctx context.Context, msg Message, agent model.Agent, userEntry model.Entry, userMsg provider.Message) (string, error) {
	system := agent.SystemPrompt

	if agent.KnowledgeID != "" && e.deps.Retriever != nil {
		chunks, err := e.deps.Retriever.Query(ctx, agent.KnowledgeID, userMsg.Text, e.cfg.RetrievalTopK)
		if err != nil {
			// Retrieval is best-effort: answer without it rather than fail.
			e.logger.Warn("retrieval failed, continuing without context",
				"knowledge", agent.KnowledgeID, "error", err)
		} else if len(chunks) > 0 {
			system = system + "\n\n" + retrievedBlock(chunks)
		}
	}

	window := agent.HistoryWindow
	if window <= 0 {
		window = e.cfg.HistoryWindow
	}
	entries, err := e.deps.History.Window(ctx, msg.ConnectionID, msg.Counterpart, window)
	if err != nil {
		e.logger.Warn("history window read failed, continuing without history",
			"connection", msg.ConnectionID, "error", err)
	}

	msgs := contextMessages(entries)
	msgs = append(msgs, userMsg)

	specs, err := toolSpecs(e.deps.Tools.Definitions(agent.ToolNames))
	if err != nil {
		e.logger.Error("tool schema encoding failed", "agent", agent.ID, "error", err)
		e.archive(ctx, msg, userEntry)
		return configReply(), nil
	}

	maxIter := agent.MaxToolIterations
	if maxIter <= 0 {
		maxIter = e.cfg.MaxToolIterations
	}

	var toolEntries []model.Entry
	var final string

	for iter := 0; ; iter++ {
		resp, err := e.deps.Gateway.Complete(ctx, agent.Providers, provider.Request{
			System:   system,
			Messages: msgs,
			Tools:    specs,
		})
		if err != nil {
			e.logger.Error("provider chain failed", "agent", agent.ID, "error", err)
			reply := errorReply(err)
			e.archive(ctx, msg, append([]model.Entry{userEntry},
				append(toolEntries, model.TextEntry(model.RoleAssistant, reply))...)...)
			return reply, nil
		}

		if len(resp.ToolCalls) == 0 {
			final = resp.Text
			break
		}
		if iter >= maxIter {
			e.logger.Warn("tool loop cap reached", "agent", agent.ID, "iterations", iter)
			final = degradedReply()
			break
		}

		msgs = append(msgs, provider.Message{
			Role:      model.RoleAssistant,
			Text:      resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			result := e.deps.Tools.Dispatch(ctx,
				tool.Call{ID: tc.ID, Name: tc.Name, Args: tc.Args},
				tool.RunContext{
					ConnectionID: msg.ConnectionID,
					Counterpart:  msg.Counterpart,
					Timestamp:    msg.Timestamp,
				})

			msgs = append(msgs, provider.Message{
				Role:       model.RoleTool,
				Text:       result.Text(),
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			})
			toolEntries = append(toolEntries, model.TextEntry(model.RoleTool,
				fmt.Sprintf("[%s] %s", tc.Name, truncate(result.Text(), 500))))
		}
	}

	// The run concluded: persist the whole exchange in order.
	e.archive(ctx, msg, append([]model.Entry{userEntry},
		append(toolEntries, model.TextEntry(model.RoleAssistant, final))...)...)
	return final, nil
}

// archiveTimeout bounds the history write after the run itself is over.
const archiveTimeout = 10 * time.Second

// archive persists the run's entries as one atomic batch. The write runs on a
// context detached from run cancellation: a run that failed or timed out still
// leaves its exchange in the transcript. Append failures are logged; the reply
// was already decided and still goes out.
func (e *Engine) archive(ctx context.Context, msg Message, entries ...model.Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	if err := e.deps.History.AppendAll(ctx, msg.ConnectionID, msg.Counterpart, entries); err != nil {
		e.logger.Error("history append failed",
			"connection", msg.ConnectionID,
			"counterpart", msg.Counterpart,
			"entries", len(entries),
			"error", err)
	}
}

// contextMessages maps stored history onto provider messages. Tool summaries
// are replayed as assistant text: past runs' call IDs mean nothing to a new
// completion.
func contextMessages(entries []model.Entry) []provider.Message {
	msgs := make([]provider.Message, 0, len(entries)+1)
	for _, entry := range entries {
		role := entry.Role
		if role == model.RoleTool {
			role = model.RoleAssistant
		}
		m := provider.Message{Role: role, Text: entry.Text()}
		for _, p := range entry.Parts {
			if p.ImageRef != "" {
				m.ImageRef = p.ImageRef
				m.MIME = p.MIME
			}
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// retrievedBlock demarcates retrieved chunks so the model can tell injected
// knowledge from its instructions.
func retrievedBlock(chunks []knowledge.Chunk) string {
	var b strings.Builder
	b.WriteString("--- Conhecimento relevante ---\n")
	for _, c := range chunks {
		if c.Source != "" {
			fmt.Fprintf(&b, "[%s]\n", c.Source)
		}
		b.WriteString(c.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("--- Fim do conhecimento ---")
	return b.String()
}

func toolSpecs(defs []tool.Definition) ([]provider.ToolSpec, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	specs := make([]provider.ToolSpec, 0, len(defs))
	for _, def := range defs {
		params, err := def.SchemaMap()
		if err != nil {
			return nil, fmt.Errorf("engine: schema for tool %q: %w", def.Name, err)
		}
		specs = append(specs, provider.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  params,
		})
	}
	return specs, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
