// Package model defines the configuration-surface records shared by the
// zapagent core: connections, agents, provider configs, commands and
// message-type rules.
//
// The core treats these records as read-only snapshots. They are loaded once
// per message run and never mutated in place; the only writes flow through
// the ConfigSource setters (auto-reply flag, active agent), which exist for
// the command router.
package model

import "time"

// ConnectionStatus describes the lifecycle state of a messaging connection.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// Connection is one messaging account managed by the supervisor.
type Connection struct {
	ID            string
	Name          string
	Address       string
	Status        ConnectionStatus
	Active        bool
	AutoReply     bool
	ActiveAgentID string

	// Pairing holds opaque transport pairing/session material. The core
	// never interprets it; the transport round-trips it across reconnects.
	Pairing []byte
}

// Agent is a configured AI persona: prompt, provider chain, tools and
// optional knowledge base.
type Agent struct {
	ID           string
	Name         string
	Code         string
	Description  string
	Role         string
	SystemPrompt string

	// Providers is the ordered fallback chain, primary first.
	Providers []ProviderConfig

	// ToolNames lists the tool definitions this agent may call.
	ToolNames []string

	// KnowledgeID selects the knowledge base for retrieval. Empty disables
	// retrieval for this agent.
	KnowledgeID string

	// MaxToolIterations bounds the tool loop for a single run. Zero means
	// the engine default.
	MaxToolIterations int

	// HistoryWindow is the number of recent entries assembled into context.
	// Zero means the engine default.
	HistoryWindow int
}

// ProviderKind selects a provider adapter.
type ProviderKind string

const (
	ProviderOpenAI ProviderKind = "openai"
	ProviderOllama ProviderKind = "ollama"
	ProviderGemini ProviderKind = "gemini"
)

// ProviderConfig is one entry of an agent's fallback chain.
//
// The openai kind covers every OpenAI-compatible endpoint (OpenRouter,
// LM Studio, llama.cpp server) via BaseURL.
type ProviderConfig struct {
	Kind        ProviderKind
	Name        string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// CommandID identifies a builtin command behavior.
type CommandID string

const (
	CmdActivate    CommandID = "activate"
	CmdDeactivate  CommandID = "deactivate"
	CmdClear       CommandID = "clear"
	CmdHelp        CommandID = "help"
	CmdStatus      CommandID = "status"
	CmdListAgents  CommandID = "list_agents"
	CmdSwitchAgent CommandID = "switch_agent"
)

// Command binds a chat trigger to a builtin behavior for one connection.
// SwitchAgent uses its trigger as a prefix; all others match exactly.
type Command struct {
	ConnectionID string
	CommandID    CommandID
	Trigger      string
	Enabled      bool
	Response     string
	Description  string
}

// ContentType classifies an inbound message payload.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentAudio    ContentType = "audio"
	ContentImage    ContentType = "image"
	ContentVideo    ContentType = "video"
	ContentSticker  ContentType = "sticker"
	ContentLocation ContentType = "location"
	ContentDocument ContentType = "document"
)

// RuleAction is what the policy does with a message of a given content type.
type RuleAction string

const (
	ActionProcess        RuleAction = "process"
	ActionIgnore         RuleAction = "ignore"
	ActionFixedReply     RuleAction = "fixed_reply"
	ActionTranscribeOnly RuleAction = "transcribe_only"
)

// MessageRule overrides the default (process) action for one content type on
// one connection.
type MessageRule struct {
	ConnectionID string
	ContentType  ContentType
	Action       RuleAction
	FixedReply   string
}

// Role identifies the author of a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Part is one piece of a message: text, or a reference to media the
// transport stored elsewhere.
type Part struct {
	Text     string
	ImageRef string
	AudioRef string
	MIME     string
}

// Entry is one turn of a conversation as stored in history.
type Entry struct {
	Role      Role
	Parts     []Part
	CreatedAt time.Time
}

// Text returns the concatenated text parts of the entry.
func (e Entry) Text() string {
	var out string
	for _, p := range e.Parts {
		out += p.Text
	}
	return out
}

// TextEntry builds a single-part text entry with the given role.
func TextEntry(role Role, text string) Entry {
	return Entry{Role: role, Parts: []Part{{Text: text}}, CreatedAt: time.Now()}
}
