package model

import "errors"

// Sentinel errors returned by ConfigSource implementations.
var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrAgentNotFound      = errors.New("agent not found")
)

// ConfigSource is the configuration surface the core reads from. It is a
// collaborator port: the host application decides where connections, agents,
// commands and rules actually live (database, admin panel, static file).
//
// Implementations must be safe for concurrent use.
type ConfigSource interface {
	// ConnectionByID returns a snapshot of the connection record.
	ConnectionByID(id string) (Connection, error)

	// AgentByID returns a snapshot of the agent record.
	AgentByID(id string) (Agent, error)

	// AgentByCode resolves an agent by its short switch code,
	// case-insensitively.
	AgentByCode(code string) (Agent, error)

	// Agents lists all configured agents, for the list command.
	Agents() []Agent

	// Commands returns the command table for a connection, defaults merged.
	Commands(connID string) []Command

	// Rules returns the message-type rules for a connection.
	Rules(connID string) []MessageRule

	// SetAutoReply flips the auto-reply flag on a connection.
	SetAutoReply(connID string, on bool) error

	// SetActiveAgent switches the connection's active agent.
	SetActiveAgent(connID, agentID string) error
}
