package model

import (
	"strings"
	"sync"
)

// MemorySource is an in-memory ConfigSource for tests and embedded use.
// All methods are safe for concurrent use.
type MemorySource struct {
	mu          sync.RWMutex
	connections map[string]Connection
	agents      map[string]Agent
	commands    map[string][]Command
	rules       map[string][]MessageRule
}

// NewMemorySource creates an empty in-memory configuration surface.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		connections: make(map[string]Connection),
		agents:      make(map[string]Agent),
		commands:    make(map[string][]Command),
		rules:       make(map[string][]MessageRule),
	}
}

// PutConnection stores or replaces a connection record.
func (s *MemorySource) PutConnection(c Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[c.ID] = c
}

// PutAgent stores or replaces an agent record.
func (s *MemorySource) PutAgent(a Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
}

// PutCommands sets the command overrides for a connection.
func (s *MemorySource) PutCommands(connID string, cmds []Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[connID] = cmds
}

// PutRules sets the message-type rules for a connection.
func (s *MemorySource) PutRules(connID string, rules []MessageRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[connID] = rules
}

func (s *MemorySource) ConnectionByID(id string) (Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connections[id]
	if !ok {
		return Connection{}, ErrConnectionNotFound
	}
	return c, nil
}

// Connections lists all stored connection records.
func (s *MemorySource) Connections() []Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Connection, 0, len(s.connections))
	for _, c := range s.connections {
		out = append(out, c)
	}
	return out
}

func (s *MemorySource) AgentByID(id string) (Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return Agent{}, ErrAgentNotFound
	}
	return a, nil
}

func (s *MemorySource) AgentByCode(code string) (Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.agents {
		if strings.EqualFold(a.Code, code) {
			return a, nil
		}
	}
	return Agent{}, ErrAgentNotFound
}

func (s *MemorySource) Agents() []Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	return out
}

func (s *MemorySource) Commands(connID string) []Command {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return MergeCommands(connID, s.commands[connID])
}

func (s *MemorySource) Rules(connID string) []MessageRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MessageRule, len(s.rules[connID]))
	copy(out, s.rules[connID])
	return out
}

func (s *MemorySource) SetAutoReply(connID string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[connID]
	if !ok {
		return ErrConnectionNotFound
	}
	c.AutoReply = on
	s.connections[connID] = c
	return nil
}

func (s *MemorySource) SetActiveAgent(connID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[connID]
	if !ok {
		return ErrConnectionNotFound
	}
	if _, ok := s.agents[agentID]; !ok {
		return ErrAgentNotFound
	}
	c.ActiveAgentID = agentID
	s.connections[connID] = c
	return nil
}
