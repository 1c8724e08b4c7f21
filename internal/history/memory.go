package history

import (
	"context"
	"sync"

	"github.com/zapagent/zapagent/internal/model"
)

// Memory is a mutex-guarded in-memory Store for tests and embedded use.
type Memory struct {
	mu      sync.RWMutex
	entries map[scopeKey][]model.Entry
}

type scopeKey struct {
	connID      string
	counterpart string
}

// NewMemory creates an empty in-memory history store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[scopeKey][]model.Entry)}
}

func (m *Memory) Append(_ context.Context, connID, counterpart string, entry model.Entry) error {
	if err := validateScope(connID, counterpart); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := scopeKey{connID, counterpart}
	m.entries[key] = append(m.entries[key], entry)
	return nil
}

func (m *Memory) AppendAll(_ context.Context, connID, counterpart string, entries []model.Entry) error {
	if err := validateScope(connID, counterpart); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := scopeKey{connID, counterpart}
	m.entries[key] = append(m.entries[key], entries...)
	return nil
}

func (m *Memory) Window(_ context.Context, connID, counterpart string, limit int) ([]model.Entry, error) {
	if err := validateScope(connID, counterpart); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.entries[scopeKey{connID, counterpart}]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]model.Entry, len(all))
	copy(out, all)
	return out, nil
}

func (m *Memory) Clear(_ context.Context, connID, counterpart string) error {
	if err := validateScope(connID, counterpart); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, scopeKey{connID, counterpart})
	return nil
}

func (m *Memory) Count(_ context.Context, connID, counterpart string) (int64, error) {
	if err := validateScope(connID, counterpart); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.entries[scopeKey{connID, counterpart}])), nil
}
