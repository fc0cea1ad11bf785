// Package session provides persistence backends for the runtime's Store
// interface: an in-memory store for tests and short-lived embedders, and a
// JSON file store for durable sessions.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	agentcore "github.com/arcline/agentcore"
)

// MemoryStore keeps sessions in a mutex-protected map. Sessions are cloned
// on save and load so callers can never mutate store state.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*agentcore.Session
}

var _ agentcore.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*agentcore.Session)}
}

// Save persists a clone of the session.
func (m *MemoryStore) Save(_ context.Context, s *agentcore.Session) error {
	if s == nil {
		return fmt.Errorf("session is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

// Load retrieves a session by ID as a clone.
func (m *MemoryStore) Load(_ context.Context, id string) (*agentcore.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", agentcore.ErrSessionNotFound, id)
	}
	return s.Clone(), nil
}

// List returns all stored session IDs, sorted.
func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a session by ID.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", agentcore.ErrSessionNotFound, id)
	}
	delete(m.sessions, id)
	return nil
}
