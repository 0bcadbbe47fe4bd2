package session

import (
	"context"
	"fmt"
	"sync"
)

// Manager owns one Actor per live session id, lazily constructed from the
// Entry Store's persisted Session row (spec §3: "Session Actors [are] in
// memory for the process lifetime, with their state re-derivable from
// persistent stores"). Grounded on internal/session/processor.go's
// Processor, which keeps an equivalent map[string]*sessionState.
type Manager struct {
	deps Deps

	mu     sync.Mutex
	actors map[string]*Actor
}

// NewManager creates an empty Manager over deps.
func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, actors: make(map[string]*Actor)}
}

// EnsureStarted returns the Actor for sessionID, loading the persisted
// Session and constructing a fresh Actor (queues empty, status idle) on
// first use.
func (m *Manager) EnsureStarted(ctx context.Context, sessionID string) (*Actor, error) {
	m.mu.Lock()
	if a, ok := m.actors[sessionID]; ok {
		m.mu.Unlock()
		return a, nil
	}
	m.mu.Unlock()

	sess, err := m.deps.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session: ensure started: %w", err)
	}

	a := newActor(sessionID, sess, m.deps)

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.actors[sessionID]; ok {
		return existing, nil
	}
	m.actors[sessionID] = a
	return a, nil
}

// Get returns an already-started Actor without touching the store.
func (m *Manager) Get(sessionID string) (*Actor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actors[sessionID]
	return a, ok
}

// Forget drops the in-memory Actor for sessionID. It does not stop an
// in-flight turn; call Actor.Stop first if that matters to the caller.
func (m *Manager) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.actors, sessionID)
}
