package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/comigor/mentorchat/internal/logger"
	"github.com/comigor/mentorchat/internal/transcript"
)

// Manager creates and looks up sessions.
type Manager struct {
	gen   Generator
	store Store
	opts  Options

	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
}

// NewManager returns a manager sharing gen, store and opts across sessions.
// store may be nil.
func NewManager(gen Generator, store Store, opts Options) *Manager {
	if opts.Window < 1 {
		opts.Window = 20
	}
	return &Manager{
		gen:      gen,
		store:    store,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session. An empty label uses the configured default.
func (m *Manager) Create(label string) *Session {
	s := newSession(uuid.NewString(), label, m.gen, m.store, m.opts)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.order = append(m.order, s.id)
	m.mu.Unlock()

	logger.Session(s.id).Info("session created", "label", s.label)
	return s
}

// Get returns a live session, hydrating it from the store when it only exists there.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}
	if m.store == nil {
		return nil, ErrSessionNotFound
	}

	entries, err := m.store.List(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrSessionNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	s = newSession(id, restoredLabel(entries), m.gen, m.store, m.opts)
	s.load(entries)
	m.sessions[id] = s
	m.order = append(m.order, id)
	logger.Session(id).Info("session restored from history", "entries", len(entries), "label", s.label)
	return s, nil
}

// restoredLabel returns the label of the most recent labelled agent entry, or ""
// when the history has none.
func restoredLabel(entries []transcript.Entry) string {
	for i := len(entries) - 1; i >= 0; i-- {
		if e := entries[i]; e.Sender == transcript.SenderAgent && e.AgentLabel != "" {
			return e.AgentLabel
		}
	}
	return ""
}

// List returns live session ids followed by persisted ones not yet loaded.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	ids := append([]string(nil), m.order...)
	m.mu.RUnlock()

	if m.store == nil {
		return ids, nil
	}
	stored, err := m.store.Sessions(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range stored {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Reset clears a session's transcript and history.
func (m *Manager) Reset(ctx context.Context, id string) error {
	s, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.Reset(ctx)
}
