package session

import (
	"context"
	"log/slog"
	"sync"

	"gatecheck/internal/checkin"
	"gatecheck/internal/guestlist/enrich"
	"gatecheck/internal/guestlist/metrics"
	"gatecheck/internal/guestlist/ports"
)

// Manager holds at most one open session per event. A session is always
// bound to exactly one event; switching events closes one session and opens
// another.
type Manager struct {
	store    ports.GuestStore
	events   ports.Events
	machine  *checkin.Service
	enricher *enrich.Enricher
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithManagerMetrics(mx *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mx
	}
}

func NewManager(store ports.GuestStore, events ports.Events, machine *checkin.Service, enricher *enrich.Enricher, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		events:   events,
		machine:  machine,
		enricher: enricher,
		logger:   slog.Default(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the open session for an event, opening one on first use. The
// event must exist; unknown ids surface the event source's ErrNotFound.
func (m *Manager) Get(ctx context.Context, eventID string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[eventID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	if _, err := m.events.Get(ctx, eventID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Re-check: another device may have opened the session while we were
	// validating the event.
	if s, ok := m.sessions[eventID]; ok {
		return s, nil
	}
	s := New(eventID, m.store, m.machine, m.enricher, WithLogger(m.logger), WithMetrics(m.metrics))
	// The session outlives the request that opened it; only Close or
	// CloseAll ends it.
	if err := s.Open(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}
	m.sessions[eventID] = s
	return s, nil
}

// Release closes and forgets the session for an event. No-op when none is
// open.
func (m *Manager) Release(eventID string) {
	m.mu.Lock()
	s, ok := m.sessions[eventID]
	delete(m.sessions, eventID)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// CloseAll shuts every open session down; called on server shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
