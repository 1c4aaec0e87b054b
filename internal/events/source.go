// Package events provides access to the external event entity. The check-in
// engine only ever reads events; the surrounding product owns them.
package events

import (
	"context"
	"sync"

	"gatecheck/internal/guestlist/models"
	"gatecheck/pkg/platform/sentinel"
)

// MemorySource is an in-memory event source for tests and dev wiring.
type MemorySource struct {
	mu     sync.RWMutex
	events map[string]models.Event
}

func NewMemorySource(seed ...models.Event) *MemorySource {
	s := &MemorySource{events: make(map[string]models.Event, len(seed))}
	for _, ev := range seed {
		s.events[ev.ID] = ev
	}
	return s
}

func (s *MemorySource) Add(ev models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = ev
}

func (s *MemorySource) Get(_ context.Context, eventID string) (models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ev, ok := s.events[eventID]; ok {
		return ev, nil
	}
	return models.Event{}, sentinel.ErrNotFound
}
