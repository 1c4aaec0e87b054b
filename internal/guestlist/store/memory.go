package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"gatecheck/internal/guestlist/models"
	"gatecheck/internal/guestlist/ports"
	"gatecheck/pkg/platform/sentinel"
)

// Memory is an in-memory guest store. It backs unit tests and dev mode and
// intentionally favors clarity over performance; the Redis store is the
// production implementation.
type Memory struct {
	mu      sync.RWMutex
	records map[string]map[string]models.GuestRecord
	subs    map[string]map[int]*memorySub
	nextSub int
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]map[string]models.GuestRecord),
		subs:    make(map[string]map[int]*memorySub),
	}
}

func (m *Memory) Put(_ context.Context, eventID string, record models.GuestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventRecords(eventID)[record.ID] = record
	m.broadcastLocked(eventID)
	return nil
}

func (m *Memory) Create(_ context.Context, eventID string, record models.GuestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.eventRecords(eventID)
	if _, ok := recs[record.ID]; ok {
		return sentinel.ErrConflict
	}
	recs[record.ID] = record
	m.broadcastLocked(eventID)
	return nil
}

func (m *Memory) Transition(_ context.Context, eventID, id string, from, to models.GuestStatus, by string, at time.Time) (models.GuestRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.eventRecords(eventID)
	rec, ok := recs[id]
	if !ok {
		return models.GuestRecord{}, sentinel.ErrNotFound
	}
	if rec.Status != from {
		return rec, sentinel.ErrConflict
	}
	rec.Status = to
	rec.Timestamp = at
	if to == models.StatusCheckedIn {
		rec.CheckedInBy = by
	} else {
		rec.CheckedInBy = ""
	}
	recs[id] = rec
	m.broadcastLocked(eventID)
	return rec, nil
}

func (m *Memory) Delete(_ context.Context, eventID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.eventRecords(eventID)
	if _, ok := recs[id]; !ok {
		return nil
	}
	delete(recs, id)
	m.broadcastLocked(eventID)
	return nil
}

func (m *Memory) Get(_ context.Context, eventID, id string) (models.GuestRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.records[eventID][id]; ok {
		return rec, nil
	}
	return models.GuestRecord{}, sentinel.ErrNotFound
}

func (m *Memory) List(_ context.Context, eventID string) ([]models.GuestRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(eventID), nil
}

// Subscribe registers a conflating subscriber and primes it with the current
// snapshot. The subscription ends when ctx is cancelled or Close is called.
func (m *Memory) Subscribe(ctx context.Context, eventID string) (ports.Subscription, error) {
	m.mu.Lock()
	sub := &memorySub{
		store:   m,
		eventID: eventID,
		ch:      make(chan []models.GuestRecord, 1),
	}
	m.nextSub++
	sub.id = m.nextSub
	if m.subs[eventID] == nil {
		m.subs[eventID] = make(map[int]*memorySub)
	}
	m.subs[eventID][sub.id] = sub
	sub.push(m.snapshotLocked(eventID))
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	return sub, nil
}

// eventRecords returns the mutable record map for an event, creating it on
// first use. Callers must hold mu.
func (m *Memory) eventRecords(eventID string) map[string]models.GuestRecord {
	recs, ok := m.records[eventID]
	if !ok {
		recs = make(map[string]models.GuestRecord)
		m.records[eventID] = recs
	}
	return recs
}

// snapshotLocked copies the current record set, ordered by id so consumers
// and tests see deterministic snapshots. Callers must hold mu.
func (m *Memory) snapshotLocked(eventID string) []models.GuestRecord {
	recs := m.records[eventID]
	out := make([]models.GuestRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) broadcastLocked(eventID string) {
	snap := m.snapshotLocked(eventID)
	for _, sub := range m.subs[eventID] {
		sub.push(snap)
	}
}

type memorySub struct {
	store   *Memory
	eventID string
	id      int
	ch      chan []models.GuestRecord
	closed  bool
}

func (s *memorySub) C() <-chan []models.GuestRecord {
	return s.ch
}

// push delivers a snapshot, replacing any undelivered one. Called only while
// holding the store mutex, which also serializes push against Close.
func (s *memorySub) push(snap []models.GuestRecord) {
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- snap:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

func (s *memorySub) Close() {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(s.store.subs[s.eventID], s.id)
	close(s.ch)
}
