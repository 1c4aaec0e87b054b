// Package session binds one active event to zero-or-more host devices. A
// session owns its store subscription and projection cache; every committed
// mutation flows store -> snapshot -> projection -> every attached viewer,
// with university enrichment re-publishing a refined view when it lands.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"gatecheck/internal/checkin"
	"gatecheck/internal/guestlist/enrich"
	"gatecheck/internal/guestlist/metrics"
	"gatecheck/internal/guestlist/models"
	"gatecheck/internal/guestlist/ports"
	"gatecheck/internal/guestlist/projection"
)

// ErrAlreadyOpen rejects a second Open on a live session.
var ErrAlreadyOpen = errors.New("session already open")

// Session is one event's live check-in pipeline. The projection it holds is
// a read-through cache rebuilt from every store snapshot; the store remains
// the only source of truth.
type Session struct {
	eventID  string
	store    ports.GuestStore
	machine  *checkin.Service
	enricher *enrich.Enricher
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu         sync.Mutex
	open       bool
	viewers    map[int]*viewer
	nextViewer int
	current    projection.View
	hasView    bool

	gen    atomic.Uint64
	cancel context.CancelFunc
	group  *errgroup.Group
}

// Option configures a Session.
type Option func(*Session)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

func New(eventID string, store ports.GuestStore, machine *checkin.Service, enricher *enrich.Enricher, opts ...Option) *Session {
	s := &Session{
		eventID:  eventID,
		store:    store,
		machine:  machine,
		enricher: enricher,
		logger:   slog.Default(),
		viewers:  make(map[int]*viewer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open begins the store subscription and starts the snapshot pump. The
// session stays live until Close or until ctx is cancelled.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.open {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.open = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	sub, err := s.store.Subscribe(ctx, s.eventID)
	if err != nil {
		cancel()
		s.mu.Lock()
		s.open = false
		s.mu.Unlock()
		return err
	}

	group, gctx := errgroup.WithContext(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.group = group
	s.mu.Unlock()

	group.Go(func() error {
		s.pump(gctx, sub)
		return nil
	})
	s.metrics.SessionOpened()
	return nil
}

// pump consumes store snapshots: each one is projected and published
// immediately, then enrichment runs detached and re-publishes only if no
// newer snapshot superseded it.
func (s *Session) pump(ctx context.Context, sub ports.Subscription) {
	for snap := range sub.C() {
		gen := s.gen.Add(1)
		s.publish(projection.Build(snap, "", ""))

		records := snap
		s.group.Go(func() error {
			enriched := s.enricher.Enrich(ctx, records)
			if ctx.Err() != nil || s.gen.Load() != gen {
				// A newer snapshot owns the view now; this refinement is
				// stale and must not clobber it.
				return nil
			}
			s.publish(projection.Build(enriched, "", ""))
			return nil
		})
	}
}

// publish replaces the cached view and fans it out to every viewer,
// conflating per viewer so one slow device never stalls the rest.
func (s *Session) publish(view projection.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return
	}
	s.current = view
	s.hasView = true
	for _, v := range s.viewers {
		v.push(view)
	}
	s.metrics.IncSnapshot()
}

// Attach registers a viewer and primes it with the latest view. The returned
// detach func is idempotent and must be called when the device disconnects.
func (s *Session) Attach() (<-chan projection.View, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := &viewer{ch: make(chan projection.View, 1)}
	s.nextViewer++
	id := s.nextViewer
	s.viewers[id] = v
	if s.hasView {
		v.push(s.current)
	}

	var once sync.Once
	detach := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.viewers, id)
			v.close()
		})
	}
	return v.ch, detach
}

// View computes an on-demand projection with the caller's bucket and query,
// reading through to the store so a fresh device sees current state before
// the first subscription snapshot arrives.
func (s *Session) View(ctx context.Context, bucket models.GuestStatus, query string) (projection.View, error) {
	records, err := s.store.List(ctx, s.eventID)
	if err != nil {
		return projection.View{}, err
	}
	return projection.Build(s.enricher.Enrich(ctx, records), bucket, query), nil
}

// Close cancels the subscription and stops in-flight enrichment. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return
	}
	s.open = false
	cancel, group := s.cancel, s.group
	s.mu.Unlock()

	cancel()
	_ = group.Wait()

	s.mu.Lock()
	for id, v := range s.viewers {
		delete(s.viewers, id)
		v.close()
	}
	s.mu.Unlock()
	s.metrics.SessionClosed()
}

// EventID returns the event this session is bound to.
func (s *Session) EventID() string {
	return s.eventID
}

// Pass-throughs to the state machine; the session only pins the event id.

func (s *Session) Invite(ctx context.Context, p checkin.InviteParams) (models.GuestRecord, error) {
	return s.machine.Invite(ctx, s.eventID, p)
}

func (s *Session) Request(ctx context.Context, username string) (models.GuestRecord, error) {
	return s.machine.Request(ctx, s.eventID, username)
}

func (s *Session) Approve(ctx context.Context, guestID, by string) (models.GuestRecord, error) {
	return s.machine.Approve(ctx, s.eventID, guestID, by)
}

func (s *Session) CheckIn(ctx context.Context, guestID, operator string) (models.GuestRecord, error) {
	return s.machine.CheckIn(ctx, s.eventID, guestID, operator)
}

func (s *Session) Remove(ctx context.Context, guestID string, confirmed bool) error {
	return s.machine.Remove(ctx, s.eventID, guestID, confirmed)
}

func (s *Session) Scan(ctx context.Context, code, operator string) (checkin.ScanResult, error) {
	return s.machine.Scan(ctx, s.eventID, code, operator)
}

// viewer is one attached host device. Its channel is conflating: an
// undelivered view is replaced, never queued.
type viewer struct {
	ch     chan projection.View
	closed bool
}

// push is only called while holding the session mutex, which serializes it
// against close.
func (v *viewer) push(view projection.View) {
	if v.closed {
		return
	}
	for {
		select {
		case v.ch <- view:
			return
		default:
			select {
			case <-v.ch:
			default:
			}
		}
	}
}

func (v *viewer) close() {
	if v.closed {
		return
	}
	v.closed = true
	close(v.ch)
}
