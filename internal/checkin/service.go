// Package checkin implements the guest-status state machine: the single
// authority on invite, approve, check-in, remove, and scan transitions.
// Guards are enforced with the store's conditional writes, so concurrent
// operators at the same door resolve every race to one winner.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gatecheck/internal/guestlist/metrics"
	"gatecheck/internal/guestlist/models"
	"gatecheck/internal/guestlist/ports"
	"gatecheck/internal/identity"
	"gatecheck/pkg/platform/sentinel"
)

// Service is the check-in state machine. It validates transition legality,
// applies the transition through the store, and emits notification intents
// without performing delivery itself.
type Service struct {
	store    ports.GuestStore
	events   ports.Events
	resolver *identity.Resolver
	notifier ports.Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithNotifier(n ports.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source; tests pin it to exercise the
// pre-start versus walk-in scan branches.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store ports.GuestStore, events ports.Events, resolver *identity.Resolver, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("guest store is required")
	}
	if events == nil {
		return nil, fmt.Errorf("event source is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("identity resolver is required")
	}

	svc := &Service{
		store:    store,
		events:   events,
		resolver: resolver,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// InviteParams describes a host-initiated invite: either a username to
// resolve against the directory, or manual fields for a guest with no
// account.
type InviteParams struct {
	Username string

	Name         string
	Gender       string
	Age          int
	UniversityID string

	InvitedBy string
}

// Invite adds a guest with status Invited. An identity that already holds an
// Invited record is rejected with ErrDuplicateInvite, a checked-in one with
// ErrAlreadyCheckedIn, and a Requested one is routed through the approve
// transition instead.
func (s *Service) Invite(ctx context.Context, eventID string, p InviteParams) (models.GuestRecord, error) {
	rec, known, err := s.buildInvitee(ctx, p)
	if err != nil {
		return models.GuestRecord{}, err
	}

	existing, err := s.store.Get(ctx, eventID, rec.ID)
	switch {
	case err == nil:
		return s.inviteExisting(ctx, eventID, existing, p.InvitedBy)
	case errors.Is(err, sentinel.ErrNotFound):
		// fresh invite below
	default:
		return models.GuestRecord{}, err
	}

	if err := s.store.Create(ctx, eventID, rec); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost a race against a concurrent invite of the same identity.
			s.metrics.IncTransition("invite", "duplicate")
			return models.GuestRecord{}, ErrDuplicateInvite
		}
		return models.GuestRecord{}, err
	}
	s.metrics.IncTransition("invite", "ok")
	if known {
		s.notify(ctx, rec.ID, eventID, ports.KindInvited)
	}
	return rec, nil
}

// inviteExisting applies the invite guards to a record that is already on
// the list.
func (s *Service) inviteExisting(ctx context.Context, eventID string, existing models.GuestRecord, by string) (models.GuestRecord, error) {
	switch existing.Status {
	case models.StatusInvited:
		s.metrics.IncTransition("invite", "duplicate")
		return models.GuestRecord{}, ErrDuplicateInvite
	case models.StatusCheckedIn:
		s.metrics.IncTransition("invite", "already_checked_in")
		return models.GuestRecord{}, ErrAlreadyCheckedIn
	case models.StatusRequested:
		return s.Approve(ctx, eventID, existing.ID, by)
	}
	return models.GuestRecord{}, fmt.Errorf("%w: unexpected status %q", sentinel.ErrInvalidState, existing.Status)
}

// Request records a guest's self-initiated ask to join an invite-only event.
// Open events have no request step; guests there simply scan in.
func (s *Service) Request(ctx context.Context, eventID, username string) (models.GuestRecord, error) {
	ev, err := s.events.Get(ctx, eventID)
	if err != nil {
		return models.GuestRecord{}, err
	}
	if !ev.IsInviteOnly {
		return models.GuestRecord{}, fmt.Errorf("%w: requests only apply to invite-only events", ErrInvalidTransition)
	}

	id, err := s.resolver.ResolveByUsername(ctx, username)
	if err != nil {
		return models.GuestRecord{}, err
	}

	rec := recordFromIdentity(id, models.StatusRequested, "", s.now())
	if err := s.store.Create(ctx, eventID, rec); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return models.GuestRecord{}, ErrDuplicateInvite
		}
		return models.GuestRecord{}, err
	}
	s.metrics.IncTransition("request", "ok")
	return rec, nil
}

// Approve moves a Requested guest to Invited. Legal only on invite-only
// events; approval does not imply check-in.
func (s *Service) Approve(ctx context.Context, eventID, guestID, by string) (models.GuestRecord, error) {
	ev, err := s.events.Get(ctx, eventID)
	if err != nil {
		return models.GuestRecord{}, err
	}
	if !ev.IsInviteOnly {
		s.metrics.IncTransition("approve", "rejected")
		return models.GuestRecord{}, fmt.Errorf("%w: approvals only apply to invite-only events", ErrInvalidTransition)
	}

	rec, err := s.store.Transition(ctx, eventID, guestID, models.StatusRequested, models.StatusInvited, by, s.now())
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncTransition("approve", "rejected")
			if rec.Status == models.StatusCheckedIn {
				return models.GuestRecord{}, ErrAlreadyCheckedIn
			}
			return models.GuestRecord{}, fmt.Errorf("%w: approve requires a requested guest", ErrInvalidTransition)
		}
		return models.GuestRecord{}, err
	}
	s.metrics.IncTransition("approve", "ok")
	s.notify(ctx, guestID, eventID, ports.KindApproved)
	return rec, nil
}

// CheckIn admits an Invited guest at the door. A second distinct attempt on
// an already checked-in record is rejected with ErrAlreadyCheckedIn; the
// store's compare-and-set guarantees exactly one winner under concurrency.
func (s *Service) CheckIn(ctx context.Context, eventID, guestID, operator string) (models.GuestRecord, error) {
	rec, err := s.store.Transition(ctx, eventID, guestID, models.StatusInvited, models.StatusCheckedIn, operator, s.now())
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			if rec.Status == models.StatusCheckedIn {
				s.metrics.IncTransition("check_in", "already_checked_in")
				return models.GuestRecord{}, ErrAlreadyCheckedIn
			}
			s.metrics.IncTransition("check_in", "rejected")
			return models.GuestRecord{}, fmt.Errorf("%w: check-in requires an invited guest", ErrInvalidTransition)
		}
		return models.GuestRecord{}, err
	}
	s.metrics.IncTransition("check_in", "ok")
	return rec, nil
}

// Remove deletes a guest record. Checked-in guests require confirmed=true;
// invited and requested guests delete freely. Removing an absent record
// succeeds as a no-op.
func (s *Service) Remove(ctx context.Context, eventID, guestID string, confirmed bool) error {
	rec, err := s.store.Get(ctx, eventID, guestID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Status == models.StatusCheckedIn && !confirmed {
		s.metrics.IncTransition("remove", "needs_confirmation")
		return ErrConfirmationRequired
	}
	if err := s.store.Delete(ctx, eventID, guestID); err != nil {
		return err
	}
	s.metrics.IncTransition("remove", "ok")
	return nil
}

// ScanOutcome labels the user-facing result of a successful scan.
type ScanOutcome string

const (
	// ScanCheckedIn: an existing invited guest was admitted.
	ScanCheckedIn ScanOutcome = "checked_in"
	// ScanInvited: an unknown identity was added before the event started;
	// admission happens on a later scan.
	ScanInvited ScanOutcome = "invited"
	// ScanWalkedIn: an unknown identity was added and admitted in one step
	// after the event started.
	ScanWalkedIn ScanOutcome = "walked_in"
)

// ScanResult is a successful scan's record and outcome.
type ScanResult struct {
	Record  models.GuestRecord
	Outcome ScanOutcome
}

// Scan drives the resolver into the state machine: resolve the code, then
// check in an existing guest or create a record per the walk-in rules.
// Unknown identities at invite-only events are rejected with
// ErrNotOnGuestlist and nothing is created.
func (s *Service) Scan(ctx context.Context, eventID, code, operator string) (ScanResult, error) {
	start := s.now()
	defer func() {
		s.metrics.ObserveScanDuration(time.Since(start))
	}()

	id, err := s.resolver.ResolveByCode(ctx, code)
	if err != nil {
		s.metrics.IncScan("unresolved")
		return ScanResult{}, err
	}
	ev, err := s.events.Get(ctx, eventID)
	if err != nil {
		return ScanResult{}, err
	}

	// One retry: losing the Create race below means another device just
	// added this identity, so the existing-record path applies.
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.store.Get(ctx, eventID, id.ID)
		switch {
		case err == nil:
			return s.scanExisting(ctx, eventID, existing, operator)
		case errors.Is(err, sentinel.ErrNotFound):
			// no record yet
		default:
			return ScanResult{}, err
		}

		if ev.IsInviteOnly {
			s.metrics.IncScan("not_on_guestlist")
			return ScanResult{}, ErrNotOnGuestlist
		}

		res, err := s.scanCreate(ctx, eventID, ev, id, operator)
		if errors.Is(err, sentinel.ErrConflict) {
			continue
		}
		return res, err
	}
	return ScanResult{}, sentinel.ErrConflict
}

// scanExisting admits a guest that already has a record.
func (s *Service) scanExisting(ctx context.Context, eventID string, rec models.GuestRecord, operator string) (ScanResult, error) {
	if rec.Status == models.StatusCheckedIn {
		s.metrics.IncScan("already_checked_in")
		return ScanResult{}, ErrAlreadyCheckedIn
	}
	updated, err := s.CheckIn(ctx, eventID, rec.ID, operator)
	if err != nil {
		s.metrics.IncScan("rejected")
		return ScanResult{}, err
	}
	s.metrics.IncScan(string(ScanCheckedIn))
	s.notify(ctx, rec.ID, eventID, ports.KindCheckedIn)
	return ScanResult{Record: updated, Outcome: ScanCheckedIn}, nil
}

// scanCreate adds a record for a resolved identity with none on file: Invited
// before the event starts, CheckedIn directly once it has (walk-in).
func (s *Service) scanCreate(ctx context.Context, eventID string, ev models.Event, id models.Identity, operator string) (ScanResult, error) {
	now := s.now()
	if ev.Started(now) {
		rec := recordFromIdentity(id, models.StatusCheckedIn, operator, now)
		if err := s.store.Create(ctx, eventID, rec); err != nil {
			return ScanResult{}, err
		}
		s.metrics.IncScan(string(ScanWalkedIn))
		s.notify(ctx, id.ID, eventID, ports.KindCheckedIn)
		return ScanResult{Record: rec, Outcome: ScanWalkedIn}, nil
	}

	rec := recordFromIdentity(id, models.StatusInvited, "", now)
	if err := s.store.Create(ctx, eventID, rec); err != nil {
		return ScanResult{}, err
	}
	s.metrics.IncScan(string(ScanInvited))
	s.notify(ctx, id.ID, eventID, ports.KindInvited)
	return ScanResult{Record: rec, Outcome: ScanInvited}, nil
}

// buildInvitee resolves invite params into a fresh record. known reports
// whether the guest maps to a directory identity that can be notified.
func (s *Service) buildInvitee(ctx context.Context, p InviteParams) (models.GuestRecord, bool, error) {
	if p.Username != "" {
		id, err := s.resolver.ResolveByUsername(ctx, p.Username)
		if err != nil {
			return models.GuestRecord{}, false, err
		}
		rec := recordFromIdentity(id, models.StatusInvited, "", s.now())
		rec.InvitedBy = p.InvitedBy
		return rec, true, nil
	}

	if p.Name == "" {
		return models.GuestRecord{}, false, fmt.Errorf("%w: guest name is required", sentinel.ErrInvalidState)
	}
	return models.GuestRecord{
		ID:           uuid.NewString(),
		Name:         p.Name,
		Gender:       p.Gender,
		Age:          p.Age,
		UniversityID: p.UniversityID,
		Status:       models.StatusInvited,
		InvitedBy:    p.InvitedBy,
		Timestamp:    s.now(),
	}, false, nil
}

func recordFromIdentity(id models.Identity, status models.GuestStatus, checkedInBy string, at time.Time) models.GuestRecord {
	return models.GuestRecord{
		ID:           id.ID,
		Name:         id.Name,
		Gender:       id.Gender,
		Age:          id.Age,
		UniversityID: id.UniversityID,
		Status:       status,
		CheckedInBy:  checkedInBy,
		Timestamp:    at,
	}
}

func (s *Service) notify(ctx context.Context, toUserID, eventID string, kind ports.NotificationKind) {
	if s.notifier == nil || toUserID == "" {
		return
	}
	s.notifier.Notify(ctx, ports.Notification{
		ToUserID:  toUserID,
		EventID:   eventID,
		Kind:      kind,
		Timestamp: s.now(),
	})
}
