package checkin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"gatecheck/internal/events"
	"gatecheck/internal/guestlist/models"
	"gatecheck/internal/guestlist/ports"
	"gatecheck/internal/guestlist/store"
	"gatecheck/internal/identity"
	"gatecheck/pkg/platform/sentinel"
)

// captureNotifier records emitted intents; the engine never waits on
// delivery, so a slice is all the fake needs.
type captureNotifier struct {
	mu   sync.Mutex
	sent []ports.Notification
}

func (c *captureNotifier) Notify(_ context.Context, n ports.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
}

func (c *captureNotifier) kinds() []ports.NotificationKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ports.NotificationKind, 0, len(c.sent))
	for _, n := range c.sent {
		out = append(out, n.Kind)
	}
	return out
}

type CheckinServiceSuite struct {
	suite.Suite
	store    *store.Memory
	events   *events.MemorySource
	dir      *identity.MemoryDirectory
	notifier *captureNotifier
	svc      *Service
	clock    time.Time
}

func TestCheckinServiceSuite(t *testing.T) {
	suite.Run(t, new(CheckinServiceSuite))
}

var eventStart = time.Date(2026, 4, 18, 21, 0, 0, 0, time.UTC)

func (s *CheckinServiceSuite) SetupTest() {
	s.store = store.NewMemory()
	s.events = events.NewMemorySource(
		models.Event{ID: "open-mic", Title: "Open Mic Night", StartsAt: eventStart, EndsAt: eventStart.Add(4 * time.Hour)},
		models.Event{ID: "gala", Title: "Spring Gala", StartsAt: eventStart, EndsAt: eventStart.Add(5 * time.Hour), IsInviteOnly: true},
	)
	s.dir = identity.NewMemoryDirectory()
	s.dir.AddIdentity("code-U1", "ana", models.Identity{ID: "U1", Name: "Ana", Gender: "f", UniversityID: "uni-1"})
	s.dir.AddIdentity("code-U2", "bruno", models.Identity{ID: "U2", Name: "Bruno", Gender: "m"})
	s.notifier = &captureNotifier{}
	s.clock = eventStart.Add(-2 * time.Hour)

	var err error
	s.svc, err = New(s.store, s.events, identity.NewResolver(s.dir),
		WithNotifier(s.notifier),
		WithClock(func() time.Time { return s.clock }),
	)
	s.Require().NoError(err)
}

func (s *CheckinServiceSuite) TestNew() {
	resolver := identity.NewResolver(s.dir)

	s.Run("nil store returns error", func() {
		_, err := New(nil, s.events, resolver)
		s.Error(err)
	})

	s.Run("nil event source returns error", func() {
		_, err := New(s.store, nil, resolver)
		s.Error(err)
	})

	s.Run("nil resolver returns error", func() {
		_, err := New(s.store, s.events, nil)
		s.Error(err)
	})
}

func (s *CheckinServiceSuite) TestInvite() {
	ctx := context.Background()

	s.Run("manual invite creates an invited record with a generated id", func() {
		rec, err := s.svc.Invite(ctx, "open-mic", InviteParams{Name: "Walk In Wanda", InvitedBy: "host"})
		s.Require().NoError(err)
		s.NotEmpty(rec.ID)
		s.Equal(models.StatusInvited, rec.Status)
		s.Equal("host", rec.InvitedBy)
		s.Empty(rec.CheckedInBy)
	})

	s.Run("manual invite requires a name", func() {
		_, err := s.svc.Invite(ctx, "open-mic", InviteParams{InvitedBy: "host"})
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("resolved invite uses the identity id and notifies the guest", func() {
		rec, err := s.svc.Invite(ctx, "open-mic", InviteParams{Username: "ana", InvitedBy: "host"})
		s.Require().NoError(err)
		s.Equal("U1", rec.ID)
		s.Equal("Ana", rec.Name)
		s.Contains(s.notifier.kinds(), ports.KindInvited)
	})

	s.Run("second invite of the same identity is a duplicate", func() {
		_, err := s.svc.Invite(ctx, "open-mic", InviteParams{Username: "ana", InvitedBy: "host"})
		s.Require().ErrorIs(err, ErrDuplicateInvite)
	})

	s.Run("unknown username surfaces ErrNotFound", func() {
		_, err := s.svc.Invite(ctx, "open-mic", InviteParams{Username: "ghost"})
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("inviting a checked-in guest is rejected", func() {
		_, err := s.store.Transition(ctx, "open-mic", "U1", models.StatusInvited, models.StatusCheckedIn, "door-a", s.clock)
		s.Require().NoError(err)

		_, err = s.svc.Invite(ctx, "open-mic", InviteParams{Username: "ana"})
		s.Require().ErrorIs(err, ErrAlreadyCheckedIn)
	})

	s.Run("inviting a requested guest routes to approval", func() {
		_, err := s.svc.Request(ctx, "gala", "bruno")
		s.Require().NoError(err)

		rec, err := s.svc.Invite(ctx, "gala", InviteParams{Username: "bruno", InvitedBy: "host"})
		s.Require().NoError(err)
		s.Equal(models.StatusInvited, rec.Status)
		s.Contains(s.notifier.kinds(), ports.KindApproved)
	})
}

func (s *CheckinServiceSuite) TestRequest() {
	ctx := context.Background()

	s.Run("creates a requested record on an invite-only event", func() {
		rec, err := s.svc.Request(ctx, "gala", "ana")
		s.Require().NoError(err)
		s.Equal(models.StatusRequested, rec.Status)
	})

	s.Run("duplicate request is rejected", func() {
		_, err := s.svc.Request(ctx, "gala", "ana")
		s.Require().ErrorIs(err, ErrDuplicateInvite)
	})

	s.Run("open events have no request step", func() {
		_, err := s.svc.Request(ctx, "open-mic", "ana")
		s.Require().ErrorIs(err, ErrInvalidTransition)
	})
}

func (s *CheckinServiceSuite) TestApprove() {
	ctx := context.Background()

	s.Run("moves a requested guest to invited and notifies", func() {
		_, err := s.svc.Request(ctx, "gala", "ana")
		s.Require().NoError(err)

		rec, err := s.svc.Approve(ctx, "gala", "U1", "host")
		s.Require().NoError(err)
		s.Equal(models.StatusInvited, rec.Status)
		s.Empty(rec.CheckedInBy)
		s.Contains(s.notifier.kinds(), ports.KindApproved)
	})

	s.Run("approving a non-requested guest is rejected", func() {
		_, err := s.svc.Approve(ctx, "gala", "U1", "host")
		s.Require().ErrorIs(err, ErrInvalidTransition)
	})

	s.Run("approving a checked-in guest reports already checked in", func() {
		_, err := s.store.Transition(ctx, "gala", "U1", models.StatusInvited, models.StatusCheckedIn, "door-a", s.clock)
		s.Require().NoError(err)

		_, err = s.svc.Approve(ctx, "gala", "U1", "host")
		s.Require().ErrorIs(err, ErrAlreadyCheckedIn)
	})

	s.Run("only legal on invite-only events", func() {
		_, err := s.svc.Approve(ctx, "open-mic", "U2", "host")
		s.Require().ErrorIs(err, ErrInvalidTransition)
	})

	s.Run("unknown event surfaces ErrNotFound", func() {
		_, err := s.svc.Approve(ctx, "no-such-event", "U1", "host")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *CheckinServiceSuite) TestCheckIn() {
	ctx := context.Background()

	s.Run("admits an invited guest and records the operator", func() {
		_, err := s.svc.Invite(ctx, "open-mic", InviteParams{Username: "ana"})
		s.Require().NoError(err)

		rec, err := s.svc.CheckIn(ctx, "open-mic", "U1", "door-a")
		s.Require().NoError(err)
		s.Equal(models.StatusCheckedIn, rec.Status)
		s.Equal("door-a", rec.CheckedInBy)
		s.Equal(s.clock, rec.Timestamp)
	})

	s.Run("a second distinct attempt is rejected", func() {
		_, err := s.svc.CheckIn(ctx, "open-mic", "U1", "door-b")
		s.Require().ErrorIs(err, ErrAlreadyCheckedIn)

		rec, err := s.store.Get(ctx, "open-mic", "U1")
		s.Require().NoError(err)
		s.Equal("door-a", rec.CheckedInBy, "loser must not overwrite the winner")
	})

	s.Run("a requested guest cannot check in", func() {
		_, err := s.svc.Request(ctx, "gala", "bruno")
		s.Require().NoError(err)

		_, err = s.svc.CheckIn(ctx, "gala", "U2", "door-a")
		s.Require().ErrorIs(err, ErrInvalidTransition)
	})

	s.Run("unknown guest surfaces ErrNotFound", func() {
		_, err := s.svc.CheckIn(ctx, "open-mic", "ghost", "door-a")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

// TestCheckInRace admits the same guest from many devices at once: exactly
// one succeeds and every other call reports AlreadyCheckedIn.
func (s *CheckinServiceSuite) TestCheckInRace() {
	ctx := context.Background()
	_, err := s.svc.Invite(ctx, "open-mic", InviteParams{Username: "ana"})
	s.Require().NoError(err)

	const devices = 12
	var wg sync.WaitGroup
	results := make(chan error, devices)
	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.CheckIn(ctx, "open-mic", "U1", "door")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, rejections int
	for err := range results {
		switch {
		case err == nil:
			wins++
		default:
			s.ErrorIs(err, ErrAlreadyCheckedIn)
			rejections++
		}
	}
	s.Equal(1, wins)
	s.Equal(devices-1, rejections)
}

func (s *CheckinServiceSuite) TestRemove() {
	ctx := context.Background()

	s.Run("invited guests delete without confirmation", func() {
		_, err := s.svc.Invite(ctx, "open-mic", InviteParams{Username: "ana"})
		s.Require().NoError(err)

		s.Require().NoError(s.svc.Remove(ctx, "open-mic", "U1", false))
		_, err = s.store.Get(ctx, "open-mic", "U1")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("checked-in guests require confirmation", func() {
		_, err := s.svc.Invite(ctx, "open-mic", InviteParams{Username: "bruno"})
		s.Require().NoError(err)
		_, err = s.svc.CheckIn(ctx, "open-mic", "U2", "door-a")
		s.Require().NoError(err)

		err = s.svc.Remove(ctx, "open-mic", "U2", false)
		s.Require().ErrorIs(err, ErrConfirmationRequired)

		rec, err := s.store.Get(ctx, "open-mic", "U2")
		s.Require().NoError(err)
		s.Equal(models.StatusCheckedIn, rec.Status)

		s.Require().NoError(s.svc.Remove(ctx, "open-mic", "U2", true))
		_, err = s.store.Get(ctx, "open-mic", "U2")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("removing an absent record is a no-op success", func() {
		s.Require().NoError(s.svc.Remove(ctx, "open-mic", "ghost", false))
	})
}

func (s *CheckinServiceSuite) TestScan() {
	ctx := context.Background()

	s.Run("malformed code fails fast", func() {
		_, err := s.svc.Scan(ctx, "open-mic", "not a code!", "door-a")
		s.Require().ErrorIs(err, identity.ErrInvalidCode)
	})

	s.Run("unknown code surfaces ErrNotFound", func() {
		_, err := s.svc.Scan(ctx, "open-mic", "code-unknown", "door-a")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("pre-start scan lifecycle: invited, then checked in, then rejected", func() {
		res, err := s.svc.Scan(ctx, "open-mic", "code-U1", "door-a")
		s.Require().NoError(err)
		s.Equal(ScanInvited, res.Outcome)
		s.Equal(models.StatusInvited, res.Record.Status)

		all, err := s.store.List(ctx, "open-mic")
		s.Require().NoError(err)
		s.Len(all, 1, "exactly one record per identity")

		res, err = s.svc.Scan(ctx, "open-mic", "code-U1", "door-a")
		s.Require().NoError(err)
		s.Equal(ScanCheckedIn, res.Outcome)
		s.Equal("door-a", res.Record.CheckedInBy)

		_, err = s.svc.Scan(ctx, "open-mic", "code-U1", "door-b")
		s.Require().ErrorIs(err, ErrAlreadyCheckedIn)

		all, err = s.store.List(ctx, "open-mic")
		s.Require().NoError(err)
		s.Len(all, 1)
	})

	s.Run("post-start scan of an unknown identity walks in directly", func() {
		s.clock = eventStart.Add(30 * time.Minute)

		res, err := s.svc.Scan(ctx, "open-mic", "code-U2", "door-a")
		s.Require().NoError(err)
		s.Equal(ScanWalkedIn, res.Outcome)
		s.Equal(models.StatusCheckedIn, res.Record.Status)
		s.Equal("door-a", res.Record.CheckedInBy)
	})

	s.Run("invite-only event rejects unlisted identities without creating a record", func() {
		_, err := s.svc.Scan(ctx, "gala", "code-U1", "door-a")
		s.Require().ErrorIs(err, ErrNotOnGuestlist)

		all, err := s.store.List(ctx, "gala")
		s.Require().NoError(err)
		s.Empty(all)
	})

	s.Run("invite-only scan admits an invited guest", func() {
		_, err := s.svc.Request(ctx, "gala", "ana")
		s.Require().NoError(err)
		_, err = s.svc.Approve(ctx, "gala", "U1", "host")
		s.Require().NoError(err)

		res, err := s.svc.Scan(ctx, "gala", "code-U1", "door-b")
		s.Require().NoError(err)
		s.Equal(ScanCheckedIn, res.Outcome)
		s.Equal("door-b", res.Record.CheckedInBy)
	})
}
