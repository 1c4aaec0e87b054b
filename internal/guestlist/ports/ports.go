// Package ports defines the interfaces the check-in engine consumes.
// Interfaces live here when more than one service depends on them, so the
// state machine, session, and enrichment packages share one contract.
package ports

import (
	"context"
	"time"

	"gatecheck/internal/guestlist/models"
)

// GuestStore is the durable, per-event collection of guest records. It is the
// only synchronization point between host devices: all transition guards are
// enforced here with conditional writes, never with check-then-act at the
// service layer.
//
// Transport or backend failures wrap sentinel.ErrUnavailable.
type GuestStore interface {
	// Put upserts a record by id. Idempotent for identical content.
	Put(ctx context.Context, eventID string, record models.GuestRecord) error

	// Create inserts a record only if no record with the same id exists.
	// Returns sentinel.ErrConflict when one does.
	Create(ctx context.Context, eventID string, record models.GuestRecord) error

	// Transition applies a per-record compare-and-set on status: the record
	// moves from -> to only if its current status equals from. Sets
	// CheckedInBy to by when to is StatusCheckedIn, clears it otherwise, and
	// stamps the record with at. Returns the stored record after the write.
	//
	// Returns sentinel.ErrNotFound when no record exists and
	// sentinel.ErrConflict when the current status differs from from.
	Transition(ctx context.Context, eventID, id string, from, to models.GuestStatus, by string, at time.Time) (models.GuestRecord, error)

	// Delete removes a record. Succeeds as a no-op when the record is absent.
	Delete(ctx context.Context, eventID, id string) error

	// Get fetches one record. Returns sentinel.ErrNotFound when absent.
	Get(ctx context.Context, eventID, id string) (models.GuestRecord, error)

	// List returns the full current record set for the event.
	List(ctx context.Context, eventID string) ([]models.GuestRecord, error)

	// Subscribe opens a long-lived subscription that delivers the complete
	// current record set on subscribe and again after every committed
	// mutation by any writer. Snapshots are conflated: a slow consumer sees
	// the latest set, never a backlog. Cancel the context or call Close to
	// end the subscription.
	Subscribe(ctx context.Context, eventID string) (Subscription, error)
}

// Subscription is a live feed of full guest record snapshots.
type Subscription interface {
	// C yields full snapshots. The channel closes when the subscription ends.
	C() <-chan []models.GuestRecord
	// Close ends the subscription. Idempotent.
	Close()
}

// Directory is the identity directory consumed for code/username resolution
// and university enrichment. Transient failures wrap sentinel.ErrUnavailable;
// unknown identities return sentinel.ErrNotFound.
type Directory interface {
	LookupByCode(ctx context.Context, code string) (models.Identity, error)
	LookupByUsername(ctx context.Context, username string) (models.Identity, error)
	// Universities batch-resolves university records by id. Unknown ids are
	// simply absent from the result, not errors.
	Universities(ctx context.Context, ids []string) (map[string]models.University, error)
}

// Events reads the external event entity the guestlist hangs off.
type Events interface {
	Get(ctx context.Context, eventID string) (models.Event, error)
}

// NotificationKind labels a guest-status event delivered to another user.
type NotificationKind string

const (
	KindInvited   NotificationKind = "guest_invited"
	KindApproved  NotificationKind = "guest_approved"
	KindCheckedIn NotificationKind = "guest_checked_in"
)

// Notification is a fire-and-forget guest-status event for another user.
type Notification struct {
	ToUserID  string           `json:"to_user_id"`
	EventID   string           `json:"event_id"`
	Kind      NotificationKind `json:"kind"`
	Timestamp time.Time        `json:"timestamp"`
}

// Notifier dispatches guest-status notifications. Delivery is best-effort:
// the engine never waits on or retries a notification, so implementations
// must not block the caller on broker round-trips.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}
