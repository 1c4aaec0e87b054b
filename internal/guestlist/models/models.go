// Package models holds the guestlist domain entities shared across the
// check-in engine: guest records, statuses, events, and resolved identities.
package models

import (
	"time"

	"gatecheck/pkg/platform/sentinel"
)

// GuestStatus is the lifecycle state of a guest record. Removal is not a
// status; removing a guest deletes the record.
type GuestStatus string

const (
	StatusInvited   GuestStatus = "invited"
	StatusRequested GuestStatus = "requested"
	StatusCheckedIn GuestStatus = "checked_in"
)

// validStatuses is the single source of truth for valid guest statuses.
var validStatuses = map[GuestStatus]bool{
	StatusInvited:   true,
	StatusRequested: true,
	StatusCheckedIn: true,
}

// ParseGuestStatus constructs a GuestStatus from external input.
// Call from handlers when parsing bucket filters; direct casting bypasses
// validation.
func ParseGuestStatus(s string) (GuestStatus, error) {
	st := GuestStatus(s)
	if !st.IsValid() {
		return "", sentinel.ErrInvalidState
	}
	return st, nil
}

// IsValid checks if the status is one of the supported enum values.
func (s GuestStatus) IsValid() bool {
	return validStatuses[s]
}

func (s GuestStatus) String() string {
	return string(s)
}

// GuestRecord tracks one person's invitation and attendance state for one
// event. The id equals the resolved identity's id for known users and a
// generated id for manual entries, so the store can never hold two records
// for the same person.
//
// Invariant: CheckedInBy is set if and only if Status == StatusCheckedIn.
type GuestRecord struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Gender       string      `json:"gender,omitempty"`
	Age          int         `json:"age,omitempty"`
	UniversityID string      `json:"university_id,omitempty"`
	University   string      `json:"university,omitempty"`
	Status       GuestStatus `json:"status"`
	InvitedBy    string      `json:"invited_by,omitempty"`
	CheckedInBy  string      `json:"checked_in_by,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// Event is the slice of the external event entity the check-in engine reads.
// Owned elsewhere; consumed read-only here.
type Event struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	IsInviteOnly bool      `json:"is_invite_only"`
	Capacity     int       `json:"capacity,omitempty"`
}

// Started reports whether the event has begun at the given instant. Scans of
// unknown identities on open events create walk-in records once this is true.
func (e Event) Started(now time.Time) bool {
	return !now.Before(e.StartsAt)
}

// Identity is a directory entry resolved from a scanned code or a username.
// It never carries guest status; status is a property of the GuestRecord.
type Identity struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Gender       string `json:"gender,omitempty"`
	Age          int    `json:"age,omitempty"`
	UniversityID string `json:"university_id,omitempty"`
	ImageRef     string `json:"image_ref,omitempty"`
}

// University is a directory record joined onto guest records by the
// enrichment pipeline. Never authoritative; always re-derivable.
type University struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
