package checkin

import "errors"

// Business-rule rejections. Terminal for the call that received them, not
// retryable without a different input, and reported verbatim to the operator.
var (
	// ErrDuplicateInvite rejects a second invite for an identity that already
	// holds an Invited record.
	ErrDuplicateInvite = errors.New("guest already invited")

	// ErrAlreadyCheckedIn rejects any transition on a record that has already
	// been checked in, including the loser of a concurrent check-in race.
	ErrAlreadyCheckedIn = errors.New("guest already checked in")

	// ErrNotOnGuestlist rejects a scan of an unknown identity at an
	// invite-only event. No record is created.
	ErrNotOnGuestlist = errors.New("not on guestlist")

	// ErrInvalidTransition rejects a transition that is not legal for the
	// record's current status, such as approving a non-requested guest.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrConfirmationRequired gates removal of a checked-in guest behind an
	// explicit confirmation from the operator.
	ErrConfirmationRequired = errors.New("confirmation required to remove checked-in guest")
)
