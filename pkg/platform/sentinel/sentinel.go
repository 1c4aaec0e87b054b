package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and directory clients return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not business rejections:
// - ErrNotFound: guest record or identity does not exist
// - ErrConflict: conditional write lost (record already exists, or its status
//   changed underneath the caller)
// - ErrInvalidState: record in the wrong state for the requested operation
// - ErrUnavailable: store or directory temporarily unreachable; retryable
//
// Business-rule rejections (duplicate invite, not on guestlist, ...) live in
// the owning service package, not here.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
