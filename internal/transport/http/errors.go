package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"gatecheck/internal/checkin"
	"gatecheck/internal/identity"
	"gatecheck/pkg/platform/sentinel"
)

// errorResponse is the JSON error envelope shared by all endpoints.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError centralizes domain error translation to HTTP responses.
// Business-rule rejections map to conflict-class statuses and are reported
// verbatim; transient backend failures map to 503 so callers know to retry.
func writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, identity.ErrInvalidCode):
		status, code = http.StatusBadRequest, "invalid_code"
	case errors.Is(err, checkin.ErrDuplicateInvite):
		status, code = http.StatusConflict, "duplicate_invite"
	case errors.Is(err, checkin.ErrAlreadyCheckedIn):
		status, code = http.StatusConflict, "already_checked_in"
	case errors.Is(err, checkin.ErrNotOnGuestlist):
		status, code = http.StatusForbidden, "not_on_guestlist"
	case errors.Is(err, checkin.ErrConfirmationRequired):
		status, code = http.StatusConflict, "confirmation_required"
	case errors.Is(err, checkin.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, sentinel.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, sentinel.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, sentinel.ErrInvalidState):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, sentinel.ErrUnavailable):
		status, code = http.StatusServiceUnavailable, "unavailable"
	}
	writeJSON(w, status, errorResponse{Error: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
