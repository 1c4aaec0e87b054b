// Package httptransport is the thin HTTP layer over the check-in engine. It
// delegates to sessions without embedding business logic so transport
// concerns remain isolated.
package httptransport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gatecheck/internal/checkin"
	"gatecheck/internal/guestlist/models"
	"gatecheck/internal/session"
	"gatecheck/pkg/platform/sentinel"
)

// Handler serves the guestlist endpoints for host devices.
type Handler struct {
	sessions *session.Manager
	logger   *slog.Logger
}

func NewHandler(sessions *session.Manager, logger *slog.Logger) *Handler {
	return &Handler{sessions: sessions, logger: logger}
}

// Register mounts the guestlist routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/events/{eventID}", func(r chi.Router) {
		r.Get("/guestlist", h.handleList)
		r.Get("/guestlist/stream", h.handleStream)
		r.Post("/guests", h.handleInvite)
		r.Post("/guests/requests", h.handleRequest)
		r.Post("/guests/{guestID}/approve", h.handleApprove)
		r.Post("/guests/{guestID}/checkin", h.handleCheckIn)
		r.Delete("/guests/{guestID}", h.handleRemove)
		r.Post("/scan", h.handleScan)
		r.Delete("/session", h.handleCloseSession)
	})
}

// guestSession resolves the request's event into its open session.
func (h *Handler) guestSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	eventID := chi.URLParam(r, "eventID")
	sess, err := h.sessions.Get(r.Context(), eventID)
	if err != nil {
		h.logger.WarnContext(r.Context(), "open session failed", "event_id", eventID, "error", err)
		writeError(w, err)
		return nil, false
	}
	return sess, true
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.guestSession(w, r)
	if !ok {
		return
	}

	var bucket models.GuestStatus
	if raw := r.URL.Query().Get("bucket"); raw != "" {
		parsed, err := models.ParseGuestStatus(raw)
		if err != nil {
			writeError(w, fmt.Errorf("%w: unknown bucket %q", sentinel.ErrInvalidState, raw))
			return
		}
		bucket = parsed
	}

	view, err := sess.View(r.Context(), bucket, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleStream pushes live guestlist views over server-sent events. Each
// attached device gets its own conflating feed, so a stalled connection only
// skips intermediate views.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.guestSession(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fmt.Errorf("streaming unsupported"))
		return
	}

	views, detach := sess.Attach()
	defer detach()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case view, ok := <-views:
			if !ok {
				return
			}
			data, err := json.Marshal(view)
			if err != nil {
				h.logger.ErrorContext(r.Context(), "marshal view", "error", err)
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

type inviteRequest struct {
	Username     string `json:"username,omitempty"`
	Name         string `json:"name,omitempty"`
	Gender       string `json:"gender,omitempty"`
	Age          int    `json:"age,omitempty"`
	UniversityID string `json:"university_id,omitempty"`
	InvitedBy    string `json:"invited_by"`
}

func (h *Handler) handleInvite(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.guestSession(w, r)
	if !ok {
		return
	}
	var req inviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", sentinel.ErrInvalidState))
		return
	}

	rec, err := sess.Invite(r.Context(), checkin.InviteParams{
		Username:     req.Username,
		Name:         req.Name,
		Gender:       req.Gender,
		Age:          req.Age,
		UniversityID: req.UniversityID,
		InvitedBy:    req.InvitedBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

type requestJoinRequest struct {
	Username string `json:"username"`
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.guestSession(w, r)
	if !ok {
		return
	}
	var req requestJoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", sentinel.ErrInvalidState))
		return
	}
	rec, err := sess.Request(r.Context(), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

type operatorRequest struct {
	Operator string `json:"operator"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.guestSession(w, r)
	if !ok {
		return
	}
	var req operatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", sentinel.ErrInvalidState))
		return
	}
	rec, err := sess.Approve(r.Context(), chi.URLParam(r, "guestID"), req.Operator)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.guestSession(w, r)
	if !ok {
		return
	}
	var req operatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", sentinel.ErrInvalidState))
		return
	}
	rec, err := sess.CheckIn(r.Context(), chi.URLParam(r, "guestID"), req.Operator)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.guestSession(w, r)
	if !ok {
		return
	}
	confirmed := r.URL.Query().Get("confirm") == "true"
	if err := sess.Remove(r.Context(), chi.URLParam(r, "guestID"), confirmed); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type scanRequest struct {
	Code     string `json:"code"`
	Operator string `json:"operator"`
}

// scanResponse pairs the user-facing outcome with the resulting record.
type scanResponse struct {
	Outcome string             `json:"outcome"`
	Record  models.GuestRecord `json:"record"`
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.guestSession(w, r)
	if !ok {
		return
	}
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", sentinel.ErrInvalidState))
		return
	}
	res, err := sess.Scan(r.Context(), req.Code, req.Operator)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{Outcome: string(res.Outcome), Record: res.Record})
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.Release(chi.URLParam(r, "eventID"))
	w.WriteHeader(http.StatusNoContent)
}
