// Package notify delivers guest-status notifications to other users.
// Delivery is fire-and-forget: the check-in engine emits intents and moves
// on; nothing here blocks, retries, or reports back to the caller.
package notify

import (
	"context"
	"log/slog"

	"gatecheck/internal/guestlist/ports"
)

// Log is the fallback dispatcher used when no broker is configured: it
// records the intent and drops it.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, n ports.Notification) {
	l.logger.InfoContext(ctx, "notification intent",
		"to_user_id", n.ToUserID,
		"event_id", n.EventID,
		"kind", string(n.Kind),
	)
}
