// Package identity resolves scanned credentials and typed usernames against
// the identity directory. Resolution never carries guest status; that belongs
// to the guest record.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"gatecheck/internal/guestlist/models"
	"gatecheck/internal/guestlist/ports"
)

// ErrInvalidCode rejects malformed scan input. Malformed codes never reach
// the directory.
var ErrInvalidCode = errors.New("invalid code")

// codePattern bounds scan input before any directory round-trip: restricted
// character set, at most 128 characters.
var codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Resolver turns opaque scan tokens and usernames into directory identities.
type Resolver struct {
	directory ports.Directory
	logger    *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets a logger for lookup diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func NewResolver(directory ports.Directory, opts ...Option) *Resolver {
	r := &Resolver{directory: directory, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveByCode validates the scan token format and then looks it up.
// Returns ErrInvalidCode for malformed input without touching the directory,
// sentinel.ErrNotFound for well-formed unknown codes, and a wrapped
// sentinel.ErrUnavailable when the directory is unreachable (the caller
// should retry, not fall back to manual entry).
func (r *Resolver) ResolveByCode(ctx context.Context, code string) (models.Identity, error) {
	if !codePattern.MatchString(code) {
		return models.Identity{}, ErrInvalidCode
	}
	id, err := r.directory.LookupByCode(ctx, code)
	if err != nil {
		r.logger.DebugContext(ctx, "code lookup failed", "error", err)
		return models.Identity{}, err
	}
	return id, nil
}

// ResolveByUsername looks up a typed username. Returns sentinel.ErrNotFound
// when no such user exists.
func (r *Resolver) ResolveByUsername(ctx context.Context, username string) (models.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.Identity{}, ErrInvalidCode
	}
	id, err := r.directory.LookupByUsername(ctx, username)
	if err != nil {
		r.logger.DebugContext(ctx, "username lookup failed", "username", username, "error", err)
		return models.Identity{}, err
	}
	return id, nil
}
