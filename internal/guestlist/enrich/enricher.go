// Package enrich joins guest records against the identity directory's
// university catalog. Enrichment is a background refinement pass: it never
// blocks list visibility and a failed lookup degrades to "university
// unknown" rather than failing the guest operation.
package enrich

import (
	"context"
	"log/slog"
	"sync"

	"gatecheck/internal/guestlist/metrics"
	"gatecheck/internal/guestlist/models"
	"gatecheck/internal/guestlist/ports"
	platformstrings "gatecheck/pkg/platform/strings"
)

// Enricher resolves university references, batched and deduplicated by id.
// Resolved universities are cached, so re-running enrichment on an unchanged
// id set performs zero directory calls.
type Enricher struct {
	directory ports.Directory
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu    sync.Mutex
	cache map[string]models.University
}

// Option configures an Enricher.
type Option func(*Enricher)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Enricher) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Enricher) {
		e.metrics = m
	}
}

func New(directory ports.Directory, opts ...Option) *Enricher {
	e := &Enricher{
		directory: directory,
		logger:    slog.Default(),
		cache:     make(map[string]models.University),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich attaches resolved university names to a copy of the record set.
// Unknown ids are fetched from the directory in a single batch; records whose
// university cannot be resolved pass through unchanged.
func (e *Enricher) Enrich(ctx context.Context, records []models.GuestRecord) []models.GuestRecord {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.UniversityID)
	}
	ids = platformstrings.DedupeAndTrim(ids)

	e.mu.Lock()
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := e.cache[id]; !ok {
			missing = append(missing, id)
		}
	}
	e.mu.Unlock()

	if len(missing) > 0 {
		e.metrics.IncEnrichBatch()
		resolved, err := e.directory.Universities(ctx, missing)
		if err != nil {
			// Degrade to "university unknown"; the next snapshot retries.
			e.logger.WarnContext(ctx, "university batch lookup failed", "ids", len(missing), "error", err)
		} else {
			e.mu.Lock()
			for id, u := range resolved {
				e.cache[id] = u
			}
			e.mu.Unlock()
		}
	}

	out := make([]models.GuestRecord, len(records))
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, rec := range records {
		if u, ok := e.cache[rec.UniversityID]; ok {
			rec.University = u.Name
		}
		out[i] = rec
	}
	return out
}
