package enrich

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatecheck/internal/guestlist/models"
	"gatecheck/internal/identity"
	"gatecheck/pkg/platform/sentinel"
)

// countingDirectory counts batch lookups so tests can assert the
// idempotence contract: resolved ids are never fetched twice.
type countingDirectory struct {
	*identity.MemoryDirectory
	batches int
	fail    bool
}

func (d *countingDirectory) Universities(ctx context.Context, ids []string) (map[string]models.University, error) {
	d.batches++
	if d.fail {
		return nil, fmt.Errorf("directory down: %w", sentinel.ErrUnavailable)
	}
	return d.MemoryDirectory.Universities(ctx, ids)
}

func newTestDirectory() *countingDirectory {
	dir := &countingDirectory{MemoryDirectory: identity.NewMemoryDirectory()}
	dir.AddUniversity(models.University{ID: "uni-1", Name: "State University"})
	dir.AddUniversity(models.University{ID: "uni-2", Name: "Tech Institute"})
	return dir
}

func testRecords() []models.GuestRecord {
	return []models.GuestRecord{
		{ID: "g1", Name: "Ana", UniversityID: "uni-1"},
		{ID: "g2", Name: "Bruno", UniversityID: "uni-2"},
		{ID: "g3", Name: "Caro", UniversityID: "uni-1"},
		{ID: "g4", Name: "Dev"},
	}
}

func TestEnrich(t *testing.T) {
	ctx := context.Background()

	t.Run("attaches universities in one deduplicated batch", func(t *testing.T) {
		dir := newTestDirectory()
		e := New(dir)

		out := e.Enrich(ctx, testRecords())
		require.Len(t, out, 4)
		assert.Equal(t, "State University", out[0].University)
		assert.Equal(t, "Tech Institute", out[1].University)
		assert.Equal(t, "State University", out[2].University)
		assert.Empty(t, out[3].University)
		assert.Equal(t, 1, dir.batches)
	})

	t.Run("does not mutate the input records", func(t *testing.T) {
		dir := newTestDirectory()
		e := New(dir)

		in := testRecords()
		_ = e.Enrich(ctx, in)
		assert.Empty(t, in[0].University)
	})

	t.Run("unchanged id set performs no further directory calls", func(t *testing.T) {
		dir := newTestDirectory()
		e := New(dir)

		first := e.Enrich(ctx, testRecords())
		second := e.Enrich(ctx, testRecords())
		assert.Equal(t, first, second)
		assert.Equal(t, 1, dir.batches)
	})

	t.Run("a new guest with a cached university needs no batch", func(t *testing.T) {
		dir := newTestDirectory()
		e := New(dir)

		_ = e.Enrich(ctx, testRecords())
		more := append(testRecords(), models.GuestRecord{ID: "g5", Name: "Eli", UniversityID: "uni-2"})
		out := e.Enrich(ctx, more)
		assert.Equal(t, "Tech Institute", out[4].University)
		assert.Equal(t, 1, dir.batches, "uni-2 was already resolved")
	})

	t.Run("unresolvable ids are retried on the next pass", func(t *testing.T) {
		dir := newTestDirectory()
		e := New(dir)

		recs := []models.GuestRecord{{ID: "g1", Name: "Ana", UniversityID: "uni-9"}}
		out := e.Enrich(ctx, recs)
		assert.Empty(t, out[0].University)
		_ = e.Enrich(ctx, recs)
		assert.Equal(t, 2, dir.batches, "misses are not cached")
	})

	t.Run("directory failure degrades to university unknown", func(t *testing.T) {
		dir := newTestDirectory()
		dir.fail = true
		e := New(dir)

		out := e.Enrich(ctx, testRecords())
		for _, rec := range out {
			assert.Empty(t, rec.University)
		}

		// Recovery: the next pass retries and succeeds.
		dir.fail = false
		out = e.Enrich(ctx, testRecords())
		assert.Equal(t, "State University", out[0].University)
	})

	t.Run("records without university ids never touch the directory", func(t *testing.T) {
		dir := newTestDirectory()
		e := New(dir)

		_ = e.Enrich(ctx, []models.GuestRecord{{ID: "g1", Name: "Ana"}})
		assert.Zero(t, dir.batches)
	})
}
