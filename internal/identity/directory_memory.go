package identity

import (
	"context"
	"sync"

	"gatecheck/internal/guestlist/models"
	"gatecheck/pkg/platform/sentinel"
)

// MemoryDirectory is an in-memory identity directory for tests and dev mode.
type MemoryDirectory struct {
	mu           sync.RWMutex
	byCode       map[string]models.Identity
	byUsername   map[string]models.Identity
	universities map[string]models.University
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byCode:       make(map[string]models.Identity),
		byUsername:   make(map[string]models.Identity),
		universities: make(map[string]models.University),
	}
}

// AddIdentity registers an identity under a scan code and a username.
func (d *MemoryDirectory) AddIdentity(code, username string, id models.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if code != "" {
		d.byCode[code] = id
	}
	if username != "" {
		d.byUsername[username] = id
	}
}

func (d *MemoryDirectory) AddUniversity(u models.University) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.universities[u.ID] = u
}

func (d *MemoryDirectory) LookupByCode(_ context.Context, code string) (models.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if id, ok := d.byCode[code]; ok {
		return id, nil
	}
	return models.Identity{}, sentinel.ErrNotFound
}

func (d *MemoryDirectory) LookupByUsername(_ context.Context, username string) (models.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if id, ok := d.byUsername[username]; ok {
		return id, nil
	}
	return models.Identity{}, sentinel.ErrNotFound
}

func (d *MemoryDirectory) Universities(_ context.Context, ids []string) (map[string]models.University, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]models.University, len(ids))
	for _, id := range ids {
		if u, ok := d.universities[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}
