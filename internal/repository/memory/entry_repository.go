package memory

import (
	"context"
	"sync"
	"time"

	"github.com/carelinehq/hybrid-queue/internal/models"
	"github.com/carelinehq/hybrid-queue/internal/repository"
)

// EntryRepository is the in-process entry store: a mutex-guarded map with
// copy-on-read semantics so callers never alias stored state. Backs embedded
// deployments and tests.
type EntryRepository struct {
	mu      sync.RWMutex
	entries map[string]*models.QueueEntry
}

func NewEntryRepository() *EntryRepository {
	return &EntryRepository{
		entries: make(map[string]*models.QueueEntry),
	}
}

func (r *EntryRepository) Create(ctx context.Context, e *models.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[e.ID]; ok {
		return repository.ErrEntryExists
	}

	cp := *e
	r.entries[e.ID] = &cp
	return nil
}

func (r *EntryRepository) Get(ctx context.Context, id string) (*models.QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, repository.ErrEntryNotFound
	}

	cp := *e
	return &cp, nil
}

func (r *EntryRepository) UpdateIfVersion(ctx context.Context, id string, expectedVersion int64, mutate func(*models.QueueEntry)) (*models.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, repository.ErrEntryNotFound
	}

	if e.Version != expectedVersion {
		return nil, repository.ErrVersionConflict
	}

	cp := *e
	mutate(&cp)
	cp.Version = e.Version + 1
	cp.UpdatedAt = time.Now()

	r.entries[id] = &cp

	out := cp
	return &out, nil
}

func (r *EntryRepository) ListActive(ctx context.Context, centerID, providerID string) ([]*models.QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.QueueEntry
	for _, e := range r.entries {
		if e.CenterID != centerID || e.ProviderID != providerID {
			continue
		}
		if !e.IsActive() {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}

	return out, nil
}
