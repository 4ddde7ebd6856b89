package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelinehq/hybrid-queue/internal/models"
	"github.com/carelinehq/hybrid-queue/internal/repository"
)

func newEntry(id, centerID, providerID string, status models.EntryStatus) *models.QueueEntry {
	now := time.Now()
	checkedIn := now
	return &models.QueueEntry{
		ID:          id,
		CenterID:    centerID,
		ProviderID:  providerID,
		CustomerID:  "customer-1",
		ServiceID:   "service-1",
		Kind:        models.KindWalkIn,
		JoinedAt:    now,
		CheckedInAt: &checkedIn,
		Status:      status,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestEntryRepository_CreateAndGet(t *testing.T) {
	repo := NewEntryRepository()
	ctx := context.Background()

	e := newEntry("e1", "c1", "p1", models.StatusWaiting)
	require.NoError(t, repo.Create(ctx, e))

	got, err := repo.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, int64(1), got.Version)
}

func TestEntryRepository_CreateDuplicate(t *testing.T) {
	repo := NewEntryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newEntry("e1", "c1", "p1", models.StatusWaiting)))

	err := repo.Create(ctx, newEntry("e1", "c1", "p1", models.StatusWaiting))
	assert.ErrorIs(t, err, repository.ErrEntryExists)
}

func TestEntryRepository_GetNotFound(t *testing.T) {
	repo := NewEntryRepository()

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrEntryNotFound)
}

func TestEntryRepository_GetReturnsCopy(t *testing.T) {
	repo := NewEntryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newEntry("e1", "c1", "p1", models.StatusWaiting)))

	got, err := repo.Get(ctx, "e1")
	require.NoError(t, err)
	got.Status = models.StatusCancelled

	again, err := repo.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, again.Status)
}

func TestEntryRepository_UpdateIfVersion(t *testing.T) {
	repo := NewEntryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newEntry("e1", "c1", "p1", models.StatusWaiting)))

	updated, err := repo.UpdateIfVersion(ctx, "e1", 1, func(e *models.QueueEntry) {
		e.Status = models.StatusCalled
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCalled, updated.Status)
	assert.Equal(t, int64(2), updated.Version)
}

func TestEntryRepository_UpdateIfVersionStaleDoesNotMutate(t *testing.T) {
	repo := NewEntryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newEntry("e1", "c1", "p1", models.StatusWaiting)))

	_, err := repo.UpdateIfVersion(ctx, "e1", 99, func(e *models.QueueEntry) {
		e.Status = models.StatusCalled
	})
	require.ErrorIs(t, err, repository.ErrVersionConflict)

	got, err := repo.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, got.Status)
	assert.Equal(t, int64(1), got.Version)
}

func TestEntryRepository_UpdateIfVersionNotFound(t *testing.T) {
	repo := NewEntryRepository()

	_, err := repo.UpdateIfVersion(context.Background(), "missing", 1, func(e *models.QueueEntry) {})
	assert.ErrorIs(t, err, repository.ErrEntryNotFound)
}

func TestEntryRepository_ListActive(t *testing.T) {
	repo := NewEntryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newEntry("e1", "c1", "p1", models.StatusWaiting)))
	require.NoError(t, repo.Create(ctx, newEntry("e2", "c1", "p1", models.StatusCalled)))
	require.NoError(t, repo.Create(ctx, newEntry("e3", "c1", "p1", models.StatusCompleted)))
	require.NoError(t, repo.Create(ctx, newEntry("e4", "c1", "p2", models.StatusWaiting)))

	active, err := repo.ListActive(ctx, "c1", "p1")
	require.NoError(t, err)

	ids := make([]string, 0, len(active))
	for _, e := range active {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{"e1", "e2"}, ids)
}
