package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/carelinehq/hybrid-queue/config"
	"github.com/carelinehq/hybrid-queue/internal/models"
	"github.com/carelinehq/hybrid-queue/internal/ordering"
	"github.com/carelinehq/hybrid-queue/internal/repository"
	"github.com/carelinehq/hybrid-queue/pkg/logger"
)

// QueueController exposes every queue mutation as an atomic state
// transition. Mutations against the same (center, provider) queue are
// serialized; each one revalidates the caller's observed version, applies
// the transition, recomputes the full order and emits notification deltas.
type QueueController interface {
	Join(ctx context.Context, in JoinInput) (*models.QueueEntry, error)
	CheckIn(ctx context.Context, entryID string, expectedVersion int64) (*models.QueueEntry, error)
	CallNext(ctx context.Context, centerID, providerID string) (*models.QueueEntry, error)
	StartService(ctx context.Context, entryID string, expectedVersion int64) (*models.QueueEntry, error)
	Complete(ctx context.Context, entryID string, expectedVersion int64) (*models.QueueEntry, error)
	NoShow(ctx context.Context, entryID string, expectedVersion int64) (*models.QueueEntry, error)
	Cancel(ctx context.Context, entryID string, expectedVersion int64) (*models.QueueEntry, error)
	Requeue(ctx context.Context, entryID string, expectedVersion int64) (*models.QueueEntry, error)

	GetEntry(ctx context.Context, entryID string) (*models.QueueEntry, error)
	GetQueueSnapshot(ctx context.Context, centerID, providerID string) (*QueueSnapshot, error)
}

type queueController struct {
	repo     repository.EntryRepository
	catalog  repository.CatalogRepository
	stats    repository.DurationStatsRepository
	notifier Notifier
	est      ordering.DurationEstimator
	cfg      config.QueueConfig
	locks    providerLocks
	l        logger.Logger
	now      func() time.Time
}

func NewQueueController(
	repo repository.EntryRepository,
	catalog repository.CatalogRepository,
	stats repository.DurationStatsRepository,
	notifier Notifier,
	est ordering.DurationEstimator,
	cfg config.QueueConfig,
	l logger.Logger,
) QueueController {
	return &queueController{
		repo:     repo,
		catalog:  catalog,
		stats:    stats,
		notifier: notifier,
		est:      est,
		cfg:      cfg,
		l:        l,
		now:      time.Now,
	}
}

func (c *queueController) Join(ctx context.Context, in JoinInput) (*models.QueueEntry, error) {
	prov, err := c.catalog.GetProvider(ctx, in.CenterID, in.ProviderID)
	if err != nil {
		if errors.Is(err, repository.ErrEntryNotFound) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	if !prov.QueueOpen {
		return nil, ErrQueueClosed
	}
	if in.Kind == models.KindWalkIn && !prov.AcceptsWalkIns {
		return nil, ErrWalkInsNotAccepted
	}
	if in.Kind == models.KindScheduled && in.ScheduledTime == nil {
		return nil, ErrMissingScheduleTime
	}

	unlock := c.locks.acquire(in.CenterID, in.ProviderID)
	defer unlock()

	pre, err := c.positions(ctx, in.CenterID, in.ProviderID)
	if err != nil {
		return nil, err
	}

	if in.Kind == models.KindScheduled {
		// Best-effort slot check over the active set; authoritative
		// scheduling-conflict validation belongs to the booking service.
		for _, pe := range pre {
			e := pe.Entry
			if e.Kind == models.KindScheduled && e.ScheduledTime != nil && e.ScheduledTime.Equal(*in.ScheduledTime) {
				return nil, ErrScheduleConflict
			}
		}
	}

	now := c.now()
	e := &models.QueueEntry{
		ID:            uuid.NewString(),
		CenterID:      in.CenterID,
		ProviderID:    in.ProviderID,
		CustomerID:    in.CustomerID,
		ServiceID:     in.ServiceID,
		Kind:          in.Kind,
		JoinedAt:      now,
		PriorityBoost: in.PriorityBoost,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	switch in.Kind {
	case models.KindScheduled:
		e.Status = models.StatusPendingCheckIn
		e.ScheduledTime = in.ScheduledTime
	case models.KindWalkIn:
		e.Status = models.StatusWaiting
		e.CheckedInAt = &now
	default:
		return nil, ErrInvalidState
	}

	if err := c.repo.Create(ctx, e); err != nil {
		return nil, err
	}

	post, err := c.positions(ctx, in.CenterID, in.ProviderID)
	if err != nil {
		return e, err
	}

	joined := EntryEvent{
		EntryID:    e.ID,
		CenterID:   e.CenterID,
		ProviderID: e.ProviderID,
		Type:       EventJoined,
		Timestamp:  now,
	}
	if pe, ok := findPositioned(post, e.ID); ok {
		joined.Position = pe.Position
		joined.ETASeconds = int64(pe.ETA.Seconds())
	}
	c.emit(ctx, joined)
	c.emitDeltas(ctx, pre, post, e.ID)

	c.l.Infof(ctx, "Entry joined: id=%s provider=%s kind=%s", e.ID, e.ProviderID, e.Kind)

	return e, nil
}

func (c *queueController) CheckIn(ctx context.Context, entryID string, expectedVersion int64) (*models.QueueEntry, error) {
	now := c.now()
	updated, pre, post, err := c.applyTransition(ctx, entryID, expectedVersion, models.StatusWaiting,
		[]models.EntryStatus{models.StatusPendingCheckIn},
		func(e *models.QueueEntry) {
			if e.CheckedInAt == nil {
				e.CheckedInAt = &now
			}
		})
	if err != nil {
		return nil, err
	}

	// The entry gains its position via the delta stream.
	c.emitDeltas(ctx, pre, post, "")

	c.l.Infof(ctx, "Entry checked in: id=%s provider=%s", updated.ID, updated.ProviderID)

	return updated, nil
}

func (c *queueController) CallNext(ctx context.Context, centerID, providerID string) (*models.QueueEntry, error) {
	unlock := c.locks.acquire(centerID, providerID)
	defer unlock()

	entries, err := c.repo.ListActive(ctx, centerID, providerID)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.HoldsServingSlot() {
			return nil, ErrProviderBusy
		}
	}

	ordered := ordering.Order(entries, c.cfg.WalkInGracePeriod)
	if len(ordered) == 0 {
		return nil, ErrEmptyQueue
	}

	pre := ordering.Positions(ctx, ordered, c.est)
	head := ordered[0]

	now := c.now()
	updated, err := c.repo.UpdateIfVersion(ctx, head.ID, head.Version, func(e *models.QueueEntry) {
		e.Status = models.StatusCalled
		e.CalledAt = &now
	})
	if err != nil {
		return nil, mapRepoErr(err)
	}

	post, err := c.positions(ctx, centerID, providerID)
	if err != nil {
		return updated, err
	}

	c.emit(ctx, EntryEvent{
		EntryID:    updated.ID,
		CenterID:   updated.CenterID,
		ProviderID: updated.ProviderID,
		Type:       EventCalled,
		Timestamp:  now,
	})
	c.emitDeltas(ctx, pre, post, updated.ID)

	c.l.Infof(ctx, "Entry called: id=%s provider=%s", updated.ID, updated.ProviderID)

	return updated, nil
}

func (c *queueController) StartService(ctx context.Context, entryID string, expectedVersion int64) (*models.QueueEntry, error) {
	now := c.now()
	updated, _, _, err := c.applyTransition(ctx, entryID, expectedVersion, models.StatusInService,
		[]models.EntryStatus{models.StatusCalled},
		func(e *models.QueueEntry) {
			e.ServiceStartedAt = &now
		})
	if err != nil {
		return nil, err
	}

	c.l.Infof(ctx, "Service started: id=%s provider=%s", updated.ID, updated.ProviderID)

	return updated, nil
}

func (c *queueController) Complete(ctx context.Context, entryID string, expectedVersion int64) (*models.QueueEntry, error) {
	now := c.now()
	updated, pre, post, err := c.applyTransition(ctx, entryID, expectedVersion, models.StatusCompleted,
		[]models.EntryStatus{models.StatusInService},
		func(e *models.QueueEntry) {
			e.CompletedAt = &now
		})
	if err != nil {
		return nil, err
	}

	if updated.ServiceStartedAt != nil && c.stats != nil {
		d := now.Sub(*updated.ServiceStartedAt)
		if d > 0 {
			if err := c.stats.Record(ctx, updated.ProviderID, updated.ServiceID, d); err != nil {
				c.l.Warnf(ctx, "service.queueController.Complete: failed to record duration: %v", err)
			}
		}
	}

	c.emit(ctx, EntryEvent{
		EntryID:    updated.ID,
		CenterID:   updated.CenterID,
		ProviderID: updated.ProviderID,
		Type:       EventCompleted,
		Timestamp:  now,
	})
	c.emitDeltas(ctx, pre, post, updated.ID)

	c.l.Infof(ctx, "Entry completed: id=%s provider=%s", updated.ID, updated.ProviderID)

	return updated, nil
}

func (c *queueController) NoShow(ctx context.Context, entryID string, expectedVersion int64) (*models.QueueEntry, error) {
	now := c.now()
	updated, pre, post, err := c.applyTransition(ctx, entryID, expectedVersion, models.StatusNoShow,
		[]models.EntryStatus{models.StatusCalled},
		func(e *models.QueueEntry) {})
	if err != nil {
		return nil, err
	}

	c.emit(ctx, EntryEvent{
		EntryID:    updated.ID,
		CenterID:   updated.CenterID,
		ProviderID: updated.ProviderID,
		Type:       EventNoShow,
		Timestamp:  now,
	})
	c.emitDeltas(ctx, pre, post, updated.ID)

	c.l.Infof(ctx, "Entry marked no-show: id=%s provider=%s", updated.ID, updated.ProviderID)

	return updated, nil
}

func (c *queueController) Cancel(ctx context.Context, entryID string, expectedVersion int64) (*models.QueueEntry, error) {
	now := c.now()
	updated, pre, post, err := c.applyTransition(ctx, entryID, expectedVersion, models.StatusCancelled,
		[]models.EntryStatus{models.StatusPendingCheckIn, models.StatusWaiting},
		func(e *models.QueueEntry) {})
	if err != nil {
		return nil, err
	}

	c.emit(ctx, EntryEvent{
		EntryID:    updated.ID,
		CenterID:   updated.CenterID,
		ProviderID: updated.ProviderID,
		Type:       EventCancelled,
		Timestamp:  now,
	})
	c.emitDeltas(ctx, pre, post, updated.ID)

	c.l.Infof(ctx, "Entry cancelled: id=%s provider=%s", updated.ID, updated.ProviderID)

	return updated, nil
}

// Requeue puts a Called customer who is not ready back into the waiting
// line. The anchor time is unchanged, so the entry resumes its natural slot
// rather than dropping to the back.
func (c *queueController) Requeue(ctx context.Context, entryID string, expectedVersion int64) (*models.QueueEntry, error) {
	updated, pre, post, err := c.applyTransition(ctx, entryID, expectedVersion, models.StatusWaiting,
		[]models.EntryStatus{models.StatusCalled},
		func(e *models.QueueEntry) {
			e.CalledAt = nil
		})
	if err != nil {
		return nil, err
	}

	c.emitDeltas(ctx, pre, post, "")

	c.l.Infof(ctx, "Entry requeued: id=%s provider=%s", updated.ID, updated.ProviderID)

	return updated, nil
}

func (c *queueController) GetEntry(ctx context.Context, entryID string) (*models.QueueEntry, error) {
	e, err := c.repo.Get(ctx, entryID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return e, nil
}

// GetQueueSnapshot reads without the provider lock; the result is a
// recent-but-possibly-stale view while a mutation is in flight.
func (c *queueController) GetQueueSnapshot(ctx context.Context, centerID, providerID string) (*QueueSnapshot, error) {
	positioned, err := c.positions(ctx, centerID, providerID)
	if err != nil {
		return nil, err
	}

	snap := &QueueSnapshot{
		CenterID:    centerID,
		ProviderID:  providerID,
		Entries:     make([]SnapshotEntry, 0, len(positioned)),
		GeneratedAt: c.now(),
	}

	for _, pe := range positioned {
		e := pe.Entry
		snap.Entries = append(snap.Entries, SnapshotEntry{
			EntryID:    e.ID,
			CustomerID: e.CustomerID,
			ServiceID:  e.ServiceID,
			Kind:       e.Kind,
			Status:     e.Status,
			Position:   pe.Position,
			ETASeconds: int64(pe.ETA.Seconds()),
		})
		if e.Status == models.StatusWaiting {
			snap.WaitingLen++
		}
	}

	return snap, nil
}

// applyTransition is the shared shape of every entry-keyed mutation:
// serialize on the provider, revalidate version and status, CAS-write, and
// recompute positions before and after for delta emission.
func (c *queueController) applyTransition(
	ctx context.Context,
	entryID string,
	expectedVersion int64,
	to models.EntryStatus,
	from []models.EntryStatus,
	mutate func(*models.QueueEntry),
) (*models.QueueEntry, []ordering.PositionedEntry, []ordering.PositionedEntry, error) {
	e, err := c.repo.Get(ctx, entryID)
	if err != nil {
		return nil, nil, nil, mapRepoErr(err)
	}

	unlock := c.locks.acquire(e.CenterID, e.ProviderID)
	defer unlock()

	// Re-read under the lock; the first read only located the provider.
	e, err = c.repo.Get(ctx, entryID)
	if err != nil {
		return nil, nil, nil, mapRepoErr(err)
	}

	if e.Version != expectedVersion {
		return nil, nil, nil, ErrVersionConflict
	}

	if !statusIn(e.Status, from) || !models.ValidTransition(e.Status, to) {
		return nil, nil, nil, ErrInvalidTransition
	}

	pre, err := c.positions(ctx, e.CenterID, e.ProviderID)
	if err != nil {
		return nil, nil, nil, err
	}

	updated, err := c.repo.UpdateIfVersion(ctx, entryID, expectedVersion, func(e *models.QueueEntry) {
		mutate(e)
		e.Status = to
	})
	if err != nil {
		return nil, nil, nil, mapRepoErr(err)
	}

	post, err := c.positions(ctx, updated.CenterID, updated.ProviderID)
	if err != nil {
		return updated, pre, nil, err
	}

	return updated, pre, post, nil
}

func (c *queueController) positions(ctx context.Context, centerID, providerID string) ([]ordering.PositionedEntry, error) {
	entries, err := c.repo.ListActive(ctx, centerID, providerID)
	if err != nil {
		return nil, err
	}

	ordered := ordering.Order(entries, c.cfg.WalkInGracePeriod)
	return ordering.Positions(ctx, ordered, c.est), nil
}

func (c *queueController) emit(ctx context.Context, ev EntryEvent) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, ev); err != nil {
		c.l.Errorf(ctx, "service.queueController.emit: %v", err)
	}
}

// emitDeltas publishes PositionChanged for every Waiting entry whose
// position moved between the two snapshots, skipping the operation's
// subject which already got its own event.
func (c *queueController) emitDeltas(ctx context.Context, pre, post []ordering.PositionedEntry, skipID string) {
	prePos := make(map[string]int, len(pre))
	for _, pe := range pre {
		prePos[pe.Entry.ID] = pe.Position
	}

	now := c.now()
	for _, pe := range post {
		e := pe.Entry
		if e.ID == skipID || e.Status != models.StatusWaiting {
			continue
		}
		if old, ok := prePos[e.ID]; ok && old == pe.Position {
			continue
		}

		c.emit(ctx, EntryEvent{
			EntryID:    e.ID,
			CenterID:   e.CenterID,
			ProviderID: e.ProviderID,
			Type:       EventPositionChanged,
			Position:   pe.Position,
			ETASeconds: int64(pe.ETA.Seconds()),
			Timestamp:  now,
		})
	}
}

func findPositioned(positioned []ordering.PositionedEntry, id string) (ordering.PositionedEntry, bool) {
	for _, pe := range positioned {
		if pe.Entry.ID == id {
			return pe, true
		}
	}
	return ordering.PositionedEntry{}, false
}

func statusIn(s models.EntryStatus, set []models.EntryStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrEntryNotFound):
		return ErrEntryNotFound
	case errors.Is(err, repository.ErrVersionConflict):
		return ErrVersionConflict
	default:
		return err
	}
}
