package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelinehq/hybrid-queue/config"
	"github.com/carelinehq/hybrid-queue/internal/models"
	"github.com/carelinehq/hybrid-queue/internal/ordering"
	"github.com/carelinehq/hybrid-queue/internal/repository"
	"github.com/carelinehq/hybrid-queue/internal/repository/memory"
	"github.com/carelinehq/hybrid-queue/pkg/logger"
)

type capturingNotifier struct {
	mu     sync.Mutex
	events []EntryEvent
}

func (n *capturingNotifier) Notify(ctx context.Context, ev EntryEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *capturingNotifier) byType(t EventType) []EntryEvent {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []EntryEvent
	for _, ev := range n.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type controllerFixture struct {
	ctrl     QueueController
	repo     *memory.EntryRepository
	catalog  *memory.CatalogRepository
	stats    *memory.StatsRepository
	notifier *capturingNotifier
}

func newControllerFixture(t *testing.T, cfg config.QueueConfig) *controllerFixture {
	t.Helper()

	f := &controllerFixture{
		repo:     memory.NewEntryRepository(),
		catalog:  memory.NewCatalogRepository(),
		stats:    memory.NewStatsRepository(cfg.DurationWindow),
		notifier: &capturingNotifier{},
	}

	est := ordering.FixedEstimator(10 * time.Minute)
	f.ctrl = NewQueueController(f.repo, f.catalog, f.stats, f.notifier, est, cfg, logger.InitializeTestZapLogger())

	require.NoError(t, f.catalog.SetProvider(context.Background(), repository.ProviderConfig{
		CenterID:       "c1",
		ProviderID:     "p1",
		AcceptsWalkIns: true,
		QueueOpen:      true,
	}))

	return f
}

func defaultQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		WalkInGracePeriod:      0,
		DefaultServiceDuration: 10 * time.Minute,
		DurationWindow:         5,
		NoShowTimeout:          5 * time.Minute,
		WatchInterval:          time.Second,
	}
}

func walkInInput(customerID string) JoinInput {
	return JoinInput{
		Kind:       models.KindWalkIn,
		CenterID:   "c1",
		ProviderID: "p1",
		CustomerID: customerID,
		ServiceID:  "svc-1",
	}
}

func scheduledInput(customerID string, slot time.Time) JoinInput {
	return JoinInput{
		Kind:          models.KindScheduled,
		CenterID:      "c1",
		ProviderID:    "p1",
		CustomerID:    customerID,
		ServiceID:     "svc-1",
		ScheduledTime: &slot,
	}
}

func TestController_WalkInLifecycle(t *testing.T) {
	f := newControllerFixture(t, defaultQueueConfig())
	ctx := context.Background()

	e, err := f.ctrl.Join(ctx, walkInInput("cust-1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, e.Status)
	require.NotNil(t, e.CheckedInAt)
	assert.Equal(t, int64(1), e.Version)

	called, err := f.ctrl.CallNext(ctx, "c1", "p1")
	require.NoError(t, err)
	assert.Equal(t, e.ID, called.ID)
	assert.Equal(t, models.StatusCalled, called.Status)
	require.NotNil(t, called.CalledAt)

	started, err := f.ctrl.StartService(ctx, called.ID, called.Version)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInService, started.Status)
	require.NotNil(t, started.ServiceStartedAt)

	done, err := f.ctrl.Complete(ctx, started.ID, started.Version)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	// Terminal entries leave the active queue.
	snap, err := f.ctrl.GetQueueSnapshot(ctx, "c1", "p1")
	require.NoError(t, err)
	assert.Empty(t, snap.Entries)
}

func TestController_ScheduledLifecycle(t *testing.T) {
	f := newControllerFixture(t, defaultQueueConfig())
	ctx := context.Background()

	slot := time.Now().Add(time.Hour)
	e, err := f.ctrl.Join(ctx, scheduledInput("cust-1", slot))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingCheckIn, e.Status)
	assert.Nil(t, e.CheckedInAt)

	// Not queued until check-in.
	snap, err := f.ctrl.GetQueueSnapshot(ctx, "c1", "p1")
	require.NoError(t, err)
	assert.Empty(t, snap.Entries)

	checked, err := f.ctrl.CheckIn(ctx, e.ID, e.Version)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, checked.Status)
	require.NotNil(t, checked.CheckedInAt)
	assert.Equal(t, int64(2), checked.Version)

	snap, err = f.ctrl.GetQueueSnapshot(ctx, "c1", "p1")
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, 1, snap.Entries[0].Position)
}

func TestController_HybridSnapshotOrder(t *testing.T) {
	f := newControllerFixture(t, defaultQueueConfig())
	ctx := context.Background()

	w, err := f.ctrl.Join(ctx, walkInInput("walk-in"))
	require.NoError(t, err)

	slot := time.Now().Add(30 * time.Minute)
	s, err := f.ctrl.Join(ctx, scheduledInput("scheduled", slot))
	require.NoError(t, err)
	_, err = f.ctrl.CheckIn(ctx, s.ID, s.Version)
	require.NoError(t, err)

	snap, err := f.ctrl.GetQueueSnapshot(ctx, "c1", "p1")
	require.NoError(t, err)
	require.Len(t, snap.Entries, 2)

	// Walk-in checked in now anchors before the future slot.
	assert.Equal(t, w.ID, snap.Entries[0].EntryID)
	assert.Equal(t, 1, snap.Entries[0].Position)
	assert.Equal(t, s.ID, snap.Entries[1].EntryID)
	assert.Equal(t, 2, snap.Entries[1].Position)
	assert.Equal(t, int64((10 * time.Minute).Seconds()), snap.Entries[1].ETASeconds)
	assert.Equal(t, 2, snap.WaitingLen)
}

func TestController_JoinValidation(t *testing.T) {
	f := newControllerFixture(t, defaultQueueConfig())
	ctx := context.Background()

	t.Run("unknown provider", func(t *testing.T) {
		in := walkInInput("cust-1")
		in.ProviderID = "ghost"
		_, err := f.ctrl.Join(ctx, in)
		assert.ErrorIs(t, err, ErrProviderNotFound)
	})

	t.Run("scheduled without slot time", func(t *testing.T) {
		in := walkInInput("cust-1")
		in.Kind = models.KindScheduled
		_, err := f.ctrl.Join(ctx, in)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("walk-ins not accepted", func(t *testing.T) {
		require.NoError(t, f.catalog.SetProvider(ctx, repository.ProviderConfig{
			CenterID: "c1", ProviderID: "p2", AcceptsWalkIns: false, QueueOpen: true,
		}))
		in := walkInInput("cust-1")
		in.ProviderID = "p2"
		_, err := f.ctrl.Join(ctx, in)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("queue closed", func(t *testing.T) {
		require.NoError(t, f.catalog.SetProvider(ctx, repository.ProviderConfig{
			CenterID: "c1", ProviderID: "p3", AcceptsWalkIns: true, QueueOpen: false,
		}))
		in := walkInInput("cust-1")
		in.ProviderID = "p3"
		_, err := f.ctrl.Join(ctx, in)
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestController_ScheduleConflict(t *testing.T) {
	f := newControllerFixture(t, defaultQueueConfig())
	ctx := context.Background()

	slot := time.Now().Add(time.Hour)
	first, err := f.ctrl.Join(ctx, scheduledInput("cust-1", slot))
	require.NoError(t, err)
	_, err = f.ctrl.CheckIn(ctx, first.ID, first.Version)
	require.NoError(t, err)

	_, err = f.ctrl.Join(ctx, scheduledInput("cust-2", slot))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestController_CallNextEmptyQueue(t *testing.T) {
	f := newControllerFixture(t, defaultQueueConfig())

	_, err := f.ctrl.CallNext(context.Background(), "c1", "p1")
	assert.ErrorIs(t, err, ErrEmptyQueue)
}

func TestController_CallNextProviderBusy(t *testing.T) {
	f := newControllerFixture(t, defaultQueueConfig())
	ctx := context.Background()

	_, err := f.ctrl.Join(ctx, walkInInput("cust-1"))
	require.NoError(t, err)
	_, err = f.ctrl.Join(ctx, walkInInput("cust-2"))
	require.NoError(t, err)

	_, err = f.ctrl.CallNext(ctx, "c1", "p1")
	require.NoError(t, err)

	_, err = f.ctrl.CallNext(ctx, "c1", "p1")
	assert.ErrorIs(t, err, ErrProviderBusy)
}

func TestController_StaleVersionConflict(t *testing.T) {
	f := newControllerFixture(t, defaultQueueConfig())
	ctx := context.Background()

	e, err := f.ctrl.Join(ctx, walkInInput("cust-1"))
	require.NoError(t, err)

	_, err = f.ctrl.CallNext(ctx, "c1", "p1")
	require.NoError(t, err)

	// Caller still holds version 1 from before the call.
	_, err = f.ctrl.Cancel(ctx, e.ID, e.Version)
	assert.ErrorIs(t, err, ErrVersionConflict)

	got, err := f.ctrl.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCalled, got.Status)
}

func TestController_InvalidTransitions(t *testing.T) {
	f := newControllerFixture(t, defaultQueueConfig())
	ctx := context.Background()

	e, err := f.ctrl.Join(ctx, walkInInput("cust-1"))
	require.NoError(t, err)

	// Waiting cannot complete, start or no-show.
	_, err = f.ctrl.Complete(ctx, e.ID, e.Version)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.ctrl.StartService(ctx, e.ID, e.Version)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.ctrl.NoShow(ctx, e.ID, e.Version)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Failed attempts must not advance the version.
	got, err := f.ctrl.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Version, got.Version)
}

func TestController_CancelledIsTerminal(t *testing.T) {
	f := newControllerFixture(t, defaultQueueConfig())
	ctx := context.Background()

	e, err := f.ctrl.Join(ctx, walkInInput("cust-1"))
	require.NoError(t, err)

	cancelled, err := f.ctrl.Cancel(ctx, e.ID, e.Version)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	_, err = f.ctrl.CheckIn(ctx, cancelled.ID, cancelled.Version)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestController_NoShowFreesSlot(t *testing.T) {
	f := newControllerFixture(t, defaultQueueConfig())
	ctx := context.Background()

	_, err := f.ctrl.Join(ctx, walkInInput("cust-1"))
	require.NoError(t, err)
	second, err := f.ctrl.Join(ctx, walkInInput("cust-2"))
	require.NoError(t, err)

	called, err := f.ctrl.CallNext(ctx, "c1", "p1")
	require.NoError(t, err)

	_, err = f.ctrl.NoShow(ctx, called.ID, called.Version)
	require.NoError(t, err)

	next, err := f.ctrl.CallNext(ctx, "c1", "p1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, next.ID)
}

func TestController_RequeueResumesNaturalSlot(t *testing.T) {
	f := newControllerFixture(t, defaultQueueConfig())
	ctx := context.Background()

	first, err := f.ctrl.Join(ctx, walkInInput("cust-1"))
	require.NoError(t, err)
	_, err = f.ctrl.Join(ctx, walkInInput("cust-2"))
	require.NoError(t, err)

	called, err := f.ctrl.CallNext(ctx, "c1", "p1")
	require.NoError(t, err)
	require.Equal(t, first.ID, called.ID)

	requeued, err := f.ctrl.Requeue(ctx, called.ID, called.Version)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, requeued.Status)
	assert.Nil(t, requeued.CalledAt)

	// Check-in time is unchanged, so the entry is back at the head.
	snap, err := f.ctrl.GetQueueSnapshot(ctx, "c1", "p1")
	require.NoError(t, err)
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, first.ID, snap.Entries[0].EntryID)
	assert.Equal(t, 1, snap.Entries[0].Position)
}

func TestController_ConcurrentCallNextSingleWinner(t *testing.T) {
	f := newControllerFixture(t, defaultQueueConfig())
	ctx := context.Background()

	_, err := f.ctrl.Join(ctx, walkInInput("cust-1"))
	require.NoError(t, err)

	const attempts = 8
	results := make(chan error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ctrl.CallNext(ctx, "c1", "p1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, busy int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		default:
			require.ErrorIs(t, err, ErrProviderBusy)
			busy++
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, busy)
}

func TestController_CompleteRecordsDuration(t *testing.T) {
	f := newControllerFixture(t, defaultQueueConfig())
	ctx := context.Background()

	_, err := f.ctrl.Join(ctx, walkInInput("cust-1"))
	require.NoError(t, err)

	called, err := f.ctrl.CallNext(ctx, "c1", "p1")
	require.NoError(t, err)

	started, err := f.ctrl.StartService(ctx, called.ID, called.Version)
	require.NoError(t, err)

	_, err = f.ctrl.Complete(ctx, started.ID, started.Version)
	require.NoError(t, err)

	samples, err := f.stats.Recent(ctx, "p1", "svc-1")
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestController_EventsEmitted(t *testing.T) {
	f := newControllerFixture(t, defaultQueueConfig())
	ctx := context.Background()

	first, err := f.ctrl.Join(ctx, walkInInput("cust-1"))
	require.NoError(t, err)
	_, err = f.ctrl.Join(ctx, walkInInput("cust-2"))
	require.NoError(t, err)

	joined := f.notifier.byType(EventJoined)
	require.Len(t, joined, 2)
	assert.Equal(t, 1, joined[0].Position)
	assert.Equal(t, 2, joined[1].Position)

	called, err := f.ctrl.CallNext(ctx, "c1", "p1")
	require.NoError(t, err)
	require.Equal(t, first.ID, called.ID)

	calledEvents := f.notifier.byType(EventCalled)
	require.Len(t, calledEvents, 1)
	assert.Equal(t, first.ID, calledEvents[0].EntryID)

	// The second entry moved from position 2 to 1 when the head was called.
	deltas := f.notifier.byType(EventPositionChanged)
	require.NotEmpty(t, deltas)
	assert.Equal(t, 1, deltas[len(deltas)-1].Position)
}

func TestController_GetEntryNotFound(t *testing.T) {
	f := newControllerFixture(t, defaultQueueConfig())

	_, err := f.ctrl.GetEntry(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}
