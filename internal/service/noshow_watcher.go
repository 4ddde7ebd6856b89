package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/carelinehq/hybrid-queue/internal/models"
	"github.com/carelinehq/hybrid-queue/internal/repository"
	"github.com/carelinehq/hybrid-queue/pkg/logger"
)

// NoShowWatcher is the caller-side timer the engine itself deliberately
// does not own: it periodically scans every provider queue for Called
// entries whose customer never showed up and invokes the NoShow transition
// once the timeout elapses. A lost race with a staff action simply yields a
// conflict or invalid-transition error and the entry is left alone.
type NoShowWatcher interface {
	Start(ctx context.Context) error
	Stop() error
	Status() WatcherStatus
}

type WatcherStatus struct {
	IsRunning    bool      `json:"is_running"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	LastScan     time.Time `json:"last_scan,omitempty"`
	TotalMarked  int64     `json:"total_marked"`
	ErrorCount   int64     `json:"error_count"`
	QueuesActive int       `json:"queues_active"`
}

type noShowWatcher struct {
	ctrl    QueueController
	repo    repository.EntryRepository
	catalog repository.CatalogRepository
	l       logger.Logger

	timeout  time.Duration
	interval time.Duration

	mu        sync.Mutex
	isRunning bool
	startedAt time.Time
	lastScan  time.Time
	marked    int64
	errCount  int64
	queues    int
	stopCh    chan struct{}
	wg        sync.WaitGroup
	now       func() time.Time
}

func NewNoShowWatcher(
	ctrl QueueController,
	repo repository.EntryRepository,
	catalog repository.CatalogRepository,
	timeout, interval time.Duration,
	l logger.Logger,
) NoShowWatcher {
	return &noShowWatcher{
		ctrl:     ctrl,
		repo:     repo,
		catalog:  catalog,
		timeout:  timeout,
		interval: interval,
		l:        l,
		now:      time.Now,
	}
}

func (w *noShowWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return errors.New("no-show watcher is already running")
	}

	w.l.Infof(ctx, "Starting no-show watcher: timeout=%s interval=%s", w.timeout, w.interval)

	w.isRunning = true
	w.startedAt = w.now()
	// Fresh channel per run; the previous one is closed by Stop.
	w.stopCh = make(chan struct{})

	w.wg.Add(1)
	go w.loop(ctx, w.stopCh)

	return nil
}

func (w *noShowWatcher) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return errors.New("no-show watcher is not running")
	}
	close(w.stopCh)
	w.mu.Unlock()

	// The loop may be mid-scan and touching the counters; wait without
	// holding the mutex.
	w.wg.Wait()

	w.mu.Lock()
	w.isRunning = false
	w.mu.Unlock()

	w.l.Info(context.Background(), "No-show watcher stopped")
	return nil
}

func (w *noShowWatcher) Status() WatcherStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	return WatcherStatus{
		IsRunning:    w.isRunning,
		StartedAt:    w.startedAt,
		LastScan:     w.lastScan,
		TotalMarked:  w.marked,
		ErrorCount:   w.errCount,
		QueuesActive: w.queues,
	}
}

func (w *noShowWatcher) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *noShowWatcher) scan(ctx context.Context) {
	providers, err := w.catalog.ListProviders(ctx)
	if err != nil {
		w.l.Errorf(ctx, "service.noShowWatcher.scan: %v", err)
		w.bump(func() { w.errCount++ })
		return
	}

	for _, prov := range providers {
		entries, err := w.repo.ListActive(ctx, prov.CenterID, prov.ProviderID)
		if err != nil {
			w.l.Errorf(ctx, "service.noShowWatcher.scan: %v", err)
			w.bump(func() { w.errCount++ })
			continue
		}

		for _, e := range entries {
			if e.Status != models.StatusCalled || e.CalledAt == nil {
				continue
			}
			if w.now().Sub(*e.CalledAt) < w.timeout {
				continue
			}

			if _, err := w.ctrl.NoShow(ctx, e.ID, e.Version); err != nil {
				// Concurrent staff action won the race; nothing to do.
				if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrInvalidTransition) {
					continue
				}
				w.l.Errorf(ctx, "service.noShowWatcher.scan: %v", err)
				w.bump(func() { w.errCount++ })
				continue
			}

			w.l.Infof(ctx, "No-show recorded: id=%s provider=%s", e.ID, e.ProviderID)
			w.bump(func() { w.marked++ })
		}
	}

	w.bump(func() {
		w.lastScan = w.now()
		w.queues = len(providers)
	})
}

func (w *noShowWatcher) bump(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn()
}
