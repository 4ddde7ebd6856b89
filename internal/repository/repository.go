package repository

import (
	"context"
	"errors"
	"time"

	"github.com/carelinehq/hybrid-queue/internal/models"
)

var (
	ErrEntryNotFound   = errors.New("queue entry not found")
	ErrEntryExists     = errors.New("queue entry already exists")
	ErrVersionConflict = errors.New("queue entry version conflict")
)

// EntryRepository is the entry store: atomic create/read/update primitives
// keyed by entry id, plus the per-provider active-set index. Writes are
// atomic per entry; UpdateIfVersion is a compare-and-swap on Version and
// fails with ErrVersionConflict without mutating anything.
type EntryRepository interface {
	Create(ctx context.Context, e *models.QueueEntry) error
	Get(ctx context.Context, id string) (*models.QueueEntry, error)
	UpdateIfVersion(ctx context.Context, id string, expectedVersion int64, mutate func(*models.QueueEntry)) (*models.QueueEntry, error)
	ListActive(ctx context.Context, centerID, providerID string) ([]*models.QueueEntry, error)
}

// ServiceConfig is the catalog record for a service type.
type ServiceConfig struct {
	ServiceID        string        `json:"service_id"`
	ExpectedDuration time.Duration `json:"expected_duration"`
}

// ProviderConfig is the catalog record for a provider's queue at a center.
type ProviderConfig struct {
	CenterID       string `json:"center_id"`
	ProviderID     string `json:"provider_id"`
	AcceptsWalkIns bool   `json:"accepts_walk_ins"`
	QueueOpen      bool   `json:"queue_open"`
}

// CatalogRepository backs the center/provider/service catalog lookups the
// queue controller consumes. Catalog management itself lives outside the
// engine; these are the read paths plus seeding setters.
type CatalogRepository interface {
	GetService(ctx context.Context, serviceID string) (*ServiceConfig, error)
	SetService(ctx context.Context, cfg ServiceConfig) error
	GetProvider(ctx context.Context, centerID, providerID string) (*ProviderConfig, error)
	SetProvider(ctx context.Context, cfg ProviderConfig) error
	ListProviders(ctx context.Context) ([]ProviderConfig, error)
}

// DurationStatsRepository records actual service durations and serves the
// rolling window behind the ETA estimator.
type DurationStatsRepository interface {
	Record(ctx context.Context, providerID, serviceID string, d time.Duration) error
	Recent(ctx context.Context, providerID, serviceID string) ([]time.Duration, error)
}
