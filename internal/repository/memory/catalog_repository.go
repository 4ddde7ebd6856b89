package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carelinehq/hybrid-queue/internal/repository"
)

type CatalogRepository struct {
	mu        sync.RWMutex
	services  map[string]repository.ServiceConfig
	providers map[string]repository.ProviderConfig
}

func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{
		services:  make(map[string]repository.ServiceConfig),
		providers: make(map[string]repository.ProviderConfig),
	}
}

func (r *CatalogRepository) GetService(ctx context.Context, serviceID string) (*repository.ServiceConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.services[serviceID]
	if !ok {
		return nil, repository.ErrEntryNotFound
	}
	return &cfg, nil
}

func (r *CatalogRepository) SetService(ctx context.Context, cfg repository.ServiceConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.services[cfg.ServiceID] = cfg
	return nil
}

func (r *CatalogRepository) GetProvider(ctx context.Context, centerID, providerID string) (*repository.ProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.providers[providerKey(centerID, providerID)]
	if !ok {
		return nil, repository.ErrEntryNotFound
	}
	return &cfg, nil
}

func (r *CatalogRepository) SetProvider(ctx context.Context, cfg repository.ProviderConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[providerKey(cfg.CenterID, cfg.ProviderID)] = cfg
	return nil
}

func (r *CatalogRepository) ListProviders(ctx context.Context) ([]repository.ProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]repository.ProviderConfig, 0, len(r.providers))
	for _, cfg := range r.providers {
		out = append(out, cfg)
	}
	return out, nil
}

func providerKey(centerID, providerID string) string {
	return fmt.Sprintf("%s:%s", centerID, providerID)
}

// StatsRepository keeps the rolling duration windows in memory.
type StatsRepository struct {
	mu      sync.Mutex
	window  int
	samples map[string][]time.Duration
}

func NewStatsRepository(window int) *StatsRepository {
	return &StatsRepository{
		window:  window,
		samples: make(map[string][]time.Duration),
	}
}

func (r *StatsRepository) Record(ctx context.Context, providerID, serviceID string, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := providerKey(providerID, serviceID)
	samples := append([]time.Duration{d}, r.samples[key]...)
	if len(samples) > r.window {
		samples = samples[:r.window]
	}
	r.samples[key] = samples
	return nil
}

func (r *StatsRepository) Recent(ctx context.Context, providerID, serviceID string) ([]time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	samples := r.samples[providerKey(providerID, serviceID)]
	out := make([]time.Duration, len(samples))
	copy(out, samples)
	return out, nil
}
