package service

import (
	"context"
	"time"

	"github.com/carelinehq/hybrid-queue/internal/ordering"
	"github.com/carelinehq/hybrid-queue/internal/repository"
	"github.com/carelinehq/hybrid-queue/pkg/logger"
)

// rollingEstimator expects a service to take the average of its last K
// recorded durations for the provider, falling back to the catalog default
// and then to the configured engine default. Estimation is advisory; any
// lookup failure falls through to the next tier instead of failing the
// operation.
type rollingEstimator struct {
	stats           repository.DurationStatsRepository
	catalog         repository.CatalogRepository
	defaultDuration time.Duration
	l               logger.Logger
}

func NewRollingEstimator(
	stats repository.DurationStatsRepository,
	catalog repository.CatalogRepository,
	defaultDuration time.Duration,
	l logger.Logger,
) ordering.DurationEstimator {
	return &rollingEstimator{
		stats:           stats,
		catalog:         catalog,
		defaultDuration: defaultDuration,
		l:               l,
	}
}

func (e *rollingEstimator) Expect(ctx context.Context, providerID, serviceID string) time.Duration {
	if e.stats != nil {
		samples, err := e.stats.Recent(ctx, providerID, serviceID)
		if err != nil {
			e.l.Warnf(ctx, "service.rollingEstimator.Expect: %v", err)
		} else if len(samples) > 0 {
			var total time.Duration
			for _, d := range samples {
				total += d
			}
			return total / time.Duration(len(samples))
		}
	}

	if e.catalog != nil {
		cfg, err := e.catalog.GetService(ctx, serviceID)
		if err == nil && cfg.ExpectedDuration > 0 {
			return cfg.ExpectedDuration
		}
	}

	return e.defaultDuration
}
