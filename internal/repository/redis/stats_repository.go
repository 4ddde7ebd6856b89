package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carelinehq/hybrid-queue/pkg/logger"
)

// StatsRepository keeps a bounded list of the most recent actual service
// durations per (provider, service), newest first. LPUSH plus LTRIM bounds
// the window server-side.
type StatsRepository struct {
	cli    *redis.Client
	window int
	l      logger.Logger
}

func NewStatsRepository(cli *redis.Client, window int, l logger.Logger) *StatsRepository {
	return &StatsRepository{
		cli:    cli,
		window: window,
		l:      l,
	}
}

func (r *StatsRepository) Record(ctx context.Context, providerID, serviceID string, d time.Duration) error {
	key := r.statsKey(providerID, serviceID)

	pipe := r.cli.TxPipeline()
	pipe.LPush(ctx, key, int64(d/time.Millisecond))
	pipe.LTrim(ctx, key, 0, int64(r.window-1))

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "repository.redis.StatsRepository.Record: %v", err)
		return err
	}

	return nil
}

func (r *StatsRepository) Recent(ctx context.Context, providerID, serviceID string) ([]time.Duration, error) {
	vals, err := r.cli.LRange(ctx, r.statsKey(providerID, serviceID), 0, int64(r.window-1)).Result()
	if err != nil {
		r.l.Errorf(ctx, "repository.redis.StatsRepository.Recent: %v", err)
		return nil, err
	}

	out := make([]time.Duration, 0, len(vals))
	for _, v := range vals {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, time.Duration(ms)*time.Millisecond)
	}

	return out, nil
}

func (r *StatsRepository) statsKey(providerID, serviceID string) string {
	return fmt.Sprintf("hq:stats:duration:%s:%s", providerID, serviceID)
}
