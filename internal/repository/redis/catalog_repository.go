package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/carelinehq/hybrid-queue/internal/repository"
	"github.com/carelinehq/hybrid-queue/pkg/logger"
)

type CatalogRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewCatalogRepository(cli *redis.Client, l logger.Logger) *CatalogRepository {
	return &CatalogRepository{
		cli: cli,
		l:   l,
	}
}

func (r *CatalogRepository) GetService(ctx context.Context, serviceID string) (*repository.ServiceConfig, error) {
	data, err := r.cli.Get(ctx, r.serviceKey(serviceID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, repository.ErrEntryNotFound
		}

		r.l.Errorf(ctx, "repository.redis.CatalogRepository.GetService: %v", err)
		return nil, err
	}

	var cfg repository.ServiceConfig
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal service config: %w", err)
	}

	return &cfg, nil
}

func (r *CatalogRepository) SetService(ctx context.Context, cfg repository.ServiceConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal service config: %w", err)
	}

	if err := r.cli.Set(ctx, r.serviceKey(cfg.ServiceID), data, 0).Err(); err != nil {
		r.l.Errorf(ctx, "repository.redis.CatalogRepository.SetService: %v", err)
		return err
	}

	return nil
}

func (r *CatalogRepository) GetProvider(ctx context.Context, centerID, providerID string) (*repository.ProviderConfig, error) {
	data, err := r.cli.Get(ctx, r.providerKey(centerID, providerID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, repository.ErrEntryNotFound
		}

		r.l.Errorf(ctx, "repository.redis.CatalogRepository.GetProvider: %v", err)
		return nil, err
	}

	var cfg repository.ProviderConfig
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal provider config: %w", err)
	}

	return &cfg, nil
}

func (r *CatalogRepository) SetProvider(ctx context.Context, cfg repository.ProviderConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal provider config: %w", err)
	}

	pipe := r.cli.TxPipeline()
	pipe.Set(ctx, r.providerKey(cfg.CenterID, cfg.ProviderID), data, 0)
	pipe.SAdd(ctx, r.providerIndexKey(), r.providerKey(cfg.CenterID, cfg.ProviderID))

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "repository.redis.CatalogRepository.SetProvider: %v", err)
		return err
	}

	return nil
}

func (r *CatalogRepository) ListProviders(ctx context.Context) ([]repository.ProviderConfig, error) {
	keys, err := r.cli.SMembers(ctx, r.providerIndexKey()).Result()
	if err != nil {
		r.l.Errorf(ctx, "repository.redis.CatalogRepository.ListProviders: %v", err)
		return nil, err
	}

	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := r.cli.MGet(ctx, keys...).Result()
	if err != nil {
		r.l.Errorf(ctx, "repository.redis.CatalogRepository.ListProviders: %v", err)
		return nil, err
	}

	out := make([]repository.ProviderConfig, 0, len(vals))
	for _, v := range vals {
		data, ok := v.(string)
		if !ok {
			continue
		}

		var cfg repository.ProviderConfig
		if err := json.Unmarshal([]byte(data), &cfg); err != nil {
			continue
		}
		out = append(out, cfg)
	}

	return out, nil
}

func (r *CatalogRepository) serviceKey(serviceID string) string {
	return fmt.Sprintf("hq:catalog:service:%s", serviceID)
}

func (r *CatalogRepository) providerKey(centerID, providerID string) string {
	return fmt.Sprintf("hq:catalog:provider:%s:%s", centerID, providerID)
}

func (r *CatalogRepository) providerIndexKey() string {
	return "hq:catalog:providers"
}
