package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carelinehq/hybrid-queue/internal/models"
	"github.com/carelinehq/hybrid-queue/internal/repository"
	"github.com/carelinehq/hybrid-queue/pkg/logger"
)

// createEntryScript stores a new entry and indexes it in the provider's
// active set in one atomic step.
const createEntryScript = `
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 'exists'
end
redis.call('SET', KEYS[1], ARGV[1])
if ARGV[2] == '1' then
	redis.call('SADD', KEYS[2], ARGV[3])
end
return 'ok'
`

// casEntryScript is the optimistic-concurrency write: it re-checks the
// stored version against the version the caller observed and only then
// swaps in the new payload and fixes up the active index. A stale writer
// gets 'conflict' and the entry is left untouched.
const casEntryScript = `
local cur = redis.call('GET', KEYS[1])
if not cur then
	return 'not_found'
end
local obj = cjson.decode(cur)
if tonumber(obj.version) ~= tonumber(ARGV[1]) then
	return 'conflict'
end
redis.call('SET', KEYS[1], ARGV[2])
if ARGV[3] == '1' then
	redis.call('SADD', KEYS[2], ARGV[4])
else
	redis.call('SREM', KEYS[2], ARGV[4])
end
return 'ok'
`

type EntryRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewEntryRepository(cli *redis.Client, l logger.Logger) *EntryRepository {
	return &EntryRepository{
		cli: cli,
		l:   l,
	}
}

func (r *EntryRepository) Create(ctx context.Context, e *models.QueueEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	res, err := r.cli.Eval(ctx, createEntryScript,
		[]string{r.entryKey(e.ID), r.activeKey(e.CenterID, e.ProviderID)},
		data, boolArg(e.IsActive()), e.ID,
	).Result()
	if err != nil {
		r.l.Errorf(ctx, "repository.redis.EntryRepository.Create: %v", err)
		return err
	}

	if res == "exists" {
		return repository.ErrEntryExists
	}

	r.l.Debugf(ctx, "Entry created: id=%s provider=%s", e.ID, e.ProviderID)

	return nil
}

func (r *EntryRepository) Get(ctx context.Context, id string) (*models.QueueEntry, error) {
	data, err := r.cli.Get(ctx, r.entryKey(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, repository.ErrEntryNotFound
		}

		r.l.Errorf(ctx, "repository.redis.EntryRepository.Get: %v", err)
		return nil, err
	}

	var e models.QueueEntry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}

	return &e, nil
}

func (r *EntryRepository) UpdateIfVersion(ctx context.Context, id string, expectedVersion int64, mutate func(*models.QueueEntry)) (*models.QueueEntry, error) {
	e, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if e.Version != expectedVersion {
		return nil, repository.ErrVersionConflict
	}

	mutate(e)
	e.Version = expectedVersion + 1
	e.UpdatedAt = time.Now()

	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry: %w", err)
	}

	res, err := r.cli.Eval(ctx, casEntryScript,
		[]string{r.entryKey(id), r.activeKey(e.CenterID, e.ProviderID)},
		expectedVersion, data, boolArg(e.IsActive()), id,
	).Result()
	if err != nil {
		r.l.Errorf(ctx, "repository.redis.EntryRepository.UpdateIfVersion: %v", err)
		return nil, err
	}

	switch res {
	case "not_found":
		return nil, repository.ErrEntryNotFound
	case "conflict":
		return nil, repository.ErrVersionConflict
	}

	return e, nil
}

func (r *EntryRepository) ListActive(ctx context.Context, centerID, providerID string) ([]*models.QueueEntry, error) {
	ids, err := r.cli.SMembers(ctx, r.activeKey(centerID, providerID)).Result()
	if err != nil {
		r.l.Errorf(ctx, "repository.redis.EntryRepository.ListActive: %v", err)
		return nil, err
	}

	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.entryKey(id)
	}

	vals, err := r.cli.MGet(ctx, keys...).Result()
	if err != nil {
		r.l.Errorf(ctx, "repository.redis.EntryRepository.ListActive: %v", err)
		return nil, err
	}

	out := make([]*models.QueueEntry, 0, len(vals))
	for _, v := range vals {
		data, ok := v.(string)
		if !ok {
			continue
		}

		var e models.QueueEntry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			r.l.Warnf(ctx, "repository.redis.EntryRepository.ListActive: skipping undecodable entry: %v", err)
			continue
		}

		if e.IsActive() {
			out = append(out, &e)
		}
	}

	return out, nil
}

func (r *EntryRepository) entryKey(id string) string {
	return fmt.Sprintf("hq:entry:%s", id)
}

func (r *EntryRepository) activeKey(centerID, providerID string) string {
	return fmt.Sprintf("hq:active:%s:%s", centerID, providerID)
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
