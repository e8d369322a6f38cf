package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"k-stock-insight/internal/ingestor/dto"
	"k-stock-insight/pkg/common"

	"github.com/redis/go-redis/v9"
)

// FailedEntityRepository remembers entities that failed outright so a later run can retry them.
type FailedEntityRepository interface {
	Record(ctx context.Context, table string, failures []dto.FailedEntity) error
	List(ctx context.Context, table string) ([]dto.FailedEntity, error)
	Clear(ctx context.Context, table string, keys []string) error
}

type failedEntityRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

func NewFailedEntityRepository(redisClient *redis.Client, ttl time.Duration) FailedEntityRepository {
	return &failedEntityRepository{redisClient: redisClient, ttl: ttl}
}

func (r *failedEntityRepository) Record(ctx context.Context, table string, failures []dto.FailedEntity) error {
	if len(failures) == 0 {
		return nil
	}

	key := fmt.Sprintf(common.RedisKeyFailedEntities, table)
	values := make(map[string]interface{}, len(failures))
	for _, f := range failures {
		payload, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("marshal failed entity %s: %w", f.Key, err)
		}
		values[f.Key] = payload
	}

	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	return err
}

func (r *failedEntityRepository) List(ctx context.Context, table string) ([]dto.FailedEntity, error) {
	key := fmt.Sprintf(common.RedisKeyFailedEntities, table)
	entries, err := r.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	failures := make([]dto.FailedEntity, 0, len(entries))
	for field, raw := range entries {
		var f dto.FailedEntity
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			return nil, fmt.Errorf("unmarshal failed entity %s: %w", field, err)
		}
		failures = append(failures, f)
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Key < failures[j].Key })
	return failures, nil
}

func (r *failedEntityRepository) Clear(ctx context.Context, table string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.redisClient.HDel(ctx, fmt.Sprintf(common.RedisKeyFailedEntities, table), keys...).Err()
}

type noopFailedEntityRepository struct{}

// NewNoopFailedEntityRepository is used when redis is not configured.
func NewNoopFailedEntityRepository() FailedEntityRepository {
	return noopFailedEntityRepository{}
}

func (noopFailedEntityRepository) Record(context.Context, string, []dto.FailedEntity) error {
	return nil
}

func (noopFailedEntityRepository) List(context.Context, string) ([]dto.FailedEntity, error) {
	return nil, nil
}

func (noopFailedEntityRepository) Clear(context.Context, string, []string) error {
	return nil
}
