package repository

import (
	"context"
	"fmt"
	"time"

	"k-stock-insight/pkg/common"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLockRepository keeps two processes from ingesting the same table at once.
type RunLockRepository interface {
	Acquire(ctx context.Context, table, owner string) (bool, error)
	Release(ctx context.Context, table, owner string) error
}

type runLockRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

func NewRunLockRepository(redisClient *redis.Client, ttl time.Duration) RunLockRepository {
	return &runLockRepository{redisClient: redisClient, ttl: ttl}
}

func (r *runLockRepository) Acquire(ctx context.Context, table, owner string) (bool, error) {
	return r.redisClient.SetNX(ctx, fmt.Sprintf(common.RedisKeyRunLock, table), owner, r.ttl).Result()
}

// Release returns an error when the lock expired or was taken over.
func (r *runLockRepository) Release(ctx context.Context, table, owner string) error {
	key := fmt.Sprintf(common.RedisKeyRunLock, table)
	n, err := releaseScript.Run(ctx, r.redisClient, []string{key}, owner).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run lock %s no longer held by %s", key, owner)
	}
	return nil
}

type noopRunLockRepository struct{}

func NewNoopRunLockRepository() RunLockRepository {
	return noopRunLockRepository{}
}

func (noopRunLockRepository) Acquire(context.Context, string, string) (bool, error) {
	return true, nil
}

func (noopRunLockRepository) Release(context.Context, string, string) error {
	return nil
}
