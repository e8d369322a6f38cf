package repository

import (
	"context"
	"testing"
	"time"

	"k-stock-insight/internal/ingestor/dto"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestFailedEntityRepository_RecordListClear(t *testing.T) {
	mr, client := newMiniredis(t)
	repo := NewFailedEntityRepository(client, time.Hour)
	ctx := context.Background()

	window := dto.Window{
		Start: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
	}
	failedAt := time.Date(2025, 6, 4, 9, 30, 0, 0, time.UTC)
	require.NoError(t, repo.Record(ctx, "daily_prices", []dto.FailedEntity{
		{Key: "999999", Window: window, Reason: "timeout", FailedAt: failedAt},
		{Key: "000660", Window: window, Reason: "status 500", FailedAt: failedAt},
	}))

	assert.True(t, mr.Exists("ingest:failed:daily_prices"))
	assert.Equal(t, time.Hour, mr.TTL("ingest:failed:daily_prices"))

	failures, err := repo.List(ctx, "daily_prices")
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, "000660", failures[0].Key)
	assert.Equal(t, "999999", failures[1].Key)
	assert.True(t, failures[1].Window.Start.Equal(window.Start))
	assert.Equal(t, "timeout", failures[1].Reason)

	require.NoError(t, repo.Clear(ctx, "daily_prices", []string{"000660"}))
	failures, err = repo.List(ctx, "daily_prices")
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "999999", failures[0].Key)

	other, err := repo.List(ctx, "investor_trends")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRunLockRepository(t *testing.T) {
	mr, client := newMiniredis(t)
	repo := NewRunLockRepository(client, time.Minute)
	ctx := context.Background()

	ok, err := repo.Acquire(ctx, "daily_prices", "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Acquire(ctx, "daily_prices", "b")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Acquire(ctx, "sector_prices", "b")
	require.NoError(t, err)
	assert.True(t, ok, "different tables never contend")

	assert.Error(t, repo.Release(ctx, "daily_prices", "b"))
	require.NoError(t, repo.Release(ctx, "daily_prices", "a"))
	assert.False(t, mr.Exists("ingest:lock:daily_prices"))

	ok, err = repo.Acquire(ctx, "daily_prices", "b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunLockRepository_Expired(t *testing.T) {
	mr, client := newMiniredis(t)
	repo := NewRunLockRepository(client, time.Minute)
	ctx := context.Background()

	ok, err := repo.Acquire(ctx, "daily_prices", "a")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	assert.Error(t, repo.Release(ctx, "daily_prices", "a"))
}
