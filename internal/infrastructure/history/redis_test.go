package history

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "test"), mr
}

func TestRedisStore_ExistsAndUpsert(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t)

	exists, err := store.Exists(ctx, "t1", "a")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Upsert(ctx, record("t1", "a", entities.RecordStatusFailed)))
	exists, err = store.Exists(ctx, "t1", "a")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Upsert(ctx, record("t1", "a", entities.RecordStatusSuccess)))
	require.NoError(t, store.Upsert(ctx, record("t1", "a", entities.RecordStatusFailed)))

	exists, err = store.Exists(ctx, "t1", "a")
	require.NoError(t, err)
	assert.True(t, exists, "成功记录不应被失败覆盖")
	assert.Equal(t, "success", mr.HGet("test:t1:status", "a"))
}

func TestRedisStore_AggregateCounts(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedis(t)

	latest := time.Now().Truncate(time.Millisecond)
	r1 := record("t1", "a", entities.RecordStatusSuccess)
	r1.Timestamp = latest.Add(-time.Minute)
	r2 := record("t1", "b", entities.RecordStatusSuccess)
	r2.Timestamp = latest
	r3 := record("t1", "c", entities.RecordStatusFailed)

	for _, r := range []*entities.DownloadRecord{r1, r2, r3} {
		require.NoError(t, store.Upsert(ctx, r))
	}

	counts, err := store.AggregateCounts(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 2, counts.Success)
	assert.Equal(t, 1, counts.Failed)
	require.NotNil(t, counts.LastSuccessAt)
	assert.True(t, counts.LastSuccessAt.Equal(latest))

	empty, err := store.AggregateCounts(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
}

func TestRedisStore_ConnectionError(t *testing.T) {
	store, mr := newTestRedis(t)
	mr.Close()

	_, err := store.Exists(context.Background(), "t1", "a")
	assert.Error(t, err)
}
