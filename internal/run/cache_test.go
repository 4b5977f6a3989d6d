package run

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthside/leadscore/internal/scoring"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCache(client, ttl), mr
}

func TestCacheStoreAndGetLatest(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)

	snaps := []scoring.ScoreSnapshot{
		{ContactID: uuid.New(), RunID: uuid.New(), Heat: 82.5, Priority: 110.2,
			BucketID: "hot-now", WeightsVersion: "default-v1", ComputedAt: time.Now().UTC()},
		{ContactID: uuid.New(), RunID: uuid.New(), Heat: 8, Priority: 6,
			BucketID: "long-nurture", WeightsVersion: "default-v1", ComputedAt: time.Now().UTC()},
	}
	require.NoError(t, cache.StoreLatest(context.Background(), snaps))

	got, err := cache.GetLatest(context.Background(), snaps[0].ContactID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 82.5, got.Heat)
	assert.Equal(t, "hot-now", got.BucketID)
}

func TestCacheMissReturnsNil(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)

	got, err := cache.GetLatest(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheEntriesExpire(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)

	snap := scoring.ScoreSnapshot{ContactID: uuid.New(), Heat: 50}
	require.NoError(t, cache.StoreLatest(context.Background(), []scoring.ScoreSnapshot{snap}))

	mr.FastForward(2 * time.Minute)

	got, err := cache.GetLatest(context.Background(), snap.ContactID)
	require.NoError(t, err)
	assert.Nil(t, got, "expired entry should read as a miss")
}

func TestCacheDefaultTTL(t *testing.T) {
	cache, mr := newTestCache(t, 0)

	snap := scoring.ScoreSnapshot{ContactID: uuid.New()}
	require.NoError(t, cache.StoreLatest(context.Background(), []scoring.ScoreSnapshot{snap}))

	ttl := mr.TTL(cacheKey(snap.ContactID))
	assert.Equal(t, 12*time.Hour, ttl)
}
