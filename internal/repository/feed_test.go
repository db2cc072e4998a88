package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/Guyuepp/go-feed-engine/internal/repository"
	badgerRepo "github.com/Guyuepp/go-feed-engine/internal/repository/badger"
	redisRepo "github.com/Guyuepp/go-feed-engine/internal/repository/redis"
)

type tiers struct {
	mr         *miniredis.Miniredis
	fast       domain.FeedCache
	persistent domain.FeedStore
}

func newTiers(t *testing.T) tiers {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return tiers{mr: mr, fast: redisRepo.NewFeedCache(rdb), persistent: badgerRepo.NewFeedStore(db)}
}

func TestFeedSnapshotRepository_PersistentHitBackfillsFast(t *testing.T) {
	tt := newTiers(t)
	repo := repository.NewFeedSnapshotRepository(tt.fast, tt.persistent, 15*time.Minute)
	ctx := context.Background()

	snap := domain.FeedSnapshot{UserID: 7, PostIDs: []int64{3, 2, 1}, ExpiresAt: time.Now().Add(6 * time.Hour)}
	require.NoError(t, tt.persistent.Set(ctx, snap))

	got, tier, err := repo.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPersistent, tier)
	assert.Equal(t, snap.PostIDs, got.PostIDs)

	got, tier, err = repo.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.TierFast, tier)
	assert.Equal(t, snap.PostIDs, got.PostIDs)
	assert.Equal(t, 15*time.Minute, tt.mr.TTL("feed:recommended:7"))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.FastHits)
	assert.Equal(t, int64(1), stats.PersistentHits)
	assert.Equal(t, int64(1), stats.FastEntries)
	assert.Equal(t, int64(1), stats.PersistentEntries)
}

func TestFeedSnapshotRepository_ExpiredPersistentIsMiss(t *testing.T) {
	tt := newTiers(t)
	now := time.Now()
	repo := repository.NewFeedSnapshotRepository(tt.fast, tt.persistent, 15*time.Minute).
		WithClock(func() time.Time { return now.Add(2 * time.Hour) })
	ctx := context.Background()

	require.NoError(t, tt.persistent.Set(ctx, domain.FeedSnapshot{UserID: 7, PostIDs: []int64{1}, ExpiresAt: now.Add(time.Hour)}))

	_, _, err := repo.Get(ctx, 7)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	ok, err := repo.Exists(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := repo.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestFeedSnapshotRepository_SaveAndDeleteBothTiers(t *testing.T) {
	tt := newTiers(t)
	repo := repository.NewFeedSnapshotRepository(tt.fast, tt.persistent, 15*time.Minute)
	ctx := context.Background()

	snap := domain.FeedSnapshot{UserID: 7, PostIDs: []int64{9}, ExpiresAt: time.Now().Add(10 * time.Minute)}
	require.NoError(t, repo.Save(ctx, snap))

	// the fast copy never outlives the snapshot
	assert.LessOrEqual(t, tt.mr.TTL("feed:recommended:7"), 10*time.Minute)
	_, err := tt.persistent.Get(ctx, 7)
	require.NoError(t, err)

	ok, err := repo.Exists(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.Delete(ctx, 7))
	_, _, err = repo.Get(ctx, 7)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

type failingFeedCache struct{ domain.FeedCache }

var errDown = errors.New("redis down")

func (failingFeedCache) Get(context.Context, int64) (domain.FeedSnapshot, error) {
	return domain.FeedSnapshot{}, errDown
}

func (failingFeedCache) Set(context.Context, domain.FeedSnapshot, time.Duration) error {
	return errDown
}

func TestFeedSnapshotRepository_FastOutageDegrades(t *testing.T) {
	tt := newTiers(t)
	repo := repository.NewFeedSnapshotRepository(failingFeedCache{tt.fast}, tt.persistent, 15*time.Minute)
	ctx := context.Background()

	require.NoError(t, tt.persistent.Set(ctx, domain.FeedSnapshot{UserID: 7, PostIDs: []int64{4}, ExpiresAt: time.Now().Add(time.Hour)}))

	got, tier, err := repo.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPersistent, tier)
	assert.Equal(t, []int64{4}, got.PostIDs)

	err = repo.Save(ctx, domain.FeedSnapshot{UserID: 8, ExpiresAt: time.Now().Add(time.Hour)})
	assert.ErrorIs(t, err, errDown)
	_, err = tt.persistent.Get(ctx, 8)
	assert.NoError(t, err, "persistent tier is still written")
}
