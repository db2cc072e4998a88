package feed_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
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
	"github.com/Guyuepp/go-feed-engine/internal/usecase/feed"
)

type rankingStub struct {
	domain.RankingUsecase
	rec     domain.Recommendation
	err     error
	release chan struct{}
	calls   atomic.Int32
}

func (r *rankingStub) ComputeRecommendations(_ context.Context, userID int64) (domain.Recommendation, error) {
	r.calls.Add(1)
	if r.release != nil {
		<-r.release
	}
	rec := r.rec
	rec.UserID = userID
	return rec, r.err
}

type affinityStub struct {
	domain.AffinityUsecase
	mu          sync.Mutex
	invalidated []int64
}

func (a *affinityStub) InvalidateProfile(_ context.Context, userID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.invalidated = append(a.invalidated, userID)
	return nil
}

type fixture struct {
	mr         *miniredis.Miniredis
	persistent domain.FeedStore
	snapshots  domain.FeedSnapshotRepository
	ranking    *rankingStub
	affinity   *affinityStub
	svc        *feed.Service
}

func newFixture(t *testing.T, rec domain.Recommendation, timeout time.Duration) *fixture {
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

	persistent := badgerRepo.NewFeedStore(db)
	snapshots := repository.NewFeedSnapshotRepository(redisRepo.NewFeedCache(rdb), persistent, 15*time.Minute)
	f := &fixture{
		mr:         mr,
		persistent: persistent,
		snapshots:  snapshots,
		ranking:    &rankingStub{rec: rec},
		affinity:   &affinityStub{},
	}
	f.svc = feed.NewService(snapshots, f.ranking, f.affinity, feed.Config{
		PersistentTTL:    6 * time.Hour,
		ComputeTimeout:   timeout,
		DefaultLimit:     50,
		AlgorithmVersion: "test",
	})
	return f
}

func recommendation(ids ...int64) domain.Recommendation {
	scores := make([]float64, len(ids))
	for i := range ids {
		scores[i] = float64(len(ids) - i)
	}
	return domain.Recommendation{
		PostIDs:        ids,
		Scores:         scores,
		Sources:        map[domain.CandidateSource]int{domain.SourceTrending: len(ids)},
		CandidateCount: len(ids),
		ComputedAt:     time.Now(),
	}
}

func TestGetRecommendedFeed_PersistentHitRepopulatesFast(t *testing.T) {
	f := newFixture(t, recommendation(), time.Second)
	ctx := context.Background()

	require.NoError(t, f.persistent.Set(ctx, domain.FeedSnapshot{
		UserID:    1,
		PostIDs:   []int64{30, 20, 10},
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	ids, err := f.svc.GetRecommendedFeed(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{30, 20, 10}, ids)
	assert.True(t, f.mr.Exists("feed:recommended:1"))

	ids, err = f.svc.GetRecommendedFeed(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{30, 20}, ids)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PersistentHits)
	assert.Equal(t, int64(1), stats.FastHits)
	assert.Equal(t, int32(0), f.ranking.calls.Load())
}

func TestGetRecommendedFeed_ComputesAndWritesBothTiers(t *testing.T) {
	f := newFixture(t, recommendation(5, 4, 3, 2, 1), time.Second)
	ctx := context.Background()

	ids, err := f.svc.GetRecommendedFeed(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 4, 3}, ids)

	assert.True(t, f.mr.Exists("feed:recommended:1"))
	snap, err := f.persistent.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 4, 3, 2, 1}, snap.PostIDs)
	assert.Equal(t, "test", snap.AlgorithmVersion)
	assert.Equal(t, 5, snap.Metadata.CandidateCount)
	assert.WithinDuration(t, time.Now().Add(6*time.Hour), snap.ExpiresAt, time.Minute)

	_, err = f.svc.GetRecommendedFeed(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.ranking.calls.Load())
}

func TestGetRecommendedFeed_NewUserGetsEmptyList(t *testing.T) {
	f := newFixture(t, recommendation(), time.Second)

	ids, err := f.svc.GetRecommendedFeed(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestGetRecommendedFeed_ComputeFailureIsEmpty(t *testing.T) {
	f := newFixture(t, recommendation(), time.Second)
	f.ranking.err = errors.New("boom")
	ctx := context.Background()

	ids, err := f.svc.GetRecommendedFeed(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ok, err := f.svc.HasCachedRecommendations(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetRecommendedFeed_TimeoutStillCaches(t *testing.T) {
	f := newFixture(t, recommendation(7, 8), 20*time.Millisecond)
	f.ranking.release = make(chan struct{})
	ctx := context.Background()

	ids, err := f.svc.GetRecommendedFeed(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	close(f.ranking.release)
	require.Eventually(t, func() bool {
		ok, err := f.svc.HasCachedRecommendations(ctx, 1)
		return err == nil && ok
	}, 2*time.Second, 10*time.Millisecond)

	ids, err = f.svc.GetRecommendedFeed(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8}, ids)
}

func TestGetRecommendedFeed_CollapsesConcurrentComputes(t *testing.T) {
	f := newFixture(t, recommendation(1, 2), time.Second)
	f.ranking.release = make(chan struct{})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([][]int64, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = f.svc.GetRecommendedFeed(ctx, 1, 10)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(f.ranking.release)
	wg.Wait()

	assert.Equal(t, int32(1), f.ranking.calls.Load())
	for _, ids := range results {
		assert.Equal(t, []int64{1, 2}, ids)
	}
}

func TestPreComputeFeed_Overwrites(t *testing.T) {
	f := newFixture(t, recommendation(9), time.Second)
	ctx := context.Background()

	require.NoError(t, f.snapshots.Save(ctx, domain.FeedSnapshot{
		UserID:    1,
		PostIDs:   []int64{1},
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	require.NoError(t, f.svc.PreComputeFeed(ctx, 1))

	ids, err := f.svc.GetRecommendedFeed(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, ids)
	snap, err := f.persistent.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, snap.PostIDs)
}

func TestPreComputeFeed_PropagatesFailure(t *testing.T) {
	f := newFixture(t, recommendation(), time.Second)
	f.ranking.err = errors.New("boom")

	assert.Error(t, f.svc.PreComputeFeed(context.Background(), 1))
}

func TestInvalidateRecommendations_CascadesToProfile(t *testing.T) {
	f := newFixture(t, recommendation(3), time.Second)
	ctx := context.Background()

	require.NoError(t, f.svc.PreComputeFeed(ctx, 1))
	require.NoError(t, f.svc.InvalidateRecommendations(ctx, 1))

	assert.False(t, f.mr.Exists("feed:recommended:1"))
	_, err := f.persistent.Get(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
	assert.Equal(t, []int64{1}, f.affinity.invalidated)
}

func TestCleanupExpired(t *testing.T) {
	f := newFixture(t, recommendation(), time.Second)
	ctx := context.Background()

	require.NoError(t, f.persistent.Set(ctx, domain.FeedSnapshot{UserID: 1, ExpiresAt: time.Now().Add(time.Hour)}))

	removed, err := f.svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PersistentEntries)
}
