package affinity_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guyuepp/go-feed-engine/domain"
	redisRepo "github.com/Guyuepp/go-feed-engine/internal/repository/redis"
	"github.com/Guyuepp/go-feed-engine/internal/usecase/affinity"
)

type relationStub struct {
	followed   []int64
	subscribed []int64
	stats      domain.InteractionStats
	statsErr   error
	calls      atomic.Int32
	delay      time.Duration
}

func (r *relationStub) FollowedCreators(context.Context, int64) ([]int64, error) {
	r.calls.Add(1)
	time.Sleep(r.delay)
	return r.followed, nil
}

func (r *relationStub) SubscribedCreators(context.Context, int64) ([]int64, error) {
	return r.subscribed, nil
}

func (r *relationStub) BlockedUsers(context.Context, int64) ([]int64, error) {
	return nil, nil
}

func (r *relationStub) InteractionStats(context.Context, int64) (domain.InteractionStats, error) {
	return r.stats, r.statsErr
}

type postStub struct {
	domain.PostRepository
	creators map[int64]int64
}

func (p postStub) GetByID(_ context.Context, id int64) (domain.Post, error) {
	creator, ok := p.creators[id]
	if !ok {
		return domain.Post{}, domain.ErrNotFound
	}
	return domain.Post{ID: id, CreatorID: creator}, nil
}

type userStub struct {
	users map[int64]domain.User
	err   error
}

func (u userStub) GetByIDs(_ context.Context, ids []int64) ([]domain.User, error) {
	if u.err != nil {
		return nil, u.err
	}
	var res []domain.User
	for _, id := range ids {
		if user, ok := u.users[id]; ok {
			res = append(res, user)
		}
	}
	return res, nil
}

func (u userStub) FetchActiveIDs(context.Context, time.Time, int64, int) ([]int64, error) {
	return nil, nil
}

type fixture struct {
	mr        *miniredis.Miniredis
	store     domain.InteractionStore
	relations *relationStub
	svc       *affinity.Service
}

func newFixture(t *testing.T, users userStub) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := redisRepo.NewInteractionCache(rdb, redisRepo.InteractionCacheConfig{
		RecentCap:   50,
		AffinityTTL: 30 * 24 * time.Hour,
		ProfileTTL:  30 * time.Minute,
	})
	relations := &relationStub{followed: []int64{10}, subscribed: []int64{11}}
	posts := postStub{creators: map[int64]int64{100: 20, 101: 21, 102: 22}}
	return &fixture{
		mr:        mr,
		store:     store,
		relations: relations,
		svc:       affinity.NewService(store, relations, posts, users, affinity.Config{RecentLimit: 50}),
	}
}

func TestTrackInteraction_WeightsAndResolution(t *testing.T) {
	f := newFixture(t, userStub{})
	ctx := context.Background()

	f.svc.TrackInteraction(ctx, 1, 100, 0, domain.InteractionView)
	f.svc.TrackInteraction(ctx, 1, 100, 0, domain.InteractionLike)
	f.svc.TrackInteraction(ctx, 1, 101, 21, domain.InteractionPurchase)
	f.svc.TrackInteraction(ctx, 1, 102, 22, domain.InteractionComment)
	// ignored
	f.svc.TrackInteraction(ctx, 1, 102, 22, domain.InteractionType("share"))
	f.svc.TrackInteraction(ctx, 0, 102, 22, domain.InteractionLike)

	top, err := f.svc.GetTopCreators(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.CreatorAffinity{
		{CreatorID: 21, Score: domain.InteractionPurchase.Weight()},
		{CreatorID: 22, Score: domain.InteractionComment.Weight()},
		{CreatorID: 20, Score: domain.InteractionView.Weight() + domain.InteractionLike.Weight()},
	}, top)

	recent, err := f.svc.GetRecentInteractions(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, domain.InteractionComment, recent[0].Type)
	assert.Equal(t, domain.InteractionPurchase, recent[1].Type)
}

func TestTrackInteraction_UnknownPostKeepsRecency(t *testing.T) {
	f := newFixture(t, userStub{})
	ctx := context.Background()

	f.svc.TrackInteraction(ctx, 1, 404, 0, domain.InteractionView)

	recent, err := f.svc.GetRecentInteractions(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, int64(0), recent[0].CreatorID)

	top, err := f.svc.GetTopCreators(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestBuildUserProfile_CacheAside(t *testing.T) {
	f := newFixture(t, userStub{})
	f.relations.stats = domain.InteractionStats{TotalLikes: 3}
	ctx := context.Background()

	f.svc.TrackInteraction(ctx, 1, 100, 0, domain.InteractionLike)

	p, err := f.svc.BuildUserProfile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, p.FollowedCreators)
	assert.Equal(t, []int64{11}, p.SubscribedCreators)
	require.Len(t, p.TopAffinityCreators, 1)
	assert.Equal(t, int64(20), p.TopAffinityCreators[0].CreatorID)
	assert.Equal(t, int64(3), p.Stats.TotalLikes)
	assert.Equal(t, int64(1), p.Stats.RecentByType[domain.InteractionLike])
	assert.True(t, f.mr.Exists("user:profile:1"))

	// served from cache
	f.relations.followed = []int64{99}
	p, err = f.svc.BuildUserProfile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, p.FollowedCreators)
	assert.Equal(t, int32(1), f.relations.calls.Load())

	require.NoError(t, f.svc.InvalidateProfile(ctx, 1))
	p, err = f.svc.BuildUserProfile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{99}, p.FollowedCreators)
}

func TestBuildUserProfile_DegradedIsNotCached(t *testing.T) {
	f := newFixture(t, userStub{})
	f.relations.statsErr = errors.New("db down")
	ctx := context.Background()

	p, err := f.svc.BuildUserProfile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, p.FollowedCreators)
	assert.Zero(t, p.Stats.Total())
	assert.False(t, f.mr.Exists("user:profile:1"))
}

func TestBuildUserProfile_CollapsesConcurrentBuilds(t *testing.T) {
	f := newFixture(t, userStub{})
	f.relations.delay = 50 * time.Millisecond
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.BuildUserProfile(ctx, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), f.relations.calls.Load())
}

func TestTrackInteraction_RepostInvalidatesProfile(t *testing.T) {
	f := newFixture(t, userStub{})
	ctx := context.Background()

	_, err := f.svc.BuildUserProfile(ctx, 1)
	require.NoError(t, err)
	require.True(t, f.mr.Exists("user:profile:1"))

	f.svc.TrackInteraction(ctx, 1, 100, 0, domain.InteractionLike)
	assert.True(t, f.mr.Exists("user:profile:1"))

	f.svc.TrackInteraction(ctx, 1, 100, 0, domain.InteractionRepost)
	assert.False(t, f.mr.Exists("user:profile:1"))
}

func TestGetContentPreferences(t *testing.T) {
	users := userStub{users: map[int64]domain.User{
		20: {ID: 20, FollowersCount: 500, PrimaryContentType: domain.ContentVideo},
		21: {ID: 21, FollowersCount: 50, PrimaryContentType: domain.ContentImage},
		22: {ID: 22, FollowersCount: 5, PrimaryContentType: domain.ContentImage},
	}}
	f := newFixture(t, users)
	f.relations.stats = domain.InteractionStats{TotalLikes: 150, TotalComments: 30, TotalReposts: 2}
	ctx := context.Background()

	// video: 10, image: 6 + 4
	f.svc.TrackInteraction(ctx, 1, 100, 0, domain.InteractionPurchase)
	f.svc.TrackInteraction(ctx, 1, 101, 0, domain.InteractionRepost)
	f.svc.TrackInteraction(ctx, 1, 102, 0, domain.InteractionComment)
	f.svc.TrackInteraction(ctx, 1, 102, 0, domain.InteractionView)

	prefs, err := f.svc.GetContentPreferences(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.ContentType{domain.ContentImage, domain.ContentVideo}, prefs.PreferredContentTypes)
	assert.Equal(t, map[domain.PreferenceLevel]int{
		domain.LevelHigh:   1,
		domain.LevelMedium: 1,
		domain.LevelLow:    1,
	}, prefs.CreatorPopularity)
	assert.Equal(t, domain.LevelHigh, prefs.EngagementLevel)
	assert.Equal(t, domain.LevelHigh, prefs.InteractionLevels[domain.InteractionLike])
	assert.Equal(t, domain.LevelMedium, prefs.InteractionLevels[domain.InteractionComment])
	assert.Equal(t, domain.LevelLow, prefs.InteractionLevels[domain.InteractionRepost])
}

func TestGetContentPreferences_NoHistory(t *testing.T) {
	f := newFixture(t, userStub{err: errors.New("unused")})

	prefs, err := f.svc.GetContentPreferences(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, prefs.PreferredContentTypes)
	assert.Equal(t, domain.LevelLow, prefs.EngagementLevel)
}

func TestLevelBoundaries(t *testing.T) {
	cases := []struct {
		n    int64
		want domain.PreferenceLevel
	}{
		{0, domain.LevelLow},
		{20, domain.LevelLow},
		{21, domain.LevelMedium},
		{100, domain.LevelMedium},
		{101, domain.LevelHigh},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, domain.LevelOf(c.n), "n=%d", c.n)
	}
}
