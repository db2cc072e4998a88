package affinity

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Guyuepp/go-feed-engine/domain"
)

const (
	profileAffinityCreators = 30
	preferenceCreators      = 20
	defaultListSize         = 10
)

type Config struct {
	// RecentLimit is how many recent interactions a profile carries
	RecentLimit int
}

type Service struct {
	store     domain.InteractionStore
	relations domain.RelationRepository
	posts     domain.PostRepository
	users     domain.UserRepository
	cfg       Config
	now       func() time.Time

	builds singleflight.Group
}

var _ domain.AffinityUsecase = (*Service)(nil)

func NewService(store domain.InteractionStore, r domain.RelationRepository, p domain.PostRepository, u domain.UserRepository, cfg Config) *Service {
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 100
	}
	return &Service{
		store:     store,
		relations: r,
		posts:     p,
		users:     u,
		cfg:       cfg,
		now:       time.Now,
	}
}

// TrackInteraction records the interaction in the recency log and bumps the creator's affinity.
// It never fails; problems are logged.
func (s *Service) TrackInteraction(ctx context.Context, userID, postID, creatorID int64, typ domain.InteractionType) {
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "post_id": postID, "type": typ})
	if userID <= 0 || postID <= 0 || !typ.Valid() {
		log.Warn("ignoring invalid interaction")
		return
	}

	if creatorID <= 0 {
		post, err := s.posts.GetByID(ctx, postID)
		if err != nil {
			// still worth keeping in the recency log
			log.Warnf("failed to resolve creator: %v", err)
		} else {
			creatorID = post.CreatorID
		}
	}

	event := domain.InteractionEvent{
		PostID:    postID,
		CreatorID: creatorID,
		Type:      typ,
		Timestamp: s.now().UTC(),
	}
	if err := s.store.Record(ctx, userID, event, typ.Weight()); err != nil {
		log.Warnf("failed to record interaction: %v", err)
		return
	}

	switch typ {
	case domain.InteractionRepost, domain.InteractionPurchase:
		if err := s.InvalidateProfile(ctx, userID); err != nil {
			log.Warnf("failed to invalidate profile: %v", err)
		}
	}
}

func (s *Service) GetTopCreators(ctx context.Context, userID int64, n int) ([]domain.CreatorAffinity, error) {
	if n <= 0 {
		n = defaultListSize
	}
	res, err := s.store.TopCreators(ctx, userID, n)
	if err != nil {
		logrus.Warnf("failed to read affinity, user: %d, err: %v", userID, err)
		return []domain.CreatorAffinity{}, nil
	}
	return res, nil
}

func (s *Service) GetRecentInteractions(ctx context.Context, userID int64, n int) ([]domain.InteractionEvent, error) {
	if n <= 0 {
		n = defaultListSize
	}
	res, err := s.store.RecentInteractions(ctx, userID, n)
	if err != nil {
		logrus.Warnf("failed to read recent interactions, user: %d, err: %v", userID, err)
		return []domain.InteractionEvent{}, nil
	}
	return res, nil
}

// BuildUserProfile returns the cached profile or builds it. Concurrent builds for one user share a result.
func (s *Service) BuildUserProfile(ctx context.Context, userID int64) (domain.UserProfile, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, domain.ErrCacheMiss) {
		logrus.Warnf("failed to read cached profile, user: %d, err: %v", userID, err)
	}

	v, err, _ := s.builds.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		return s.build(ctx, userID), nil
	})
	if err != nil {
		return domain.UserProfile{}, err
	}
	return v.(domain.UserProfile), nil
}

// build never fails: each failing source leaves its part empty, and a degraded profile is not cached
func (s *Service) build(ctx context.Context, userID int64) domain.UserProfile {
	profile := domain.UserProfile{
		UserID:              userID,
		FollowedCreators:    []int64{},
		SubscribedCreators:  []int64{},
		TopAffinityCreators: []domain.CreatorAffinity{},
		RecentInteractions:  []domain.InteractionEvent{},
	}
	var degraded atomic.Bool
	fail := func(part string, err error) {
		degraded.Store(true)
		logrus.WithFields(logrus.Fields{"user_id": userID, "part": part}).Warnf("profile source failed: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := s.relations.FollowedCreators(gctx, userID)
		if err != nil {
			fail("followed", err)
			return nil
		}
		profile.FollowedCreators = nonNil(ids)
		return nil
	})
	g.Go(func() error {
		ids, err := s.relations.SubscribedCreators(gctx, userID)
		if err != nil {
			fail("subscribed", err)
			return nil
		}
		profile.SubscribedCreators = nonNil(ids)
		return nil
	})
	g.Go(func() error {
		top, err := s.store.TopCreators(gctx, userID, profileAffinityCreators)
		if err != nil {
			fail("affinity", err)
			return nil
		}
		if top != nil {
			profile.TopAffinityCreators = top
		}
		return nil
	})
	g.Go(func() error {
		recent, err := s.store.RecentInteractions(gctx, userID, s.cfg.RecentLimit)
		if err != nil {
			fail("recent", err)
			return nil
		}
		if recent != nil {
			profile.RecentInteractions = recent
		}
		return nil
	})
	g.Go(func() error {
		stats, err := s.relations.InteractionStats(gctx, userID)
		if err != nil {
			fail("stats", err)
			return nil
		}
		profile.Stats = stats
		return nil
	})
	_ = g.Wait()

	profile.Stats.RecentByType = make(map[domain.InteractionType]int64)
	for _, ev := range profile.RecentInteractions {
		profile.Stats.RecentByType[ev.Type]++
	}
	profile.BuiltAt = s.now().UTC()

	if degraded.Load() {
		return profile
	}
	if err := s.store.SetProfile(ctx, profile); err != nil {
		logrus.Warnf("failed to cache profile, user: %d, err: %v", userID, err)
	}
	return profile
}

func (s *Service) InvalidateProfile(ctx context.Context, userID int64) error {
	return s.store.DeleteProfile(ctx, userID)
}

// GetContentPreferences derives tastes from the top affinity creators and the durable aggregates.
func (s *Service) GetContentPreferences(ctx context.Context, userID int64) (domain.ContentPreferences, error) {
	prefs := domain.ContentPreferences{
		PreferredContentTypes: []domain.ContentType{},
		CreatorPopularity:     map[domain.PreferenceLevel]int{},
		InteractionLevels:     map[domain.InteractionType]domain.PreferenceLevel{},
	}

	profile, err := s.BuildUserProfile(ctx, userID)
	if err != nil {
		logrus.Warnf("failed to build profile for preferences, user: %d, err: %v", userID, err)
		prefs.EngagementLevel = domain.LevelLow
		return prefs, nil
	}

	prefs.EngagementLevel = domain.LevelOf(profile.Stats.Total())
	prefs.InteractionLevels[domain.InteractionLike] = domain.LevelOf(profile.Stats.TotalLikes)
	prefs.InteractionLevels[domain.InteractionComment] = domain.LevelOf(profile.Stats.TotalComments)
	prefs.InteractionLevels[domain.InteractionRepost] = domain.LevelOf(profile.Stats.TotalReposts)
	prefs.InteractionLevels[domain.InteractionPurchase] = domain.LevelOf(profile.Stats.TotalPurchases)

	top := profile.TopAffinityCreators
	if len(top) > preferenceCreators {
		top = top[:preferenceCreators]
	}
	if len(top) == 0 {
		return prefs, nil
	}

	ids := make([]int64, len(top))
	affinity := make(map[int64]float64, len(top))
	for i, a := range top {
		ids[i] = a.CreatorID
		affinity[a.CreatorID] = a.Score
	}
	creators, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		logrus.Warnf("failed to load top creators, user: %d, err: %v", userID, err)
		return prefs, nil
	}

	weights := make(map[domain.ContentType]float64)
	for _, c := range creators {
		prefs.CreatorPopularity[domain.LevelOf(c.FollowersCount)]++
		if c.PrimaryContentType != "" {
			weights[c.PrimaryContentType] += affinity[c.ID]
		}
	}
	for t := range weights {
		prefs.PreferredContentTypes = append(prefs.PreferredContentTypes, t)
	}
	sort.Slice(prefs.PreferredContentTypes, func(i, j int) bool {
		a, b := prefs.PreferredContentTypes[i], prefs.PreferredContentTypes[j]
		if weights[a] != weights[b] {
			return weights[a] > weights[b]
		}
		return a < b
	})
	return prefs, nil
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
