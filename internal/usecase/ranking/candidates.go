package ranking

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/Guyuepp/go-feed-engine/internal/observability"
)

const (
	trendingWindow  = 7 * 24 * time.Hour
	discoveryWindow = 3 * 24 * time.Hour
	repostWindow    = 24 * time.Hour

	preferredAffinityCreators = 30
)

// pool shares of the candidate pool size, in merge order
var pools = []struct {
	source domain.CandidateSource
	share  float64
}{
	{domain.SourcePreferred, 0.60},
	{domain.SourceTrending, 0.25},
	{domain.SourceDiscovery, 0.15},
	{domain.SourceRepost, 0.10},
}

func poolLimit(total int, share float64) int {
	return max(int(float64(total)*share), 1)
}

// GetCandidatePosts fetches the four pools in parallel and merges them, first occurrence winning.
// A failing pool contributes nothing.
func (s *Service) GetCandidatePosts(ctx context.Context, userID int64, profile domain.UserProfile) (domain.CandidateSet, error) {
	blocked, err := s.relations.BlockedUsers(ctx, userID)
	if err != nil {
		logrus.Warnf("failed to load blocked users, user: %d, err: %v", userID, err)
	}
	isBlocked := make(map[int64]bool, len(blocked))
	for _, id := range blocked {
		isBlocked[id] = true
	}

	var creators []int64
	for _, id := range profile.PreferredCreators(preferredAffinityCreators) {
		if !isBlocked[id] && id != userID {
			creators = append(creators, id)
		}
	}

	now := s.now()
	base := domain.CandidateQuery{
		UserID:            userID,
		ExcludeCreatorIDs: blocked,
		ExcludePostIDs:    profile.RecentPostIDs(),
	}

	results := make([][]domain.Post, len(pools))
	g, gctx := errgroup.WithContext(ctx)
	for i, pool := range pools {
		q := base
		q.Limit = poolLimit(s.cfg.PoolSize, pool.share)

		var fetch func(context.Context, domain.CandidateQuery) ([]domain.Post, error)
		switch pool.source {
		case domain.SourcePreferred:
			q.CreatorIDs = creators
			q.FollowedIDs = profile.FollowedCreators
			q.SubscribedIDs = profile.SubscribedCreators
			fetch = s.posts.FetchByCreators
		case domain.SourceTrending:
			q.Since = now.Add(-trendingWindow)
			fetch = s.posts.FetchTrending
		case domain.SourceDiscovery:
			q.Since = now.Add(-discoveryWindow)
			fetch = s.posts.FetchRecent
		case domain.SourceRepost:
			q.CreatorIDs = append(append([]int64{}, creators...), userID)
			q.Since = now.Add(-repostWindow)
			fetch = s.posts.FetchReposts
		}

		g.Go(func() error {
			posts, err := fetch(gctx, q)
			if err != nil {
				observability.CandidateSourceErrors.WithLabelValues(string(pool.source)).Inc()
				logrus.WithFields(logrus.Fields{"user_id": userID, "source": pool.source}).
					Warnf("candidate pool failed: %v", err)
				return nil
			}
			results[i] = posts
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return domain.CandidateSet{}, err
	}
	return merge(results), nil
}

func merge(results [][]domain.Post) domain.CandidateSet {
	set := domain.CandidateSet{
		Posts:   []domain.Post{},
		Sources: make(map[domain.CandidateSource]int, len(pools)),
	}
	seen := make(map[int64]struct{})
	for i, posts := range results {
		src := pools[i].source
		set.Sources[src] = 0
		for _, p := range posts {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			set.Posts = append(set.Posts, p)
			set.Sources[src]++
		}
	}
	return set
}
