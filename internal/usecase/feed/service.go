package feed

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/Guyuepp/go-feed-engine/internal/observability"
)

type Config struct {
	// PersistentTTL is the lifetime of a computed snapshot
	PersistentTTL time.Duration
	// ComputeTimeout bounds how long a feed read waits on a compute
	ComputeTimeout   time.Duration
	DefaultLimit     int
	AlgorithmVersion string
}

type Service struct {
	snapshots domain.FeedSnapshotRepository
	ranking   domain.RankingUsecase
	affinity  domain.AffinityUsecase
	cfg       Config
	now       func() time.Time

	computes singleflight.Group
}

var _ domain.FeedUsecase = (*Service)(nil)

func NewService(snapshots domain.FeedSnapshotRepository, r domain.RankingUsecase, a domain.AffinityUsecase, cfg Config) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 50
	}
	if cfg.AlgorithmVersion == "" {
		cfg.AlgorithmVersion = "v1"
	}
	return &Service{
		snapshots: snapshots,
		ranking:   r,
		affinity:  a,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// computed is the shared result of one compute; a failed write still serves the feed
type computed struct {
	snap    domain.FeedSnapshot
	saveErr error
}

// GetRecommendedFeed serves the user's feed from the fast tier, the persistent tier, or a fresh compute.
// A compute that fails or outlasts ComputeTimeout yields an empty feed.
func (s *Service) GetRecommendedFeed(ctx context.Context, userID int64, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}

	snap, tier, err := s.snapshots.Get(ctx, userID)
	if err == nil {
		observability.FeedRequests.WithLabelValues(string(tier)).Inc()
		return head(snap.PostIDs, limit), nil
	}
	if !errors.Is(err, domain.ErrCacheMiss) {
		logrus.Warnf("feed cache read failed, user: %d, err: %v", userID, err)
	}

	timer := time.NewTimer(s.cfg.ComputeTimeout)
	defer timer.Stop()

	select {
	case res := <-s.startCompute(ctx, userID):
		if res.Err != nil {
			logrus.Errorf("failed to compute feed, user: %d, err: %v", userID, res.Err)
			break
		}
		observability.FeedRequests.WithLabelValues(string(domain.TierCompute)).Inc()
		return head(res.Val.(computed).snap.PostIDs, limit), nil
	case <-timer.C:
		logrus.Warnf("feed compute timed out after %s, user: %d", s.cfg.ComputeTimeout, userID)
	case <-ctx.Done():
	}

	observability.FeedRequests.WithLabelValues("empty").Inc()
	return []int64{}, nil
}

// PreComputeFeed recomputes the feed and overwrites both tiers.
func (s *Service) PreComputeFeed(ctx context.Context, userID int64) error {
	select {
	case res := <-s.startCompute(ctx, userID):
		if res.Err != nil {
			return res.Err
		}
		return res.Val.(computed).saveErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startCompute joins the user's in-flight compute or starts one detached from the caller,
// so an abandoned compute still completes and caches its result.
func (s *Service) startCompute(ctx context.Context, userID int64) <-chan singleflight.Result {
	detached := context.WithoutCancel(ctx)
	return s.computes.DoChan(strconv.FormatInt(userID, 10), func() (any, error) {
		return s.compute(detached, userID)
	})
}

func (s *Service) compute(ctx context.Context, userID int64) (computed, error) {
	start := s.now()
	rec, err := s.ranking.ComputeRecommendations(ctx, userID)
	if err != nil {
		return computed{}, err
	}

	snap := domain.FeedSnapshot{
		UserID:           userID,
		PostIDs:          rec.PostIDs,
		Scores:           rec.Scores,
		ComputedAt:       rec.ComputedAt,
		ExpiresAt:        start.Add(s.cfg.PersistentTTL),
		AlgorithmVersion: s.cfg.AlgorithmVersion,
		Metadata: domain.FeedMetadata{
			Sources:        rec.Sources,
			CandidateCount: rec.CandidateCount,
			ComputeMillis:  s.now().Sub(start).Milliseconds(),
		},
	}
	if snap.ComputedAt.IsZero() {
		snap.ComputedAt = start
	}

	saveErr := s.snapshots.Save(ctx, snap)
	if saveErr != nil {
		logrus.Warnf("failed to cache feed, user: %d, err: %v", userID, saveErr)
	}
	return computed{snap: snap, saveErr: saveErr}, nil
}

// InvalidateRecommendations clears both tiers and the profile the feed was built from.
func (s *Service) InvalidateRecommendations(ctx context.Context, userID int64) error {
	return errors.Join(
		s.snapshots.Delete(ctx, userID),
		s.affinity.InvalidateProfile(ctx, userID),
	)
}

func (s *Service) HasCachedRecommendations(ctx context.Context, userID int64) (bool, error) {
	return s.snapshots.Exists(ctx, userID)
}

func (s *Service) Stats(ctx context.Context) (domain.FeedCacheStats, error) {
	return s.snapshots.Stats(ctx)
}

func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.snapshots.CleanupExpired(ctx)
}

func head(ids []int64, n int) []int64 {
	if ids == nil {
		return []int64{}
	}
	if len(ids) > n {
		return ids[:n]
	}
	return ids
}
