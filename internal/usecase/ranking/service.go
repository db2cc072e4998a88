package ranking

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/Guyuepp/go-feed-engine/internal/observability"
)

type Config struct {
	PoolSize   int // total candidates across the four pools
	OutputSize int // ranked IDs kept
	Weights    Weights
}

type Service struct {
	posts      domain.PostRepository
	relations  domain.RelationRepository
	affinity   domain.AffinityUsecase
	engagement domain.EngagementUsecase
	cfg        Config
	now        func() time.Time
}

var _ domain.RankingUsecase = (*Service)(nil)

func NewService(p domain.PostRepository, r domain.RelationRepository, a domain.AffinityUsecase, e domain.EngagementUsecase, cfg Config) *Service {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 200
	}
	if cfg.OutputSize <= 0 {
		cfg.OutputSize = 50
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	return &Service{
		posts:      p,
		relations:  r,
		affinity:   a,
		engagement: e,
		cfg:        cfg,
		now:        time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type scored struct {
	id    int64
	score float64
}

// ComputeRecommendations ranks the user's candidates and keeps the best OutputSize.
func (s *Service) ComputeRecommendations(ctx context.Context, userID int64) (rec domain.Recommendation, err error) {
	ctx, span := observability.StartSpan(ctx, "ranking.ComputeRecommendations", attribute.Int64("user.id", userID))
	defer func() { observability.EndSpan(span, err) }()
	defer observability.ObserveCompute(time.Now())

	var (
		profile domain.UserProfile
		prefs   domain.ContentPreferences
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.affinity.BuildUserProfile(gctx, userID)
		if err != nil {
			logrus.Warnf("ranking without profile, user: %d, err: %v", userID, err)
			p = domain.UserProfile{UserID: userID}
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		p, err := s.affinity.GetContentPreferences(gctx, userID)
		if err != nil {
			logrus.Warnf("ranking without preferences, user: %d, err: %v", userID, err)
		}
		prefs = p
		return nil
	})
	_ = g.Wait()

	candidates, err := s.GetCandidatePosts(ctx, userID, profile)
	if err != nil {
		return rec, err
	}

	now := s.now()
	rec = domain.Recommendation{
		UserID:         userID,
		PostIDs:        []int64{},
		Scores:         []float64{},
		Sources:        candidates.Sources,
		CandidateCount: len(candidates.Posts),
		ComputedAt:     now,
	}
	span.SetAttributes(attribute.Int("feed.candidates", rec.CandidateCount))
	if len(candidates.Posts) == 0 {
		return rec, nil
	}

	ids := make([]int64, len(candidates.Posts))
	for i := range candidates.Posts {
		ids[i] = candidates.Posts[i].ID
	}
	likes, err := s.engagement.GetMultiplePostsLikeData(ctx, ids, userID)
	if err != nil {
		logrus.Warnf("ranking without like data, user: %d, err: %v", userID, err)
	}

	ranked := make([]scored, len(candidates.Posts))
	for i := range candidates.Posts {
		p := &candidates.Posts[i]
		d, ok := likes[p.ID]
		if ok {
			// the counter cache is fresher than the durable column
			p.LikesCount = d.Count
		}
		ranked[i] = scored{id: p.ID, score: s.cfg.Weights.Score(p, &profile, &prefs, d.IsLiked, now)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if len(ranked) > s.cfg.OutputSize {
		ranked = ranked[:s.cfg.OutputSize]
	}

	for _, r := range ranked {
		rec.PostIDs = append(rec.PostIDs, r.id)
		rec.Scores = append(rec.Scores, r.score)
	}
	return rec, nil
}
