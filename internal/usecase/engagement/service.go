package engagement

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/Guyuepp/go-feed-engine/internal/observability"
)

const (
	bloomSyncBatch   = 1000
	hydrationBackoff = 20 * time.Millisecond
)

type Config struct {
	// HydrationClaimTTL bounds how long a crashed hydrator can block a post
	HydrationClaimTTL time.Duration
	// HydrationWait is how long a toggle waits on someone else's hydration
	HydrationWait        time.Duration
	ReconcileConcurrency int
}

type Service struct {
	posts domain.PostRepository
	cache domain.LikeCache
	bloom domain.BloomRepository
	cfg   Config
}

var _ domain.EngagementUsecase = (*Service)(nil)

// NewService will create a new engagement service object
func NewService(p domain.PostRepository, c domain.LikeCache, b domain.BloomRepository, cfg Config) *Service {
	if cfg.ReconcileConcurrency <= 0 {
		cfg.ReconcileConcurrency = 1
	}
	return &Service{
		posts: p,
		cache: c,
		bloom: b,
		cfg:   cfg,
	}
}

func (s *Service) GetLikeCount(ctx context.Context, postID int64) (int64, error) {
	count, err := s.cache.GetCount(ctx, postID)
	if err == nil {
		return count, nil
	}

	if errors.Is(err, domain.ErrCacheMiss) {
		pending, perr := s.cache.HasPending(ctx, postID)
		if perr == nil && pending {
			// fast store is authoritative but its counter is gone
			return 0, nil
		}
		if perr != nil {
			logrus.Warnf("failed to check pending likes, post: %d, err: %v", postID, perr)
		}
	} else {
		logrus.Warnf("like cache unavailable, reading durable count, post: %d, err: %v", postID, err)
	}

	count, err = s.posts.GetLikeCount(ctx, postID)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, err
	}
	if err != nil {
		logrus.Errorf("failed to GetLikeCount from repo, post: %d, err: %v", postID, err)
		return 0, nil
	}
	return count, nil
}

func (s *Service) HasUserLiked(ctx context.Context, postID, userID int64) (bool, error) {
	if userID <= 0 {
		return false, nil
	}
	liked, err := s.cache.IsMember(ctx, postID, userID)
	if err == nil {
		return liked, nil
	}
	if !errors.Is(err, domain.ErrCacheMiss) {
		logrus.Warnf("like cache unavailable, reading durable like, post: %d, err: %v", postID, err)
	}

	liked, err = s.posts.IsLiked(ctx, postID, userID)
	if err != nil {
		logrus.Errorf("failed to IsLiked from repo, post: %d, err: %v", postID, err)
		return false, nil
	}
	return liked, nil
}

// GetMultiplePostsLikeData batches counts and memberships; userID 0 is anonymous.
// Posts unknown to both stores are left out of the result.
func (s *Service) GetMultiplePostsLikeData(ctx context.Context, postIDs []int64, userID int64) (map[int64]domain.LikeData, error) {
	ids := dedupe(postIDs)
	if len(ids) == 0 {
		return map[int64]domain.LikeData{}, nil
	}
	if userID < 0 {
		userID = 0
	}

	res, misses, err := s.cache.BatchLikeData(ctx, ids, userID)
	if err != nil {
		logrus.Warnf("like cache unavailable, reading durable like data for %d posts, err: %v", len(ids), err)
		res, misses = make(map[int64]domain.LikeData, len(ids)), ids
	}
	if len(misses) == 0 {
		return res, nil
	}

	counts, err := s.posts.GetLikeCounts(ctx, misses)
	if err != nil {
		logrus.Errorf("failed to GetLikeCounts from repo: %v", err)
		for _, id := range misses {
			res[id] = domain.LikeData{}
		}
		return res, nil
	}

	liked := map[int64]bool{}
	if userID > 0 {
		likedIDs, err := s.posts.FilterLiked(ctx, userID, misses)
		if err != nil {
			logrus.Errorf("failed to FilterLiked from repo, user: %d, err: %v", userID, err)
		}
		for _, id := range likedIDs {
			liked[id] = true
		}
	}

	for _, id := range misses {
		count, ok := counts[id]
		if !ok {
			continue
		}
		res[id] = domain.LikeData{Count: count, IsLiked: liked[id]}
	}
	return res, nil
}

// ToggleLike flips the user's like on the post. Fast-store failures are returned
// wrapped in domain.ErrCacheUnavailable.
func (s *Service) ToggleLike(ctx context.Context, postID, userID int64) (res domain.LikeToggleResult, err error) {
	defer func() {
		switch {
		case err != nil:
			observability.LikeToggles.WithLabelValues("error").Inc()
		case res.IsLiked:
			observability.LikeToggles.WithLabelValues("liked").Inc()
		default:
			observability.LikeToggles.WithLabelValues("unliked").Inc()
		}
	}()

	if postID <= 0 || userID <= 0 {
		return res, domain.ErrBadParamInput
	}
	if err := s.checkExists(ctx, postID); err != nil {
		return res, err
	}

	res, err = s.cache.Toggle(ctx, postID, userID)
	if errors.Is(err, domain.ErrCacheMiss) {
		if err = s.ensureHydrated(ctx, postID); err != nil {
			return res, err
		}
		res, err = s.cache.Toggle(ctx, postID, userID)
		if errors.Is(err, domain.ErrCacheMiss) {
			// expired again between hydration and toggle
			return res, domain.ErrHydrationInProgress
		}
	}
	if err != nil {
		logrus.Errorf("failed to toggle like in redis, post: %d, user: %d, err: %v", postID, userID, err)
		return res, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return res, nil
}

// checkExists rejects IDs the bloom filter has never seen. IDs above the sync
// cursor are newer than the filter and fall through to the durable store.
func (s *Service) checkExists(ctx context.Context, postID int64) error {
	ok, err := s.bloom.Exists(ctx, postID)
	if err != nil {
		logrus.Warnf("bloom filter unavailable, post: %d, err: %v", postID, err)
		return nil
	}
	if ok {
		return nil
	}
	cursor, err := s.bloom.Cursor(ctx)
	if err == nil && postID <= cursor {
		return domain.ErrNotFound
	}
	return nil
}

// ensureHydrated drives the post to Hydrated. Exactly one caller wins the claim
// and loads durable state; the others wait up to HydrationWait. A hydrator whose
// claim expired and was taken over leaves the post to the new owner.
func (s *Service) ensureHydrated(ctx context.Context, postID int64) error {
	deadline := time.Now().Add(s.cfg.HydrationWait)
	for {
		state, err := s.cache.State(ctx, postID)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
		}

		switch state {
		case domain.Hydrated:
			return nil
		case domain.Uninitialized:
			token, err := s.cache.ClaimHydration(ctx, postID, s.cfg.HydrationClaimTTL)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
			}
			if token != "" {
				err = s.hydrate(ctx, postID, token)
				if !errors.Is(err, domain.ErrClaimLost) {
					return err
				}
				logrus.Warnf("hydration claim expired before hydrating, post: %d", postID)
			}
		}

		if time.Now().After(deadline) {
			return domain.ErrHydrationInProgress
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(hydrationBackoff):
		}
	}
}

func (s *Service) hydrate(ctx context.Context, postID int64, token string) (err error) {
	defer func() {
		if err == nil || errors.Is(err, domain.ErrClaimLost) {
			return
		}
		if rerr := s.cache.ReleaseHydration(context.WithoutCancel(ctx), postID, token); rerr != nil {
			logrus.Warnf("failed to release hydration claim, post: %d, err: %v", postID, rerr)
		}
	}()

	count, err := s.posts.GetLikeCount(ctx, postID)
	if err != nil {
		return err
	}
	likers, err := s.posts.GetLikedUsers(ctx, postID)
	if err != nil {
		return err
	}
	if int64(len(likers)) != count {
		logrus.WithFields(logrus.Fields{
			"post_id": postID,
			"counter": count,
			"rows":    len(likers),
		}).Warn("durable like counter drifted from its rows, hydrating from rows")
	}

	if err := s.cache.Hydrate(ctx, postID, token, int64(len(likers)), likers); err != nil {
		if errors.Is(err, domain.ErrClaimLost) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}

	if cursor, cerr := s.bloom.Cursor(ctx); cerr == nil && postID > cursor {
		if aerr := s.bloom.Add(ctx, postID); aerr != nil {
			logrus.Warnf("failed to add post %d to bloom filter: %v", postID, aerr)
		}
	}
	return nil
}

type outcome string

const (
	outcomeSkipped    outcome = "skipped"
	outcomeReconciled outcome = "reconciled"
	outcomeDiscarded  outcome = "discarded"
	outcomeFailed     outcome = "failed"
)

// Reconcile writes the post's current fast-store membership to the durable store
// and trims the ops it covered. Ops appended meanwhile stay for the next pass.
func (s *Service) Reconcile(ctx context.Context, postID int64) error {
	_, err := s.reconcile(ctx, postID)
	return err
}

func (s *Service) reconcile(ctx context.Context, postID int64) (outcome, error) {
	snap, err := s.cache.Snapshot(ctx, postID)
	if err != nil {
		return outcomeFailed, err
	}
	if snap.PendingLen == 0 {
		return outcomeSkipped, nil
	}

	log := logrus.WithFields(logrus.Fields{"post_id": postID, "pending": snap.PendingLen})

	if snap.State != domain.Hydrated {
		log.Error("like state expired with unreconciled ops, discarding them")
		if err := s.cache.AckPending(ctx, postID, snap.PendingLen); err != nil {
			return outcomeFailed, err
		}
		return outcomeDiscarded, domain.ErrLikeStateExpired
	}

	err = s.posts.ReplaceLikes(ctx, postID, snap.Members)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn("post no longer exists, discarding its pending likes")
		if err := s.cache.AckPending(ctx, postID, snap.PendingLen); err != nil {
			return outcomeFailed, err
		}
		return outcomeDiscarded, domain.ErrNotFound
	}
	if err != nil {
		return outcomeFailed, err
	}

	if err := s.cache.AckPending(ctx, postID, snap.PendingLen); err != nil {
		return outcomeFailed, err
	}
	log.WithField("likes", len(snap.Members)).Debug("reconciled likes")
	return outcomeReconciled, nil
}

// ReconcileAll reconciles every post with pending ops. A failing post keeps its
// log for the next pass and never blocks the others.
func (s *Service) ReconcileAll(ctx context.Context) domain.ReconcileStats {
	start := time.Now()
	var stats domain.ReconcileStats

	ids, err := s.cache.PendingPosts(ctx)
	if err != nil {
		logrus.Errorf("failed to list posts with pending likes: %v", err)
		stats.Duration = time.Since(start)
		return stats
	}
	stats.Scanned = len(ids)

	var reconciled, skipped, discarded, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.ReconcileConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			out, err := s.reconcile(ctx, id)
			observability.ReconcileOutcomes.WithLabelValues(string(out)).Inc()
			switch out {
			case outcomeReconciled:
				reconciled.Add(1)
			case outcomeSkipped:
				skipped.Add(1)
			case outcomeDiscarded:
				discarded.Add(1)
			default:
				failed.Add(1)
				logrus.Errorf("failed to reconcile likes, post: %d, err: %v", id, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.Reconciled = int(reconciled.Load())
	stats.Skipped = int(skipped.Load())
	stats.Discarded = int(discarded.Load())
	stats.Failed = int(failed.Load())
	stats.Duration = time.Since(start)
	return stats
}

// InitBloomFilter loads every post ID into the bloom filter.
func (s *Service) InitBloomFilter(ctx context.Context) error {
	return s.syncBloomFrom(ctx, 0)
}

// SyncBloomFilter adds posts created since the last sync.
func (s *Service) SyncBloomFilter(ctx context.Context) error {
	cursor, err := s.bloom.Cursor(ctx)
	if err != nil {
		return err
	}
	return s.syncBloomFrom(ctx, cursor)
}

func (s *Service) syncBloomFrom(ctx context.Context, cursor int64) error {
	added := 0
	for {
		ids, err := s.posts.FetchIDs(ctx, cursor, bloomSyncBatch)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			break
		}
		if err := s.bloom.BulkAdd(ctx, ids); err != nil {
			return err
		}
		cursor = ids[len(ids)-1]
		added += len(ids)
		if len(ids) < bloomSyncBatch {
			break
		}
	}
	if err := s.bloom.SetCursor(ctx, cursor); err != nil {
		return err
	}
	logrus.Infof("bloom filter synced, %d posts added, cursor %d", added, cursor)
	return nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	res := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		res = append(res, id)
	}
	return res
}
