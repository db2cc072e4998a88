package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Guyuepp/go-feed-engine/domain"
)

// feedSnapshotRepository 协调层，协调快慢两级 feed 缓存
type feedSnapshotRepository struct {
	fast       domain.FeedCache
	persistent domain.FeedStore
	fastTTL    time.Duration
	now        func() time.Time

	fastHits       atomic.Int64
	persistentHits atomic.Int64
	misses         atomic.Int64
}

var _ domain.FeedSnapshotRepository = (*feedSnapshotRepository)(nil)

func NewFeedSnapshotRepository(fast domain.FeedCache, persistent domain.FeedStore, fastTTL time.Duration) *feedSnapshotRepository {
	return &feedSnapshotRepository{
		fast:       fast,
		persistent: persistent,
		fastTTL:    fastTTL,
		now:        time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (r *feedSnapshotRepository) WithClock(now func() time.Time) *feedSnapshotRepository {
	r.now = now
	return r
}

// Get reads the fast tier, then the persistent tier, back-filling the fast tier on a persistent hit.
// Fast-tier failures degrade to the persistent tier.
func (r *feedSnapshotRepository) Get(ctx context.Context, userID int64) (domain.FeedSnapshot, domain.FeedTier, error) {
	snap, err := r.fast.Get(ctx, userID)
	if err == nil {
		r.fastHits.Add(1)
		return snap, domain.TierFast, nil
	}
	if !errors.Is(err, domain.ErrCacheMiss) {
		logrus.Warnf("fast feed tier unavailable, user: %d, err: %v", userID, err)
	}

	snap, err = r.persistent.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			logrus.Warnf("persistent feed tier unavailable, user: %d, err: %v", userID, err)
		}
		r.misses.Add(1)
		return domain.FeedSnapshot{}, "", domain.ErrCacheMiss
	}

	now := r.now()
	if snap.IsExpired(now) {
		r.misses.Add(1)
		return domain.FeedSnapshot{}, "", domain.ErrCacheMiss
	}

	if err := r.fast.Set(ctx, snap, r.fastTTLFor(snap, now)); err != nil {
		logrus.Warnf("failed to back-fill fast feed tier, user: %d, err: %v", userID, err)
	}
	r.persistentHits.Add(1)
	return snap, domain.TierPersistent, nil
}

// fastTTLFor never lets the fast copy outlive the snapshot
func (r *feedSnapshotRepository) fastTTLFor(snap domain.FeedSnapshot, now time.Time) time.Duration {
	return min(r.fastTTL, snap.ExpiresAt.Sub(now))
}

func (r *feedSnapshotRepository) Save(ctx context.Context, snap domain.FeedSnapshot) error {
	var errs []error
	if err := r.fast.Set(ctx, snap, r.fastTTLFor(snap, r.now())); err != nil {
		errs = append(errs, err)
	}
	if err := r.persistent.Set(ctx, snap); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *feedSnapshotRepository) Delete(ctx context.Context, userID int64) error {
	return errors.Join(
		r.fast.Delete(ctx, userID),
		r.persistent.Delete(ctx, userID),
	)
}

func (r *feedSnapshotRepository) Exists(ctx context.Context, userID int64) (bool, error) {
	ok, err := r.fast.Exists(ctx, userID)
	if err == nil && ok {
		return true, nil
	}

	snap, perr := r.persistent.Get(ctx, userID)
	if perr == nil {
		return !snap.IsExpired(r.now()), nil
	}
	if errors.Is(perr, domain.ErrCacheMiss) {
		return false, err
	}
	return false, errors.Join(err, perr)
}

func (r *feedSnapshotRepository) Stats(ctx context.Context) (domain.FeedCacheStats, error) {
	stats := domain.FeedCacheStats{
		FastHits:       r.fastHits.Load(),
		PersistentHits: r.persistentHits.Load(),
		Misses:         r.misses.Load(),
	}
	fast, ferr := r.fast.Count(ctx)
	stats.FastEntries = fast
	persistent, perr := r.persistent.Count(ctx)
	stats.PersistentEntries = persistent
	return stats, errors.Join(ferr, perr)
}

func (r *feedSnapshotRepository) CleanupExpired(ctx context.Context) (int64, error) {
	return r.persistent.DeleteExpired(ctx, r.now())
}
