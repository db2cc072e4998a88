package workers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Guyuepp/go-feed-engine/domain"
)

type housekeepingWorker struct {
	feed       domain.FeedUsecase
	engagement domain.EngagementUsecase
	interval   time.Duration
}

var _ domain.Worker = (*housekeepingWorker)(nil)

func NewHousekeepingWorker(f domain.FeedUsecase, e domain.EngagementUsecase, interval time.Duration) *housekeepingWorker {
	return &housekeepingWorker{
		feed:       f,
		engagement: e,
		interval:   interval,
	}
}

func (w *housekeepingWorker) Start(ctx context.Context) {
	runEvery(ctx, "HousekeepingWorker", w.interval, w.RunOnce)
}

// RunOnce drops expired persistent feeds, syncs new posts into the bloom filter and logs cache stats.
func (w *housekeepingWorker) RunOnce(ctx context.Context) {
	removed, err := w.feed.CleanupExpired(ctx)
	if err != nil {
		logrus.Errorf("failed to clean up expired feeds: %v", err)
	} else if removed > 0 {
		logrus.Infof("removed %d expired feeds", removed)
	}

	if err := w.engagement.SyncBloomFilter(ctx); err != nil {
		logrus.Errorf("failed to sync bloom filter: %v", err)
	}

	stats, err := w.feed.Stats(ctx)
	if err != nil {
		logrus.Warnf("failed to read feed cache stats: %v", err)
	}
	logrus.WithFields(logrus.Fields{
		"fast_entries":       stats.FastEntries,
		"persistent_entries": stats.PersistentEntries,
		"fast_hits":          stats.FastHits,
		"persistent_hits":    stats.PersistentHits,
		"misses":             stats.Misses,
	}).Info("feed cache stats")
}
