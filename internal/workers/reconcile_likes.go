package workers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Guyuepp/go-feed-engine/domain"
)

type reconcileLikesWorker struct {
	engagement domain.EngagementUsecase
	interval   time.Duration
}

var _ domain.Worker = (*reconcileLikesWorker)(nil)

func NewReconcileLikesWorker(e domain.EngagementUsecase, interval time.Duration) *reconcileLikesWorker {
	return &reconcileLikesWorker{
		engagement: e,
		interval:   interval,
	}
}

func (w *reconcileLikesWorker) Start(ctx context.Context) {
	runEvery(ctx, "ReconcileLikesWorker", w.interval, w.run)
}

func (w *reconcileLikesWorker) run(ctx context.Context) {
	stats := w.engagement.ReconcileAll(ctx)
	if stats.Scanned == 0 {
		return
	}
	entry := logrus.WithFields(logrus.Fields{
		"scanned":    stats.Scanned,
		"reconciled": stats.Reconciled,
		"skipped":    stats.Skipped,
		"discarded":  stats.Discarded,
		"failed":     stats.Failed,
		"took":       stats.Duration.String(),
	})
	if stats.Failed > 0 {
		entry.Warn("like reconciliation finished with failures")
		return
	}
	entry.Info("like reconciliation finished")
}
