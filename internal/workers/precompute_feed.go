package workers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Guyuepp/go-feed-engine/domain"
)

const activeUsersPage = 500

type PrecomputeConfig struct {
	Interval     time.Duration
	ActiveWindow time.Duration // users active within this window get a fresh feed
	Concurrency  int
}

type precomputeFeedWorker struct {
	users domain.UserRepository
	feed  domain.FeedUsecase
	cfg   PrecomputeConfig
	now   func() time.Time
}

var _ domain.Worker = (*precomputeFeedWorker)(nil)

func NewPrecomputeFeedWorker(u domain.UserRepository, f domain.FeedUsecase, cfg PrecomputeConfig) *precomputeFeedWorker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &precomputeFeedWorker{
		users: u,
		feed:  f,
		cfg:   cfg,
		now:   time.Now,
	}
}

func (w *precomputeFeedWorker) Start(ctx context.Context) {
	runEvery(ctx, "PrecomputeFeedWorker", w.cfg.Interval, func(ctx context.Context) {
		_, _ = w.RunOnce(ctx)
	})
}

// RunOnce recomputes the feed of every recently active user; it returns how many succeeded and failed.
func (w *precomputeFeedWorker) RunOnce(ctx context.Context) (done, failed int64) {
	start := w.now()
	since := start.Add(-w.cfg.ActiveWindow)

	var ok, bad atomic.Int64
	var cursor int64
	for {
		ids, err := w.users.FetchActiveIDs(ctx, since, cursor, activeUsersPage)
		if err != nil {
			logrus.Errorf("failed to list active users: %v", err)
			break
		}
		if len(ids) == 0 {
			break
		}

		g := new(errgroup.Group)
		g.SetLimit(w.cfg.Concurrency)
		for _, uid := range ids {
			g.Go(func() error {
				if err := w.feed.PreComputeFeed(ctx, uid); err != nil {
					bad.Add(1)
					logrus.Warnf("failed to precompute feed, user: %d, err: %v", uid, err)
					return nil
				}
				ok.Add(1)
				return nil
			})
		}
		_ = g.Wait()

		cursor = ids[len(ids)-1]
		if len(ids) < activeUsersPage || ctx.Err() != nil {
			break
		}
	}

	done, failed = ok.Load(), bad.Load()
	if done+failed > 0 {
		logrus.WithFields(logrus.Fields{
			"done":   done,
			"failed": failed,
			"took":   time.Since(start).String(),
		}).Info("feed precompute finished")
	}
	return done, failed
}
