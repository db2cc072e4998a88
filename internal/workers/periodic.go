package workers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// runEvery calls fn on every tick until ctx is done. A run never overlaps the next one.
func runEvery(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logrus.Infof("%s started, interval %s", name, interval)
	for {
		select {
		case <-ticker.C:
			fn(ctx)
		case <-ctx.Done():
			logrus.Infof("shutting down %s", name)
			return
		}
	}
}
