package workers

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/Guyuepp/go-feed-engine/internal/observability"
)

const (
	interactionBatchSize     = 100
	interactionFlushInterval = time.Second
)

type interactionWorker struct {
	affinity domain.AffinityUsecase
	ch       chan domain.InteractionTask
	workers  int
}

var _ domain.InteractionSink = (*interactionWorker)(nil)

func NewInteractionWorker(a domain.AffinityUsecase, queueSize, workers int) *interactionWorker {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	return &interactionWorker{
		affinity: a,
		ch:       make(chan domain.InteractionTask, queueSize),
		workers:  workers,
	}
}

// Send queues the interaction, dropping it when the queue is full
func (w *interactionWorker) Send(task domain.InteractionTask) bool {
	select {
	case w.ch <- task:
		return true
	default:
		observability.InteractionsDropped.Inc()
		logrus.Warn("InteractionWorker's channel is full, task dropped")
		return false
	}
}

func (w *interactionWorker) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for range w.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
}

func (w *interactionWorker) loop(ctx context.Context) {
	ticker := time.NewTicker(interactionFlushInterval)
	defer ticker.Stop()

	batch := make([]domain.InteractionTask, 0, interactionBatchSize)
	for {
		select {
		case task := <-w.ch:
			batch = append(batch, task)
			if len(batch) == interactionBatchSize {
				w.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			w.flush(ctx, batch)
			batch = batch[:0]
		case <-ctx.Done():
			logrus.Info("shutting down InteractionWorker, flushing remaining tasks...")
			w.drain(batch)
			return
		}
	}
}

// drain flushes what is buffered on a context that outlives the shutdown signal
func (w *interactionWorker) drain(batch []domain.InteractionTask) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case task := <-w.ch:
			batch = append(batch, task)
		default:
			w.flush(ctx, batch)
			return
		}
	}
}

// flush tracks every task of the batch in arrival order; repeats each count
func (w *interactionWorker) flush(ctx context.Context, batch []domain.InteractionTask) {
	for _, task := range batch {
		w.affinity.TrackInteraction(ctx, task.UserID, task.PostID, task.CreatorID, task.Type)
	}
}
