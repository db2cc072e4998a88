package domain

import "context"

// Worker is a background loop that runs until ctx is done
type Worker interface {
	Start(ctx context.Context)
}

// InteractionTask is one queued TrackInteraction call
type InteractionTask struct {
	UserID    int64
	PostID    int64
	CreatorID int64
	Type      InteractionType
}

type InteractionSink interface {
	Worker

	// Send queues the interaction; it never blocks and drops the task when the queue is full
	Send(task InteractionTask) bool
}
