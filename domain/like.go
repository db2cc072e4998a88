package domain

import (
	"context"
	"time"
)

// HydrationState tracks whether the fast store holds the like state of a post
type HydrationState int8

const (
	Uninitialized HydrationState = iota
	Hydrating
	Hydrated
)

func (h HydrationState) String() string {
	switch h {
	case Hydrating:
		return "hydrating"
	case Hydrated:
		return "hydrated"
	default:
		return "uninitialized"
	}
}

// LikeToggleResult is returned by ToggleLike
type LikeToggleResult struct {
	IsLiked  bool  `json:"is_liked"`
	NewCount int64 `json:"new_count"`
}

// LikeData is the engagement view of one post for one (possibly anonymous) user
type LikeData struct {
	Count   int64 `json:"count"`
	IsLiked bool  `json:"is_liked"`
}

// LikeSnapshot is the fast-store like state captured for reconciliation
type LikeSnapshot struct {
	PostID     int64
	State      HydrationState
	Members    []int64
	PendingLen int64
}

// ReconcileStats summarizes one ReconcileAll pass
type ReconcileStats struct {
	Scanned    int           `json:"scanned"`
	Reconciled int           `json:"reconciled"`
	Skipped    int           `json:"skipped"`
	Discarded  int           `json:"discarded"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// LikeCache is the fast-store side of the engagement counter cache
type LikeCache interface {
	// GetCount returns ErrCacheMiss when the counter key is absent.
	GetCount(ctx context.Context, postID int64) (int64, error)

	// IsMember returns ErrCacheMiss when the post's like state is not hydrated.
	IsMember(ctx context.Context, postID, userID int64) (bool, error)

	// HasPending reports whether the post has unreconciled ops.
	HasPending(ctx context.Context, postID int64) (bool, error)

	// BatchLikeData reads counters, pending flags and, for userID > 0, memberships in one round trip.
	// Posts without a counter are reported in misses; posts with a pending log but no counter count as 0.
	BatchLikeData(ctx context.Context, postIDs []int64, userID int64) (hits map[int64]LikeData, misses []int64, err error)

	// State returns the hydration state of the post.
	State(ctx context.Context, postID int64) (HydrationState, error)

	// ClaimHydration moves an uninitialized post to Hydrating and returns the claim token.
	// The token is empty if someone else holds the claim or the post is already hydrated.
	ClaimHydration(ctx context.Context, postID int64, ttl time.Duration) (string, error)

	// Hydrate installs the durable counter and liker set and marks the post Hydrated.
	// Returns ErrClaimLost, leaving the post untouched, once the token no longer holds the claim.
	Hydrate(ctx context.Context, postID int64, token string, count int64, likers []int64) error

	// ReleaseHydration drops the claim after a failed hydration. A claim held by another token is kept.
	ReleaseHydration(ctx context.Context, postID int64, token string) error

	// Toggle flips membership, adjusts the counter, appends a pending op and refreshes TTLs atomically.
	// Returns ErrCacheMiss when the post is not hydrated.
	Toggle(ctx context.Context, postID, userID int64) (LikeToggleResult, error)

	// PendingPosts lists every post with a non-empty pending log.
	PendingPosts(ctx context.Context) ([]int64, error)

	// Snapshot captures membership, hydration state and pending length atomically.
	Snapshot(ctx context.Context, postID int64) (LikeSnapshot, error)

	// AckPending removes the first n pending ops; the post leaves the pending index once its log is empty.
	AckPending(ctx context.Context, postID int64, n int64) error
}

// EngagementUsecase is the engagement counter cache exposed to collaborators
type EngagementUsecase interface {
	GetLikeCount(ctx context.Context, postID int64) (int64, error)
	HasUserLiked(ctx context.Context, postID, userID int64) (bool, error)
	GetMultiplePostsLikeData(ctx context.Context, postIDs []int64, userID int64) (map[int64]LikeData, error)
	ToggleLike(ctx context.Context, postID, userID int64) (LikeToggleResult, error)
	Reconcile(ctx context.Context, postID int64) error
	ReconcileAll(ctx context.Context) ReconcileStats
	InitBloomFilter(ctx context.Context) error
	SyncBloomFilter(ctx context.Context) error
}
