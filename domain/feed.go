package domain

import (
	"context"
	"time"
)

// CandidateSource names a candidate pool
type CandidateSource string

const (
	SourcePreferred CandidateSource = "preferred"
	SourceTrending  CandidateSource = "trending"
	SourceDiscovery CandidateSource = "discovery"
	SourceRepost    CandidateSource = "repost"
)

// CandidateSet is the merged, deduplicated output of the candidate pools
type CandidateSet struct {
	Posts   []Post
	Sources map[CandidateSource]int
}

// Recommendation is the ranked output of one computation
type Recommendation struct {
	UserID         int64
	PostIDs        []int64
	Scores         []float64
	Sources        map[CandidateSource]int
	CandidateCount int
	ComputedAt     time.Time
}

// FeedMetadata describes how a snapshot was produced
type FeedMetadata struct {
	Sources        map[CandidateSource]int `json:"sources"`
	CandidateCount int                     `json:"candidate_count"`
	ComputeMillis  int64                   `json:"compute_millis"`
}

// FeedSnapshot is a cached recommended feed
type FeedSnapshot struct {
	UserID           int64        `json:"user_id"`
	PostIDs          []int64      `json:"post_ids"`
	Scores           []float64    `json:"scores"`
	ComputedAt       time.Time    `json:"computed_at"`
	ExpiresAt        time.Time    `json:"expires_at"`
	AlgorithmVersion string       `json:"algorithm_version"`
	Metadata         FeedMetadata `json:"metadata"`
}

// IsExpired reports whether the snapshot is past its expiry at now
func (s *FeedSnapshot) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// FeedTier names where a snapshot was served from
type FeedTier string

const (
	TierFast       FeedTier = "fast"
	TierPersistent FeedTier = "persistent"
	TierCompute    FeedTier = "compute"
)

// FeedCache is the fast tier
type FeedCache interface {
	// Get returns ErrCacheMiss when absent.
	Get(ctx context.Context, userID int64) (FeedSnapshot, error)
	Set(ctx context.Context, snap FeedSnapshot, ttl time.Duration) error
	Delete(ctx context.Context, userID int64) error
	Exists(ctx context.Context, userID int64) (bool, error)
	Count(ctx context.Context) (int64, error)
}

// FeedStore is the persistent tier
type FeedStore interface {
	// Get returns ErrCacheMiss when absent. Expired entries may be returned; callers check IsExpired.
	Get(ctx context.Context, userID int64) (FeedSnapshot, error)
	Set(ctx context.Context, snap FeedSnapshot) error
	Delete(ctx context.Context, userID int64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// FeedSnapshotRepository coordinates the fast and persistent tiers
type FeedSnapshotRepository interface {
	// Get returns the freshest valid snapshot and the tier it came from, ErrCacheMiss on a full miss.
	Get(ctx context.Context, userID int64) (FeedSnapshot, FeedTier, error)
	Save(ctx context.Context, snap FeedSnapshot) error
	Delete(ctx context.Context, userID int64) error
	Exists(ctx context.Context, userID int64) (bool, error)
	Stats(ctx context.Context) (FeedCacheStats, error)
	CleanupExpired(ctx context.Context) (int64, error)
}

// FeedCacheStats are housekeeping counters of the hierarchy
type FeedCacheStats struct {
	FastEntries       int64 `json:"fast_entries"`
	PersistentEntries int64 `json:"persistent_entries"`
	FastHits          int64 `json:"fast_hits"`
	PersistentHits    int64 `json:"persistent_hits"`
	Misses            int64 `json:"misses"`
}

// RankingUsecase is the candidate generator and ranker
type RankingUsecase interface {
	GetCandidatePosts(ctx context.Context, userID int64, profile UserProfile) (CandidateSet, error)
	ComputeRecommendations(ctx context.Context, userID int64) (Recommendation, error)
}

// FeedUsecase is the feed cache hierarchy
type FeedUsecase interface {
	GetRecommendedFeed(ctx context.Context, userID int64, limit int) ([]int64, error)
	PreComputeFeed(ctx context.Context, userID int64) error
	InvalidateRecommendations(ctx context.Context, userID int64) error
	HasCachedRecommendations(ctx context.Context, userID int64) (bool, error)
	Stats(ctx context.Context) (FeedCacheStats, error)
	CleanupExpired(ctx context.Context) (int64, error)
}
