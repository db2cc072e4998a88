package domain

import (
	"context"
	"time"
)

// InteractionType is the kind of a user-to-post interaction
type InteractionType string

const (
	InteractionView     InteractionType = "view"
	InteractionLike     InteractionType = "like"
	InteractionComment  InteractionType = "comment"
	InteractionRepost   InteractionType = "repost"
	InteractionPurchase InteractionType = "purchase"
)

// interactionWeights orders purchase > repost > comment > like > view
var interactionWeights = map[InteractionType]float64{
	InteractionView:     1,
	InteractionLike:     2,
	InteractionComment:  4,
	InteractionRepost:   6,
	InteractionPurchase: 10,
}

// Weight returns the affinity increment of the type, 0 for unknown types
func (t InteractionType) Weight() float64 {
	return interactionWeights[t]
}

// Valid reports whether t is a known interaction type
func (t InteractionType) Valid() bool {
	_, ok := interactionWeights[t]
	return ok
}

// InteractionTypes lists the known types in ascending weight
func InteractionTypes() []InteractionType {
	return []InteractionType{InteractionView, InteractionLike, InteractionComment, InteractionRepost, InteractionPurchase}
}

// InteractionEvent is one immutable entry of the per-user recency log
type InteractionEvent struct {
	PostID    int64           `json:"post_id"`
	CreatorID int64           `json:"creator_id"`
	Type      InteractionType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
}

// CreatorAffinity is a (creator, score) pair of the affinity ranking
type CreatorAffinity struct {
	CreatorID int64   `json:"creator_id"`
	Score     float64 `json:"score"`
}

// InteractionStats aggregates durable counts and the recency log
type InteractionStats struct {
	TotalLikes     int64                     `json:"total_likes"`
	TotalComments  int64                     `json:"total_comments"`
	TotalReposts   int64                     `json:"total_reposts"`
	TotalPurchases int64                     `json:"total_purchases"`
	RecentByType   map[InteractionType]int64 `json:"recent_by_type,omitempty"`
}

// Total is the sum of the durable aggregates
func (s InteractionStats) Total() int64 {
	return s.TotalLikes + s.TotalComments + s.TotalReposts + s.TotalPurchases
}

// UserProfile is the cached, derived view of a user used by ranking
type UserProfile struct {
	UserID              int64              `json:"user_id"`
	FollowedCreators    []int64            `json:"followed_creators"`
	SubscribedCreators  []int64            `json:"subscribed_creators"`
	TopAffinityCreators []CreatorAffinity  `json:"top_affinity_creators"`
	RecentInteractions  []InteractionEvent `json:"recent_interactions"`
	Stats               InteractionStats   `json:"interaction_stats"`
	BuiltAt             time.Time          `json:"built_at"`
}

// Affinity returns the affinity score of the creator if it is in the top set
func (p *UserProfile) Affinity(creatorID int64) (float64, bool) {
	for _, a := range p.TopAffinityCreators {
		if a.CreatorID == creatorID {
			return a.Score, true
		}
	}
	return 0, false
}

// Follows reports whether the user follows the creator
func (p *UserProfile) Follows(creatorID int64) bool {
	return containsID(p.FollowedCreators, creatorID)
}

// SubscribesTo reports whether the user is subscribed to the creator
func (p *UserProfile) SubscribesTo(creatorID int64) bool {
	return containsID(p.SubscribedCreators, creatorID)
}

// PreferredCreators is followed ∪ subscribed ∪ the first n affinity creators, deduplicated
func (p *UserProfile) PreferredCreators(n int) []int64 {
	seen := make(map[int64]struct{})
	res := make([]int64, 0, len(p.FollowedCreators)+len(p.SubscribedCreators)+n)
	add := func(id int64) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		res = append(res, id)
	}
	for _, id := range p.FollowedCreators {
		add(id)
	}
	for _, id := range p.SubscribedCreators {
		add(id)
	}
	for i, a := range p.TopAffinityCreators {
		if i >= n {
			break
		}
		add(a.CreatorID)
	}
	return res
}

// RecentPostIDs returns the distinct posts of the recency log
func (p *UserProfile) RecentPostIDs() []int64 {
	seen := make(map[int64]struct{}, len(p.RecentInteractions))
	res := make([]int64, 0, len(p.RecentInteractions))
	for _, e := range p.RecentInteractions {
		if _, ok := seen[e.PostID]; ok {
			continue
		}
		seen[e.PostID] = struct{}{}
		res = append(res, e.PostID)
	}
	return res
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// PreferenceLevel buckets counts into high, medium and low
type PreferenceLevel string

const (
	LevelHigh   PreferenceLevel = "high"
	LevelMedium PreferenceLevel = "medium"
	LevelLow    PreferenceLevel = "low"
)

// LevelOf buckets a count: >100 high, >20 medium, else low
func LevelOf(n int64) PreferenceLevel {
	switch {
	case n > 100:
		return LevelHigh
	case n > 20:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ContentPreferences are the user's tastes derived from top affinity creators
type ContentPreferences struct {
	// PreferredContentTypes is ordered by summed affinity of the creators producing them
	PreferredContentTypes []ContentType `json:"preferred_content_types"`
	// CreatorPopularity buckets the top creators by follower count
	CreatorPopularity map[PreferenceLevel]int `json:"creator_popularity"`
	// EngagementLevel buckets the user's total durable interaction count
	EngagementLevel PreferenceLevel `json:"engagement_level"`
	// InteractionLevels buckets each interaction type's durable count
	InteractionLevels map[InteractionType]PreferenceLevel `json:"interaction_levels"`
}

// Prefers reports whether the content type is among the preferred ones
func (c *ContentPreferences) Prefers(t ContentType) bool {
	for _, p := range c.PreferredContentTypes {
		if p == t {
			return true
		}
	}
	return false
}

// InteractionStore is the fast-store side of the tracker
type InteractionStore interface {
	// Record appends the event to the capped recency log and increments the creator affinity by weight.
	Record(ctx context.Context, userID int64, event InteractionEvent, weight float64) error

	// TopCreators returns up to n creators by descending affinity.
	TopCreators(ctx context.Context, userID int64, n int) ([]CreatorAffinity, error)

	// RecentInteractions returns up to n events, newest first.
	RecentInteractions(ctx context.Context, userID int64, n int) ([]InteractionEvent, error)

	// GetProfile returns ErrCacheMiss when no profile is cached.
	GetProfile(ctx context.Context, userID int64) (UserProfile, error)
	SetProfile(ctx context.Context, profile UserProfile) error
	DeleteProfile(ctx context.Context, userID int64) error
}

// AffinityUsecase is the affinity & interaction tracker
type AffinityUsecase interface {
	TrackInteraction(ctx context.Context, userID, postID, creatorID int64, typ InteractionType)
	GetTopCreators(ctx context.Context, userID int64, n int) ([]CreatorAffinity, error)
	GetRecentInteractions(ctx context.Context, userID int64, n int) ([]InteractionEvent, error)
	BuildUserProfile(ctx context.Context, userID int64) (UserProfile, error)
	InvalidateProfile(ctx context.Context, userID int64) error
	GetContentPreferences(ctx context.Context, userID int64) (ContentPreferences, error)
}
