package ranking

import (
	"math"
	"time"

	"github.com/Guyuepp/go-feed-engine/domain"
)

// Weights are the coefficients of the additive scoring formula
type Weights struct {
	Affinity   float64
	Subscribed float64
	Followed   float64
	Engagement float64

	Recency         float64
	RecencyDecay    float64
	Freshness       float64
	FreshnessDecay  float64
	FreshnessWindow time.Duration

	ContentType float64
	Popularity  float64

	// applied only to candidates sourced through a repost
	Repost               float64
	RepostDecay          float64
	RepostLiked          float64
	RepostLikes          float64
	RepostEngagementRate float64
	SelfRepost           float64
}

func DefaultWeights() Weights {
	return Weights{
		Affinity:   0.4,
		Subscribed: 30,
		Followed:   20,
		Engagement: 0.2,

		Recency:         25,
		RecencyDecay:    0.1,
		Freshness:       40,
		FreshnessDecay:  0.4,
		FreshnessWindow: 6 * time.Hour,

		ContentType: 10,
		Popularity:  0.5,

		Repost:               60,
		RepostDecay:          0.25,
		RepostLiked:          50,
		RepostLikes:          2,
		RepostEngagementRate: 15,
		SelfRepost:           30,
	}
}

// Score sums every signal of the post for the user. A missing signal contributes zero.
func (w Weights) Score(p *domain.Post, profile *domain.UserProfile, prefs *domain.ContentPreferences, liked bool, now time.Time) float64 {
	var score float64

	if a, ok := profile.Affinity(p.CreatorID); ok {
		score += a * w.Affinity
	}
	switch {
	case profile.SubscribesTo(p.CreatorID):
		score += w.Subscribed
	case profile.Follows(p.CreatorID):
		score += w.Followed
	}

	likes := float64(max(p.LikesCount, 0))
	comments := float64(max(p.CommentsCount, 0))
	reposts := float64(max(p.RepostsCount, 0))
	score += math.Log1p(likes+2*comments+3*reposts) * w.Engagement

	age := p.AgeHours(now)
	score += math.Exp(-w.RecencyDecay*age) * w.Recency
	if age < w.FreshnessWindow.Hours() {
		score += math.Exp(-w.FreshnessDecay*age) * w.Freshness
	}

	if prefs != nil && prefs.Prefers(p.ContentType) {
		score += w.ContentType
	}
	score += math.Log1p(float64(max(p.CreatorFollowers, 0))) * w.Popularity

	if r := p.Repost; r != nil {
		repostAge := max(now.Sub(r.RepostedAt).Hours(), 0)
		score += math.Exp(-w.RepostDecay*repostAge) * w.Repost
		if liked {
			score += w.RepostLiked
		}
		score += math.Log1p(likes) * w.RepostLikes
		impressions := float64(max(p.ImpressionsCount, 1))
		score += math.Min(1, (likes+comments+reposts)/impressions) * w.RepostEngagementRate
		if r.IsSelf {
			score += w.SelfRepost
		}
	}
	return score
}
