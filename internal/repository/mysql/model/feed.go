package model

import (
	"time"

	"github.com/Guyuepp/go-feed-engine/domain"
)

type RecommendedFeed struct {
	UserID           int64               `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	PostIDs          []int64             `gorm:"column:post_ids;serializer:json;type:json"`
	Scores           []float64           `gorm:"column:scores;serializer:json;type:json"`
	ComputedAt       time.Time           `gorm:"column:computed_at;type:datetime"`
	ExpiresAt        time.Time           `gorm:"column:expires_at;type:datetime;index"`
	AlgorithmVersion string              `gorm:"column:algorithm_version;type:varchar(32)"`
	Metadata         domain.FeedMetadata `gorm:"column:metadata;serializer:json;type:json"`
}

func (RecommendedFeed) TableName() string {
	return "recommended_feeds"
}

func (m *RecommendedFeed) ToDomain() domain.FeedSnapshot {
	return domain.FeedSnapshot{
		UserID:           m.UserID,
		PostIDs:          m.PostIDs,
		Scores:           m.Scores,
		ComputedAt:       m.ComputedAt,
		ExpiresAt:        m.ExpiresAt,
		AlgorithmVersion: m.AlgorithmVersion,
		Metadata:         m.Metadata,
	}
}

func NewRecommendedFeedFromDomain(s *domain.FeedSnapshot) *RecommendedFeed {
	return &RecommendedFeed{
		UserID:           s.UserID,
		PostIDs:          s.PostIDs,
		Scores:           s.Scores,
		ComputedAt:       s.ComputedAt.UTC(),
		ExpiresAt:        s.ExpiresAt.UTC(),
		AlgorithmVersion: s.AlgorithmVersion,
		Metadata:         s.Metadata,
	}
}

// All returns every table this engine reads or writes, for AutoMigrate
func All() []any {
	return []any{
		&User{}, &Post{}, &PostLike{}, &Follow{}, &Subscription{},
		&Block{}, &Repost{}, &Comment{}, &Purchase{}, &RecommendedFeed{},
	}
}
