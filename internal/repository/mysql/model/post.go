package model

import (
	"time"

	"github.com/Guyuepp/go-feed-engine/domain"
)

type Post struct {
	ID               int64     `gorm:"primaryKey;autoIncrement"`
	PublicID         string    `gorm:"column:public_id;type:varchar(36);uniqueIndex;not null"`
	CreatorID        int64     `gorm:"column:creator_id;index;not null"`
	Visibility       string    `gorm:"type:varchar(16);default:public;not null"`
	ContentType      string    `gorm:"column:content_type;type:varchar(16);default:text;not null"`
	LikesCount       int64     `gorm:"column:likes_count;default:0"`
	CommentsCount    int64     `gorm:"column:comments_count;default:0"`
	RepostsCount     int64     `gorm:"column:reposts_count;default:0"`
	ImpressionsCount int64     `gorm:"column:impressions_count;default:0"`
	CreatedAt        time.Time `gorm:"type:datetime;index"`
}

func (Post) TableName() string {
	return "posts"
}

func (m *Post) ToDomain() domain.Post {
	return domain.Post{
		ID:               m.ID,
		PublicID:         m.PublicID,
		CreatorID:        m.CreatorID,
		Visibility:       domain.Visibility(m.Visibility),
		ContentType:      domain.ContentType(m.ContentType),
		LikesCount:       m.LikesCount,
		CommentsCount:    m.CommentsCount,
		RepostsCount:     m.RepostsCount,
		ImpressionsCount: m.ImpressionsCount,
		CreatedAt:        m.CreatedAt,
	}
}

func NewPostFromDomain(p *domain.Post) *Post {
	return &Post{
		ID:               p.ID,
		PublicID:         p.PublicID,
		CreatorID:        p.CreatorID,
		Visibility:       string(p.Visibility),
		ContentType:      string(p.ContentType),
		LikesCount:       p.LikesCount,
		CommentsCount:    p.CommentsCount,
		RepostsCount:     p.RepostsCount,
		ImpressionsCount: p.ImpressionsCount,
		CreatedAt:        p.CreatedAt,
	}
}

// PostWithCreator is a post row joined with its creator's follower count
type PostWithCreator struct {
	Post
	CreatorFollowers int64 `gorm:"column:creator_followers"`
}

func (m *PostWithCreator) ToDomain() domain.Post {
	p := m.Post.ToDomain()
	p.CreatorFollowers = m.CreatorFollowers
	return p
}

// RepostedPost is a post row tagged with the repost that surfaced it
type RepostedPost struct {
	PostWithCreator
	ReposterID int64     `gorm:"column:reposter_id"`
	RepostedAt time.Time `gorm:"column:reposted_at"`
}
