package model

import (
	"time"
)

type Follow struct {
	FollowerID int64     `gorm:"column:follower_id;primaryKey;autoIncrement:false"`
	CreatorID  int64     `gorm:"column:creator_id;primaryKey;autoIncrement:false;index"`
	CreatedAt  time.Time `gorm:"type:datetime"`
}

func (Follow) TableName() string {
	return "follows"
}

const SubscriptionActive = "active"

type Subscription struct {
	ID        int64      `gorm:"primaryKey;autoIncrement"`
	UserID    int64      `gorm:"column:user_id;index;not null"`
	CreatorID int64      `gorm:"column:creator_id;not null"`
	Status    string     `gorm:"type:varchar(16);default:active;not null"`
	ExpiresAt *time.Time `gorm:"column:expires_at;type:datetime"`
	CreatedAt time.Time  `gorm:"type:datetime"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

type Block struct {
	BlockerID int64     `gorm:"column:blocker_id;primaryKey;autoIncrement:false"`
	BlockedID int64     `gorm:"column:blocked_id;primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time `gorm:"type:datetime"`
}

func (Block) TableName() string {
	return "blocks"
}

type Repost struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	PostID    int64     `gorm:"column:post_id;index;not null"`
	UserID    int64     `gorm:"column:user_id;index;not null"`
	CreatedAt time.Time `gorm:"type:datetime;index"`
}

func (Repost) TableName() string {
	return "reposts"
}

type Comment struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	PostID    int64     `gorm:"column:post_id;not null"`
	UserID    int64     `gorm:"column:user_id;index;not null"`
	Content   string    `gorm:"type:text;not null"`
	ParentID  int64     `gorm:"column:parent_id;default:0"`
	RootID    int64     `gorm:"column:root_id;default:0"`
	CreatedAt time.Time `gorm:"type:datetime"`
}

func (Comment) TableName() string {
	return "comments"
}

type Purchase struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	PostID    int64     `gorm:"column:post_id;not null"`
	UserID    int64     `gorm:"column:user_id;index;not null"`
	CreatedAt time.Time `gorm:"type:datetime"`
}

func (Purchase) TableName() string {
	return "purchases"
}
