package model

import (
	"time"

	"github.com/Guyuepp/go-feed-engine/domain"
)

type User struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement"`
	Username           string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	FollowersCount     int64     `gorm:"column:followers_count;default:0"`
	PrimaryContentType string    `gorm:"column:primary_content_type;type:varchar(16);default:text"`
	LastActiveAt       time.Time `gorm:"column:last_active_at;type:datetime;index"`
	CreatedAt          time.Time `gorm:"type:datetime"`
}

func (User) TableName() string {
	return "users"
}

func (m *User) ToDomain() domain.User {
	return domain.User{
		ID:                 m.ID,
		Username:           m.Username,
		FollowersCount:     m.FollowersCount,
		PrimaryContentType: domain.ContentType(m.PrimaryContentType),
		LastActiveAt:       m.LastActiveAt,
	}
}
