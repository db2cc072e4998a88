package mysql_test

import (
	"testing"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/Guyuepp/go-feed-engine/internal/repository/mysql/model"
)

// setupTestDB creates an in-memory SQLite database with the full schema
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, db *gorm.DB, id, followers int64) {
	t.Helper()
	require.NoError(t, db.Create(&model.User{
		ID:                 id,
		Username:           faker.Username(),
		FollowersCount:     followers,
		PrimaryContentType: string(domain.ContentText),
		LastActiveAt:       testNow,
		CreatedAt:          testNow,
	}).Error)
}

type postOpt func(*model.Post)

func withVisibility(v domain.Visibility) postOpt {
	return func(p *model.Post) { p.Visibility = string(v) }
}

func withCounts(likes, comments int64) postOpt {
	return func(p *model.Post) {
		p.LikesCount = likes
		p.CommentsCount = comments
	}
}

func seedPost(t *testing.T, db *gorm.DB, id, creator int64, age time.Duration, opts ...postOpt) {
	t.Helper()
	p := &model.Post{
		ID:          id,
		PublicID:    faker.UUIDHyphenated(),
		CreatorID:   creator,
		Visibility:  string(domain.VisibilityPublic),
		ContentType: string(domain.ContentText),
		CreatedAt:   testNow.Add(-age),
	}
	for _, opt := range opts {
		opt(p)
	}
	require.NoError(t, db.Create(p).Error)
}

func postIDs(posts []domain.Post) []int64 {
	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}
