package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/Guyuepp/go-feed-engine/internal/repository/mysql/model"
)

// feedStore is the persistent tier of the feed cache
type feedStore struct {
	DB *gorm.DB
}

var _ domain.FeedStore = (*feedStore)(nil)

func NewFeedStore(db *gorm.DB) *feedStore {
	return &feedStore{db}
}

func (m *feedStore) Get(ctx context.Context, userID int64) (domain.FeedSnapshot, error) {
	var row model.RecommendedFeed
	err := m.DB.WithContext(ctx).Take(&row, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.FeedSnapshot{}, domain.ErrCacheMiss
	}
	if err != nil {
		return domain.FeedSnapshot{}, err
	}
	return row.ToDomain(), nil
}

func (m *feedStore) Set(ctx context.Context, snap domain.FeedSnapshot) error {
	row := model.NewRecommendedFeedFromDomain(&snap)
	return m.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(row).Error
}

func (m *feedStore) Delete(ctx context.Context, userID int64) error {
	return m.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.RecommendedFeed{}).Error
}

func (m *feedStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := m.DB.WithContext(ctx).Where("expires_at < ?", now.UTC()).Delete(&model.RecommendedFeed{})
	return result.RowsAffected, result.Error
}

func (m *feedStore) Count(ctx context.Context) (n int64, err error) {
	err = m.DB.WithContext(ctx).Model(&model.RecommendedFeed{}).Count(&n).Error
	return
}
