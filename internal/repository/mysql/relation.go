package mysql

import (
	"context"
	"time"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/Guyuepp/go-feed-engine/internal/repository/mysql/model"
	"gorm.io/gorm"
)

type relationRepository struct {
	DB *gorm.DB
}

var _ domain.RelationRepository = (*relationRepository)(nil)

func NewRelationRepository(db *gorm.DB) *relationRepository {
	return &relationRepository{db}
}

func (m *relationRepository) FollowedCreators(ctx context.Context, userID int64) ([]int64, error) {
	var res []int64
	err := m.DB.WithContext(ctx).
		Model(&model.Follow{}).
		Where("follower_id = ?", userID).
		Pluck("creator_id", &res).Error
	return res, err
}

func (m *relationRepository) SubscribedCreators(ctx context.Context, userID int64) ([]int64, error) {
	var res []int64
	err := m.DB.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("user_id = ? AND status = ?", userID, model.SubscriptionActive).
		Where("(expires_at IS NULL OR expires_at > ?)", time.Now().UTC()).
		Distinct().
		Pluck("creator_id", &res).Error
	return res, err
}

func (m *relationRepository) BlockedUsers(ctx context.Context, userID int64) ([]int64, error) {
	var blocked, blockedBy []int64
	db := m.DB.WithContext(ctx).Model(&model.Block{})
	if err := db.Where("blocker_id = ?", userID).Pluck("blocked_id", &blocked).Error; err != nil {
		return nil, err
	}
	db = m.DB.WithContext(ctx).Model(&model.Block{})
	if err := db.Where("blocked_id = ?", userID).Pluck("blocker_id", &blockedBy).Error; err != nil {
		return nil, err
	}
	return uniqueIDs(append(blocked, blockedBy...)), nil
}

func (m *relationRepository) InteractionStats(ctx context.Context, userID int64) (res domain.InteractionStats, err error) {
	counts := []struct {
		model any
		dst   *int64
	}{
		{&model.PostLike{}, &res.TotalLikes},
		{&model.Comment{}, &res.TotalComments},
		{&model.Repost{}, &res.TotalReposts},
		{&model.Purchase{}, &res.TotalPurchases},
	}
	for _, c := range counts {
		if err = m.DB.WithContext(ctx).Model(c.model).Where("user_id = ?", userID).Count(c.dst).Error; err != nil {
			return domain.InteractionStats{}, err
		}
	}
	return res, nil
}
