package mysql

import (
	"context"
	"time"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/Guyuepp/go-feed-engine/internal/repository/mysql/model"
	"gorm.io/gorm"
)

type userRepository struct {
	DB *gorm.DB
}

var _ domain.UserRepository = (*userRepository)(nil)

func NewUserRepository(db *gorm.DB) *userRepository {
	return &userRepository{
		DB: db,
	}
}

func (m *userRepository) GetByIDs(ctx context.Context, uids []int64) ([]domain.User, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	var users []model.User
	err := m.DB.WithContext(ctx).Model(&model.User{}).Where("id in ?", uids).Find(&users).Error
	res := make([]domain.User, len(users))
	for i := range users {
		res[i] = users[i].ToDomain()
	}
	return res, err
}

func (m *userRepository) FetchActiveIDs(ctx context.Context, since time.Time, cursor int64, limit int) (ids []int64, err error) {
	err = m.DB.WithContext(ctx).
		Model(&model.User{}).
		Select("id").
		Where("last_active_at >= ? AND id > ?", since.UTC(), cursor).
		Order("id").
		Limit(limit).
		Find(&ids).Error
	return
}
