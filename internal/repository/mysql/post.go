package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/Guyuepp/go-feed-engine/internal/repository/mysql/model"
	"github.com/sirupsen/logrus"
)

const postWithCreatorColumns = "posts.*, COALESCE(users.followers_count, 0) AS creator_followers"

type postRepository struct {
	DB *gorm.DB
}

// mysql层只负责数据库操作
var _ domain.PostRepository = (*postRepository)(nil)

func NewPostRepository(db *gorm.DB) *postRepository {
	return &postRepository{db}
}

func (m *postRepository) withCreator(ctx context.Context) *gorm.DB {
	return m.DB.WithContext(ctx).
		Table("posts").
		Select(postWithCreatorColumns).
		Joins("LEFT JOIN users ON users.id = posts.creator_id")
}

// exclusions applies the filters shared by every candidate pool
func exclusions(db *gorm.DB, q domain.CandidateQuery) *gorm.DB {
	if len(q.ExcludeCreatorIDs) > 0 {
		db = db.Where("posts.creator_id NOT IN ?", q.ExcludeCreatorIDs)
	}
	if len(q.ExcludePostIDs) > 0 {
		db = db.Where("posts.id NOT IN ?", q.ExcludePostIDs)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	return db
}

func toDomainPosts(rows []model.PostWithCreator) []domain.Post {
	res := make([]domain.Post, len(rows))
	for i := range rows {
		res[i] = rows[i].ToDomain()
	}
	return res
}

func (m *postRepository) GetByID(ctx context.Context, id int64) (res domain.Post, err error) {
	var row model.PostWithCreator
	err = m.withCreator(ctx).Where("posts.id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return res, domain.ErrNotFound
	}
	if err != nil {
		return res, err
	}
	return row.ToDomain(), nil
}

func (m *postRepository) FetchIDs(ctx context.Context, cursor, limit int64) (ids []int64, err error) {
	err = m.DB.WithContext(ctx).
		Model(&model.Post{}).
		Select("id").
		Where("id > ?", cursor).
		Order("id").
		Limit(int(limit)).
		Find(&ids).Error
	return
}

func (m *postRepository) FetchByCreators(ctx context.Context, q domain.CandidateQuery) ([]domain.Post, error) {
	if len(q.CreatorIDs) == 0 {
		return nil, nil
	}
	db := m.withCreator(ctx).
		Where("posts.creator_id IN ?", q.CreatorIDs).
		Where(m.DB.Where("posts.visibility = ?", domain.VisibilityPublic).
			Or("posts.visibility = ? AND posts.creator_id IN ?", domain.VisibilityFollowers, orNone(q.FollowedIDs)).
			Or("posts.visibility = ? AND posts.creator_id IN ?", domain.VisibilitySubscribers, orNone(q.SubscribedIDs)))
	if !q.Since.IsZero() {
		db = db.Where("posts.created_at >= ?", q.Since.UTC())
	}

	var rows []model.PostWithCreator
	if err := exclusions(db, q).Order("posts.created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainPosts(rows), nil
}

func (m *postRepository) FetchTrending(ctx context.Context, q domain.CandidateQuery) ([]domain.Post, error) {
	db := m.publicSince(ctx, q).
		Order("posts.likes_count DESC").
		Order("posts.comments_count DESC").
		Order("posts.created_at DESC")

	var rows []model.PostWithCreator
	if err := exclusions(db, q).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainPosts(rows), nil
}

func (m *postRepository) FetchRecent(ctx context.Context, q domain.CandidateQuery) ([]domain.Post, error) {
	db := m.publicSince(ctx, q).Order("posts.created_at DESC")

	var rows []model.PostWithCreator
	if err := exclusions(db, q).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainPosts(rows), nil
}

func (m *postRepository) publicSince(ctx context.Context, q domain.CandidateQuery) *gorm.DB {
	db := m.withCreator(ctx).
		Where("posts.visibility = ?", domain.VisibilityPublic).
		Where("posts.created_at >= ?", q.Since.UTC())
	if q.UserID > 0 {
		db = db.Where("posts.creator_id <> ?", q.UserID)
	}
	return db
}

func (m *postRepository) FetchReposts(ctx context.Context, q domain.CandidateQuery) ([]domain.Post, error) {
	if len(q.CreatorIDs) == 0 {
		return nil, nil
	}
	db := m.DB.WithContext(ctx).
		Table("reposts").
		Select(postWithCreatorColumns+", reposts.user_id AS reposter_id, reposts.created_at AS reposted_at").
		Joins("JOIN posts ON posts.id = reposts.post_id").
		Joins("LEFT JOIN users ON users.id = posts.creator_id").
		Where("reposts.user_id IN ?", q.CreatorIDs).
		Where("reposts.created_at >= ?", q.Since.UTC()).
		Where("posts.visibility = ?", domain.VisibilityPublic).
		Order("reposts.created_at DESC")

	var rows []model.RepostedPost
	if err := exclusions(db, q).Find(&rows).Error; err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(rows))
	res := make([]domain.Post, 0, len(rows))
	for i := range rows {
		if _, ok := seen[rows[i].ID]; ok {
			continue
		}
		seen[rows[i].ID] = struct{}{}
		p := rows[i].PostWithCreator.ToDomain()
		p.Repost = &domain.RepostInfo{
			ReposterID: rows[i].ReposterID,
			RepostedAt: rows[i].RepostedAt,
			IsSelf:     rows[i].ReposterID == q.UserID,
		}
		res = append(res, p)
	}
	return res, nil
}

func (m *postRepository) GetLikeCount(ctx context.Context, postID int64) (int64, error) {
	var post model.Post
	err := m.DB.WithContext(ctx).Select("id, likes_count").Take(&post, "id = ?", postID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return post.LikesCount, nil
}

func (m *postRepository) GetLikeCounts(ctx context.Context, postIDs []int64) (map[int64]int64, error) {
	res := make(map[int64]int64, len(postIDs))
	if len(postIDs) == 0 {
		return res, nil
	}
	var posts []model.Post
	err := m.DB.WithContext(ctx).
		Select("id, likes_count").
		Where("id IN ?", postIDs).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		res[p.ID] = p.LikesCount
	}
	return res, nil
}

func (m *postRepository) GetLikedUsers(ctx context.Context, postID int64) ([]int64, error) {
	var res []int64
	err := m.DB.WithContext(ctx).
		Model(&model.PostLike{}).
		Where("post_id = ?", postID).
		Pluck("user_id", &res).
		Error
	return res, err
}

func (m *postRepository) IsLiked(ctx context.Context, postID, userID int64) (bool, error) {
	var n int64
	err := m.DB.WithContext(ctx).
		Model(&model.PostLike{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&n).Error
	return n > 0, err
}

func (m *postRepository) FilterLiked(ctx context.Context, userID int64, postIDs []int64) ([]int64, error) {
	if len(postIDs) == 0 || userID <= 0 {
		return nil, nil
	}
	var res []int64
	err := m.DB.WithContext(ctx).
		Model(&model.PostLike{}).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Pluck("post_id", &res).
		Error
	return res, err
}

func (m *postRepository) ReplaceLikes(ctx context.Context, postID int64, userIDs []int64) error {
	userIDs = uniqueIDs(userIDs)
	missing := false

	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&model.Post{}).Where("id = ?", postID).Count(&exists).Error; err != nil {
			return err
		}

		del := tx.Where("post_id = ?", postID)
		if exists > 0 && len(userIDs) > 0 {
			del = del.Where("user_id NOT IN ?", userIDs)
		}
		if err := del.Delete(&model.PostLike{}).Error; err != nil {
			return err
		}

		if exists == 0 {
			missing = true
			logrus.Warnf("dropped like rows of deleted post %d", postID)
			return nil
		}

		if len(userIDs) > 0 {
			now := time.Now()
			rows := make([]model.PostLike, len(userIDs))
			for i, uid := range userIDs {
				rows[i] = model.PostLike{PostID: postID, UserID: uid, CreatedAt: now}
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				CreateInBatches(&rows, 500).Error; err != nil {
				return err
			}
		}

		return tx.Model(&model.Post{}).
			Where("id = ?", postID).
			UpdateColumn("likes_count", int64(len(userIDs))).Error
	})
	if err != nil {
		return err
	}
	if missing {
		return domain.ErrNotFound
	}
	return nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	res := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		res = append(res, id)
	}
	return res
}

// orNone keeps "IN ?" valid for empty lists
func orNone(ids []int64) []int64 {
	if len(ids) == 0 {
		return []int64{0}
	}
	return ids
}
