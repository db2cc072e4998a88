package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/redis/go-redis/v9"
)

const (
	KeyRecommendedFeed = "feed:recommended:%d"
	feedKeyPattern     = "feed:recommended:*"
)

type feedCache struct {
	client *redis.Client
}

var _ domain.FeedCache = (*feedCache)(nil)

func NewFeedCache(client *redis.Client) *feedCache {
	return &feedCache{client}
}

func (c *feedCache) Get(ctx context.Context, userID int64) (res domain.FeedSnapshot, err error) {
	data, err := c.client.Get(ctx, fmt.Sprintf(KeyRecommendedFeed, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.FeedSnapshot{}, domain.ErrCacheMiss
	} else if err != nil {
		return domain.FeedSnapshot{}, err
	}
	if err = json.Unmarshal(data, &res); err != nil {
		return domain.FeedSnapshot{}, err
	}
	return
}

func (c *feedCache) Set(ctx context.Context, snap domain.FeedSnapshot, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, fmt.Sprintf(KeyRecommendedFeed, snap.UserID), data, ttl).Err()
}

func (c *feedCache) Delete(ctx context.Context, userID int64) error {
	return c.client.Del(ctx, fmt.Sprintf(KeyRecommendedFeed, userID)).Err()
}

func (c *feedCache) Exists(ctx context.Context, userID int64) (bool, error) {
	n, err := c.client.Exists(ctx, fmt.Sprintf(KeyRecommendedFeed, userID)).Result()
	return n > 0, err
}

// Count walks the feed keys with SCAN.
func (c *feedCache) Count(ctx context.Context) (int64, error) {
	var (
		cursor uint64
		total  int64
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, feedKeyPattern, 500).Result()
		if err != nil {
			return 0, err
		}
		total += int64(len(keys))
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}
