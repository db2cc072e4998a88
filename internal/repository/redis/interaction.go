package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	KeyUserInteractions = "user:interactions:%d"
	KeyUserAffinity     = "user:affinity:%d"
	KeyUserProfile      = "user:profile:%d"
)

type InteractionCacheConfig struct {
	RecentCap   int64         // recency log length
	AffinityTTL time.Duration // rolling TTL of the log and the affinity set
	ProfileTTL  time.Duration
}

type interactionCache struct {
	client *redis.Client
	cfg    InteractionCacheConfig
}

var _ domain.InteractionStore = (*interactionCache)(nil)

func NewInteractionCache(client *redis.Client, cfg InteractionCacheConfig) *interactionCache {
	return &interactionCache{
		client: client,
		cfg:    cfg,
	}
}

func (c *interactionCache) Record(ctx context.Context, userID int64, event domain.InteractionEvent, weight float64) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	logKey := fmt.Sprintf(KeyUserInteractions, userID)
	affKey := fmt.Sprintf(KeyUserAffinity, userID)

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, logKey, data)
		pipe.LTrim(ctx, logKey, 0, c.cfg.RecentCap-1)
		pipe.Expire(ctx, logKey, c.cfg.AffinityTTL)
		if weight > 0 && event.CreatorID > 0 {
			pipe.ZIncrBy(ctx, affKey, weight, strconv.FormatInt(event.CreatorID, 10))
			pipe.Expire(ctx, affKey, c.cfg.AffinityTTL)
		}
		return nil
	})
	return err
}

func (c *interactionCache) TopCreators(ctx context.Context, userID int64, n int) ([]domain.CreatorAffinity, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := c.client.ZRevRangeWithScores(ctx, fmt.Sprintf(KeyUserAffinity, userID), 0, int64(n)-1).Result()
	if err != nil {
		return nil, err
	}
	res := make([]domain.CreatorAffinity, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			logrus.Warnf("invalid creator in affinity set, user: %d, member: %v", userID, z.Member)
			continue
		}
		res = append(res, domain.CreatorAffinity{CreatorID: id, Score: z.Score})
	}
	return res, nil
}

func (c *interactionCache) RecentInteractions(ctx context.Context, userID int64, n int) ([]domain.InteractionEvent, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := c.client.LRange(ctx, fmt.Sprintf(KeyUserInteractions, userID), 0, int64(n)-1).Result()
	if err != nil {
		return nil, err
	}
	res := make([]domain.InteractionEvent, 0, len(raw))
	for _, s := range raw {
		var ev domain.InteractionEvent
		if err := json.Unmarshal([]byte(s), &ev); err != nil {
			logrus.Warnf("skipping malformed interaction, user: %d, err: %v", userID, err)
			continue
		}
		res = append(res, ev)
	}
	return res, nil
}

func (c *interactionCache) GetProfile(ctx context.Context, userID int64) (res domain.UserProfile, err error) {
	data, err := c.client.Get(ctx, fmt.Sprintf(KeyUserProfile, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.UserProfile{}, domain.ErrCacheMiss
	} else if err != nil {
		return domain.UserProfile{}, err
	}
	if err = json.Unmarshal(data, &res); err != nil {
		return domain.UserProfile{}, err
	}
	return
}

func (c *interactionCache) SetProfile(ctx context.Context, profile domain.UserProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, fmt.Sprintf(KeyUserProfile, profile.UserID), data, c.cfg.ProfileTTL).Err()
}

func (c *interactionCache) DeleteProfile(ctx context.Context, userID int64) error {
	return c.client.Del(ctx, fmt.Sprintf(KeyUserProfile, userID)).Err()
}
