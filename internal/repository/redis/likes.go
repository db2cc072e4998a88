package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	KeyLikeCount        = "post:likes:count:%d"
	KeyLikeUsers        = "post:likes:users:%d"
	KeyLikeState        = "post:likes:state:%d"
	KeyLikePending      = "post:likes:pending:%d"
	KeyLikePendingIndex = "post:likes:pending:index"

	stateHydrating = "hydrating"
	stateHydrated  = "hydrated"
)

// KEYS = {counter, likers, state, pending, pending index}
// ARGV = {user ID, ttl seconds, post ID}
var toggleScript = redis.NewScript(`
	if redis.call('GET', KEYS[3]) ~= 'hydrated' then
		return {-1, 0}
	end

	local liked = 1
	if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
		redis.call('SREM', KEYS[2], ARGV[1])
		liked = 0
	else
		redis.call('SADD', KEYS[2], ARGV[1])
	end

	local count = tonumber(redis.call('GET', KEYS[1]) or '0')
	if liked == 1 then
		count = count + 1
	else
		count = count - 1
	end
	if count < 0 then
		count = 0
	end
	redis.call('SET', KEYS[1], count, 'EX', ARGV[2])

	if liked == 1 then
		redis.call('RPUSH', KEYS[4], '1:' .. ARGV[1])
	else
		redis.call('RPUSH', KEYS[4], '-1:' .. ARGV[1])
	end
	redis.call('SADD', KEYS[5], ARGV[3])

	redis.call('EXPIRE', KEYS[2], ARGV[2])
	redis.call('EXPIRE', KEYS[3], ARGV[2])
	return {liked, count}
`)

// KEYS = {counter, likers, state}
// ARGV = {claim, ttl seconds, count, liker IDs...}
var hydrateScript = redis.NewScript(`
	if redis.call('GET', KEYS[3]) ~= ARGV[1] then
		return 0
	end
	redis.call('DEL', KEYS[2])
	for i = 4, #ARGV do
		redis.call('SADD', KEYS[2], ARGV[i])
	end
	if #ARGV > 3 then
		redis.call('EXPIRE', KEYS[2], ARGV[2])
	end
	redis.call('SET', KEYS[1], ARGV[3], 'EX', ARGV[2])
	redis.call('SET', KEYS[3], 'hydrated', 'EX', ARGV[2])
	return 1
`)

// KEYS = {state}
// ARGV = {claim}
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// KEYS = {likers, state}
// ARGV = {user ID}
var isMemberScript = redis.NewScript(`
	if redis.call('GET', KEYS[2]) ~= 'hydrated' then
		return -1
	end
	return redis.call('SISMEMBER', KEYS[1], ARGV[1])
`)

// KEYS = {likers, state, pending}
var snapshotScript = redis.NewScript(`
	local state = redis.call('GET', KEYS[2])
	if not state then
		state = ''
	end
	return {state, redis.call('SMEMBERS', KEYS[1]), redis.call('LLEN', KEYS[3])}
`)

// KEYS = {pending, pending index}
// ARGV = {acked count, post ID}
var ackScript = redis.NewScript(`
	redis.call('LTRIM', KEYS[1], ARGV[1], -1)
	if redis.call('LLEN', KEYS[1]) == 0 then
		redis.call('SREM', KEYS[2], ARGV[2])
	end
	return 1
`)

type likeCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ domain.LikeCache = (*likeCache)(nil)

func NewLikeCache(client *redis.Client, ttl time.Duration) *likeCache {
	return &likeCache{
		client: client,
		ttl:    ttl,
	}
}

func likeKeys(postID int64) (count, users, state, pending string) {
	return fmt.Sprintf(KeyLikeCount, postID),
		fmt.Sprintf(KeyLikeUsers, postID),
		fmt.Sprintf(KeyLikeState, postID),
		fmt.Sprintf(KeyLikePending, postID)
}

func (c *likeCache) ttlSeconds() int64 {
	return int64(c.ttl / time.Second)
}

func (c *likeCache) GetCount(ctx context.Context, postID int64) (int64, error) {
	res, err := c.client.Get(ctx, fmt.Sprintf(KeyLikeCount, postID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, domain.ErrCacheMiss
	}
	if err != nil {
		return 0, err
	}
	return res, nil
}

func (c *likeCache) IsMember(ctx context.Context, postID, userID int64) (bool, error) {
	_, users, state, _ := likeKeys(postID)
	res, err := isMemberScript.Run(ctx, c.client, []string{users, state}, userID).Int()
	if err != nil {
		return false, err
	}
	if res == -1 {
		return false, domain.ErrCacheMiss
	}
	return res == 1, nil
}

func (c *likeCache) HasPending(ctx context.Context, postID int64) (bool, error) {
	n, err := c.client.Exists(ctx, fmt.Sprintf(KeyLikePending, postID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type likeCmds struct {
	count   *redis.StringCmd
	pending *redis.IntCmd
	state   *redis.StringCmd
	member  *redis.BoolCmd
}

func (c *likeCache) BatchLikeData(ctx context.Context, postIDs []int64, userID int64) (map[int64]domain.LikeData, []int64, error) {
	if len(postIDs) == 0 {
		return map[int64]domain.LikeData{}, nil, nil
	}

	pipe := c.client.Pipeline()
	cmds := make([]likeCmds, len(postIDs))
	for i, id := range postIDs {
		count, users, state, pending := likeKeys(id)
		cmds[i].count = pipe.Get(ctx, count)
		cmds[i].pending = pipe.Exists(ctx, pending)
		if userID > 0 {
			cmds[i].state = pipe.Get(ctx, state)
			cmds[i].member = pipe.SIsMember(ctx, users, userID)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, err
	}

	hits := make(map[int64]domain.LikeData, len(postIDs))
	var misses []int64
	for i, id := range postIDs {
		hydrated := userID > 0 && cmds[i].state.Val() == stateHydrated
		liked := hydrated && cmds[i].member.Val()

		count, err := cmds[i].count.Int64()
		switch {
		case err == nil && (userID == 0 || hydrated):
			hits[id] = domain.LikeData{Count: count, IsLiked: liked}
		case errors.Is(err, redis.Nil) && cmds[i].pending.Val() > 0:
			hits[id] = domain.LikeData{Count: 0, IsLiked: liked}
		default:
			if err != nil && !errors.Is(err, redis.Nil) {
				logrus.Warnf("invalid like counter in redis, post: %d, err: %v", id, err)
			}
			misses = append(misses, id)
		}
	}
	return hits, misses, nil
}

func (c *likeCache) State(ctx context.Context, postID int64) (domain.HydrationState, error) {
	res, err := c.client.Get(ctx, fmt.Sprintf(KeyLikeState, postID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Uninitialized, nil
	}
	if err != nil {
		return domain.Uninitialized, err
	}
	return parseState(res), nil
}

func parseState(s string) domain.HydrationState {
	switch {
	case s == stateHydrated:
		return domain.Hydrated
	case strings.HasPrefix(s, stateHydrating+":"):
		return domain.Hydrating
	default:
		return domain.Uninitialized
	}
}

// claimValue is what the state key holds while token owns the hydration
func claimValue(token string) string {
	return stateHydrating + ":" + token
}

func (c *likeCache) ClaimHydration(ctx context.Context, postID int64, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, fmt.Sprintf(KeyLikeState, postID), claimValue(token), ttl).Result()
	if err != nil || !ok {
		return "", err
	}
	return token, nil
}

func (c *likeCache) Hydrate(ctx context.Context, postID int64, token string, count int64, likers []int64) error {
	countKey, users, state, _ := likeKeys(postID)
	args := make([]any, 0, len(likers)+3)
	args = append(args, claimValue(token), c.ttlSeconds(), count)
	for _, uid := range likers {
		args = append(args, uid)
	}
	ok, err := hydrateScript.Run(ctx, c.client, []string{countKey, users, state}, args...).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return domain.ErrClaimLost
	}
	return nil
}

func (c *likeCache) ReleaseHydration(ctx context.Context, postID int64, token string) error {
	return releaseScript.Run(ctx, c.client, []string{fmt.Sprintf(KeyLikeState, postID)}, claimValue(token)).Err()
}

func (c *likeCache) Toggle(ctx context.Context, postID, userID int64) (domain.LikeToggleResult, error) {
	count, users, state, pending := likeKeys(postID)
	keys := []string{count, users, state, pending, KeyLikePendingIndex}
	res, err := toggleScript.Run(ctx, c.client, keys, userID, c.ttlSeconds(), postID).Int64Slice()
	if err != nil {
		return domain.LikeToggleResult{}, err
	}
	if len(res) != 2 {
		return domain.LikeToggleResult{}, fmt.Errorf("unexpected toggle reply: %v", res)
	}
	if res[0] == -1 {
		return domain.LikeToggleResult{}, domain.ErrCacheMiss
	}
	return domain.LikeToggleResult{IsLiked: res[0] == 1, NewCount: res[1]}, nil
}

func (c *likeCache) PendingPosts(ctx context.Context) ([]int64, error) {
	members, err := c.client.SMembers(ctx, KeyLikePendingIndex).Result()
	if err != nil {
		return nil, err
	}
	return parseIDs(members), nil
}

func (c *likeCache) Snapshot(ctx context.Context, postID int64) (domain.LikeSnapshot, error) {
	_, users, state, pending := likeKeys(postID)
	res, err := snapshotScript.Run(ctx, c.client, []string{users, state, pending}).Slice()
	if err != nil {
		return domain.LikeSnapshot{}, err
	}
	if len(res) != 3 {
		return domain.LikeSnapshot{}, fmt.Errorf("unexpected snapshot reply: %v", res)
	}

	snap := domain.LikeSnapshot{PostID: postID}
	if s, ok := res[0].(string); ok {
		snap.State = parseState(s)
	}
	if members, ok := res[1].([]any); ok {
		strs := make([]string, 0, len(members))
		for _, m := range members {
			if s, ok := m.(string); ok {
				strs = append(strs, s)
			}
		}
		snap.Members = parseIDs(strs)
	}
	if n, ok := res[2].(int64); ok {
		snap.PendingLen = n
	}
	return snap, nil
}

func (c *likeCache) AckPending(ctx context.Context, postID int64, n int64) error {
	if n <= 0 {
		return nil
	}
	keys := []string{fmt.Sprintf(KeyLikePending, postID), KeyLikePendingIndex}
	return ackScript.Run(ctx, c.client, keys, n, postID).Err()
}

func parseIDs(strs []string) []int64 {
	ids := make([]int64, 0, len(strs))
	for _, s := range strs {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			logrus.Warnf("skipping non-numeric id %q in redis", s)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
