package redis

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"hash/fnv"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/redis/go-redis/v9"
)

const (
	KeyPostBloom       = "bloom:post:ids"
	KeyPostBloomCursor = "bloom:post:cursor"
)

type redisBloomRepo struct {
	client       *redis.Client
	BloomBitSize uint64
}

var _ domain.BloomRepository = (*redisBloomRepo)(nil)

func NewRedisBloomRepo(client *redis.Client, bitSize uint64) *redisBloomRepo {
	return &redisBloomRepo{
		client:       client,
		BloomBitSize: bitSize,
	}
}

func (r *redisBloomRepo) Add(ctx context.Context, id int64) error {
	return r.BulkAdd(ctx, []int64{id})
}

func (r *redisBloomRepo) Exists(ctx context.Context, id int64) (bool, error) {
	pipe := r.client.Pipeline()
	for _, offset := range r.offsets(id) {
		pipe.GetBit(ctx, KeyPostBloom, int64(offset))
	}
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		return false, err
	}

	for _, cmd := range cmds {
		val, err := cmd.(*redis.IntCmd).Result()
		if err != nil {
			return false, err
		}
		if val == 0 {
			return false, nil
		}
	}
	return true, nil
}

func (r *redisBloomRepo) BulkAdd(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	for _, id := range ids {
		for _, offset := range r.offsets(id) {
			pipe.SetBit(ctx, KeyPostBloom, int64(offset), 1)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *redisBloomRepo) Cursor(ctx context.Context) (int64, error) {
	res, err := r.client.Get(ctx, KeyPostBloomCursor).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return res, err
}

func (r *redisBloomRepo) SetCursor(ctx context.Context, id int64) error {
	return r.client.Set(ctx, KeyPostBloomCursor, id, 0).Err()
}

// offsets derives k=3 bit positions from two independent hashes
func (r *redisBloomRepo) offsets(id int64) []uint64 {
	data := fmt.Appendf(nil, "%d", id)
	offsets := make([]uint64, 3)

	offsets[0] = uint64(crc32.ChecksumIEEE(data)) % r.BloomBitSize

	h := fnv.New64()
	h.Write(data)
	offsets[1] = h.Sum64() % r.BloomBitSize

	offsets[2] = (offsets[0] + offsets[1] + 0xABC) % r.BloomBitSize

	return offsets
}
