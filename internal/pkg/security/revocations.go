package security

import (
	"Murmur/internal/pkg/consts"
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocations 注销列表存放在 redis，键随 Token 过期
type RedisRevocations struct {
	rdb redis.Cmdable
}

func NewRedisRevocations(rdb redis.Cmdable) *RedisRevocations {
	return &RedisRevocations{rdb: rdb}
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, signature string) (bool, error) {
	n, err := r.rdb.Exists(ctx, consts.TokenRevokedKey+signature).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisRevocations) Revoke(ctx context.Context, signature string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.rdb.Set(ctx, consts.TokenRevokedKey+signature, 1, ttl).Err()
}
