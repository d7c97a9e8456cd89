package job

import (
	"Murmur/internal/pkg/redis"
	"context"
	"time"
)

// RedisLocker 基于 SETNX 的分布式锁
type RedisLocker struct{}

func (RedisLocker) TryLock(ctx context.Context, key string, value interface{}, expiration time.Duration, retryTimes int) (bool, error) {
	return redis.TryLock(ctx, key, value, expiration, retryTimes)
}

func (RedisLocker) UnLock(ctx context.Context, key string, value interface{}) {
	redis.UnLock(ctx, key, value)
}
