package service

import (
	"Murmur/internal/pkg/apperr"
	"Murmur/internal/pkg/consts"
	"context"
	log "log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	clusterLockTTL  = 10 * time.Second
	clusterLockWait = 5 * time.Second
)

var ErrConversationBusy = apperr.ErrServer.WithMessage("conversation is busy, please retry")

// DistLocker 跨节点互斥锁，与 redis.TryLock/UnLock 的签名一致
type DistLocker interface {
	TryLock(ctx context.Context, key string, value interface{}, expiration time.Duration, retryTimes int) (bool, error)
	UnLock(ctx context.Context, key string, value interface{})
}

// clusterLock 多节点共享存储时使用：先在本进程内排队，再抢占 Redis 上的会话锁
type clusterLock struct {
	local *keyLock
	dist  DistLocker
	wait  time.Duration
}

func newClusterLock(local *keyLock, dist DistLocker) *clusterLock {
	return &clusterLock{local: local, dist: dist, wait: clusterLockWait}
}

func (l *clusterLock) Acquire(ctx context.Context, conversationID uint64) (func(), error) {
	unlockLocal := l.local.Lock(conversationID)

	key := consts.ConversationLockKey + strconv.FormatUint(conversationID, 10)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	ok, err := l.dist.TryLock(waitCtx, key, token, clusterLockTTL, -1)
	if err != nil || !ok {
		unlockLocal()
		log.WarnContext(ctx, "acquire conversation lock failed", "conversationID", conversationID, "err", err)
		if err != nil {
			return nil, ErrConversationBusy.Wrap(err)
		}
		return nil, ErrConversationBusy
	}

	return func() {
		l.dist.UnLock(context.WithoutCancel(ctx), key, token)
		unlockLocal()
	}, nil
}
