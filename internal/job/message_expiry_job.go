package job

import (
	"Murmur/internal/pkg/consts"
	"Murmur/internal/pkg/logger"
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

const expiryLockTTL = 50 * time.Second

// MessageExpirer 软删除到期消息并广播
type MessageExpirer interface {
	ExpireMessages(ctx context.Context) (int, error)
}

// Locker 多节点部署时保证同一时刻只有一个节点执行清理
type Locker interface {
	TryLock(ctx context.Context, key string, value interface{}, expiration time.Duration, retryTimes int) (bool, error)
	UnLock(ctx context.Context, key string, value interface{})
}

// MessageExpiryJob 阅后即焚消息的定时清理，locker 为空时不加锁
type MessageExpiryJob struct {
	expirer MessageExpirer
	locker  Locker
}

func NewMessageExpiryJob(expirer MessageExpirer, locker Locker) *MessageExpiryJob {
	return &MessageExpiryJob{expirer: expirer, locker: locker}
}

func (s *MessageExpiryJob) Run() {
	traceID := "job-expiry-" + uuid.NewString()
	ctx := context.WithValue(context.Background(), logger.TraceIDKey, traceID)

	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, consts.MessageExpiryLock, traceID, expiryLockTTL, 1)
		if err != nil {
			log.ErrorContext(ctx, "acquire expiry lock error", "err", err)
			return
		}
		if !ok {
			log.DebugContext(ctx, "expiry sweep running on another node")
			return
		}
		defer s.locker.UnLock(ctx, consts.MessageExpiryLock, traceID)
	}

	n, err := s.expirer.ExpireMessages(ctx)
	if err != nil {
		log.ErrorContext(ctx, "expire messages error", "err", err)
		return
	}
	if n > 0 {
		log.InfoContext(ctx, "expired messages swept", "count", n)
	}
}
