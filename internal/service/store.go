package service

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/im/ledger"
	"context"
	"time"
)

// MessageStore 消息账本存储，Apply 需保证一次调用内的写操作整体生效
type MessageStore interface {
	Load(ctx context.Context, id string) (ledger.Message, error)
	Apply(ctx context.Context, writes []ledger.Write) error
	History(ctx context.Context, conversationID uint64, before string, limit int) ([]ledger.Message, error)
	ListUndelivered(ctx context.Context, conversationIDs []uint64, userID uint64, limit int) ([]ledger.Message, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]ledger.Message, error)
}

// Pusher 离线推送的交接方，实现必须是非阻塞的
type Pusher interface {
	Push(ctx context.Context, n *dto.PushNotification)
}

type noopPusher struct{}

func (noopPusher) Push(context.Context, *dto.PushNotification) {}
