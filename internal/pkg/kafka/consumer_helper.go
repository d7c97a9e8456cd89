package kafka

import (
	"context"
	"errors"
	log "log/slog"
	"time"

	"github.com/IBM/sarama"
)

const (
	batchSize    = 32
	batchTimeout = 1 * time.Second
	maxRetryWait = 5 * time.Second
)

type LogicFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

// errSkip 无法处理的消息，重试也不会成功
var errSkip = errors.New("skip message")

// pullMessageBatch 拉取一批消息并执行业务逻辑
func pullMessageBatch(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim, logic LogicFunc) error {
	batch := make([]*sarama.ConsumerMessage, 0, batchSize)
	ticker := time.NewTicker(batchTimeout)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				processBatch(session, batch, logic)
				return nil
			}
			batch = append(batch, msg)
			if len(batch) >= batchSize {
				processBatch(session, batch, logic)
				batch = make([]*sarama.ConsumerMessage, 0, batchSize)
				ticker.Reset(batchTimeout)
			}
		case <-ticker.C:
			processBatch(session, batch, logic)
			batch = make([]*sarama.ConsumerMessage, 0, batchSize)
		case <-session.Context().Done():
			return nil
		}
	}
}

// processBatch 按分区内顺序逐条处理，同一成员的加入与移除不能乱序
func processBatch(session sarama.ConsumerGroupSession, messages []*sarama.ConsumerMessage, logic LogicFunc) {
	if len(messages) == 0 {
		return
	}
	ctx := session.Context()
	for _, m := range messages {
		if !retry(ctx, m, logic) {
			return
		}
		session.MarkMessage(m, "")
	}
}

// retry 指数退避重试直到成功，会话结束时返回 false
func retry(ctx context.Context, m *sarama.ConsumerMessage, logic LogicFunc) bool {
	wait := 100 * time.Millisecond
	for {
		err := logic(ctx, m)
		if err == nil {
			return true
		}
		if errors.Is(err, errSkip) {
			log.WarnContext(ctx, "skip kafka message", "topic", m.Topic, "offset", m.Offset, "err", err)
			return true
		}

		log.ErrorContext(ctx, "process kafka message failed", "topic", m.Topic, "offset", m.Offset, "err", err)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
		wait *= 2
		if wait > maxRetryWait {
			wait = maxRetryWait
		}
	}
}
