package kafka

import (
	"Murmur/internal/api/config"
	"Murmur/internal/api/dto"
	"context"
	log "log/slog"
	"strconv"
	"sync"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

// PushProducer 把离线通知交给推送服务，发送失败只记录日志
type PushProducer struct {
	producer  sarama.AsyncProducer
	topic     string
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewPushProducer(cfg config.KafkaConfig) (*PushProducer, error) {
	producer, err := sarama.NewAsyncProducer(cfg.Brokers, newSaramaConfig(cfg))
	if err != nil {
		return nil, err
	}
	return newPushProducer(producer, cfg.PushTopic), nil
}

func newPushProducer(producer sarama.AsyncProducer, topic string) *PushProducer {
	p := &PushProducer{producer: producer, topic: topic}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for perr := range producer.Errors() {
			log.Error("push notification delivery failed", "topic", topic, "err", perr.Err)
		}
	}()
	return p
}

// Push 不阻塞调用方，producer 缓冲区满时丢弃通知
func (p *PushProducer) Push(ctx context.Context, n *dto.PushNotification) {
	value, err := json.Marshal(n)
	if err != nil {
		log.ErrorContext(ctx, "marshal push notification failed", "err", err)
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(n.UserID, 10)),
		Value: sarama.ByteEncoder(value),
	}
	select {
	case p.producer.Input() <- msg:
	default:
		log.WarnContext(ctx, "push producer busy, notification dropped", "userID", n.UserID, "messageID", n.MessageID)
	}
}

// Close 刷出缓冲中的消息后关闭
func (p *PushProducer) Close() {
	p.closeOnce.Do(func() {
		p.producer.AsyncClose()
		p.wg.Wait()
	})
}
