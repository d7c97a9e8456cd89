package kafka

import (
	"Murmur/internal/api/config"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
)

// ConsumerManager 管理 Kafka 消费者
type ConsumerManager struct {
	memberConsumer sarama.ConsumerGroup
	memberHandler  sarama.ConsumerGroupHandler
	memberTopic    string
}

func NewConsumerManager(cfg config.KafkaConfig, syncer MembershipSyncer) (*ConsumerManager, error) {
	memberConsumer, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.MemberGroup, newSaramaConfig(cfg))
	if err != nil {
		return nil, err
	}
	return &ConsumerManager{
		memberConsumer: memberConsumer,
		memberHandler:  NewMemberHandler(syncer),
		memberTopic:    cfg.MemberTopic,
	}, nil
}

// Start 启动所有消费者，阻塞到 ctx 结束
func (m *ConsumerManager) Start(ctx context.Context) error {
	go func() {
		for err := range m.memberConsumer.Errors() {
			log.Error("member consumer error", "err", err)
		}
	}()

	go func() {
		log.Info("member consumer started", "topic", m.memberTopic)
		for {
			if err := m.memberConsumer.Consume(ctx, []string{m.memberTopic}, m.memberHandler); err != nil {
				log.Error("error from member consumer", "err", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	<-ctx.Done()
	log.Info("kafka manager shutting down...")

	if err := m.memberConsumer.Close(); err != nil {
		log.Error("failed to close member consumer", "err", err)
	}
	return nil
}
