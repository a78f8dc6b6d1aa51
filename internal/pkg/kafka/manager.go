package kafka

import (
	"Relay/internal/api/config"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
)

// ConsumerManager 管理所有 Kafka 消费者
type ConsumerManager struct {
	deliveryConsumer sarama.ConsumerGroup
	deliveryHandler  sarama.ConsumerGroupHandler
}

// NewConsumerManager 构造函数
func NewConsumerManager(cfg *config.Config, deliveryHandler *DeliveryHandler) (*ConsumerManager, error) {
	saramaCfg := newSaramaConfig(cfg.Kafka)

	deliveryConsumer, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.KafkaDeliveryConsumer.GroupID, saramaCfg)
	if err != nil {
		return nil, err
	}

	return &ConsumerManager{
		deliveryConsumer: deliveryConsumer,
		deliveryHandler:  deliveryHandler,
	}, nil
}

// Start 启动消费者，阻塞直到 ctx 取消
func (m *ConsumerManager) Start(ctx context.Context, cfg *config.Config) error {
	go func() {
		topic := cfg.KafkaDeliveryConsumer.Topic
		log.Info("message delivery consumer started", "topic", topic)
		for {
			if err := m.deliveryConsumer.Consume(ctx, []string{topic}, m.deliveryHandler); err != nil {
				log.Error("Error from consumer", "err", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	<-ctx.Done()
	log.Info("Kafka Manager shutting down...")

	if err := m.deliveryConsumer.Close(); err != nil {
		log.Error("Failed to close delivery consumer", "err", err)
	}
	return nil
}
