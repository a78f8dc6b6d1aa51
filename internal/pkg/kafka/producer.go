package kafka

import (
	"Relay/internal/api/config"
	"context"
	log "log/slog"
	"strconv"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

// DeliveryTask 投递任务载荷，生产与消费两端共用
type DeliveryTask struct {
	MessageID      uint64 `json:"messageId"`
	ConversationID uint64 `json:"conversationId"`
	Seq            uint64 `json:"seq"`
}

// DeliveryProducer 投递任务生产者，实现 service.DeliveryEnqueuer
type DeliveryProducer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewDeliveryProducer(cfg *config.Config) (*DeliveryProducer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, newSaramaConfig(cfg.Kafka))
	if err != nil {
		return nil, err
	}
	return &DeliveryProducer{
		producer: producer,
		topic:    cfg.KafkaDeliveryConsumer.Topic,
	}, nil
}

// EnqueueDelivery 以会话号为分区键，同会话的投递任务保持先后次序
func (p *DeliveryProducer) EnqueueDelivery(_ context.Context, messageID, conversationID, seq uint64) error {
	data, err := json.Marshal(&DeliveryTask{
		MessageID:      messageID,
		ConversationID: conversationID,
		Seq:            seq,
	})
	if err != nil {
		return err
	}
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(conversationID, 10)),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return err
	}
	log.Debug("delivery task enqueued",
		"messageId", messageID, "conversationId", conversationID,
		"partition", partition, "offset", offset)
	return nil
}

func (p *DeliveryProducer) Close() error {
	return p.producer.Close()
}
