package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/pi-escrow-ledger/internal/config"
)

// TopicProducer publishes JSON messages to one topic. Writes are
// synchronous: a nil error means the brokers acknowledged the message.
type TopicProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// NewTopicProducer ensures topic exists and opens a writer for it.
func NewTopicProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig, topic string) (*TopicProducer, error) {
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is not configured")
	}

	writer, err := openTopicWriter(ctx, logger, cfg, topic)
	if err != nil {
		return nil, err
	}

	return newTopicProducer(logger, writer, topic), nil
}

func newTopicProducer(logger *slog.Logger, writer KafkaWriter, topic string) *TopicProducer {
	return &TopicProducer{logger: logger, writer: writer, topic: topic}
}

func (p *TopicProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", p.topic, err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish message",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published message", "topic", p.topic, "key", key)
	return nil
}

func (p *TopicProducer) Close() error {
	p.logger.Info("Closing Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
