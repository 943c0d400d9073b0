package producers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pi-escrow-ledger/internal/config"
)

// ErrDLQDisabled is returned by a producer built without a DLQ topic.
var ErrDLQDisabled = errors.New("DLQ producer not initialized")

// DLQProducer parks messages the confirmation consumer could not settle.
type DLQProducer struct {
	logger      *slog.Logger
	writer      KafkaWriter
	dlqTopic    string
	sourceTopic string
	now         func() time.Time
}

type dlqEnvelope struct {
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
	SourceTopic   string `json:"source_topic"`
	DLQReason     string `json:"dlq_reason"`
	Timestamp     string `json:"timestamp"`
}

// NewDLQProducer returns nil when cfg.DLQTopic is empty.
func NewDLQProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*DLQProducer, error) {
	if cfg.DLQTopic == "" {
		logger.Info("DLQ topic is not configured. DLQProducer will not be initialized.")
		return nil, nil
	}

	writer, err := openTopicWriter(ctx, logger, cfg, cfg.DLQTopic)
	if err != nil {
		return nil, err
	}

	return newDLQProducer(logger, writer, cfg.DLQTopic, cfg.ConfirmationTopic), nil
}

func newDLQProducer(logger *slog.Logger, writer KafkaWriter, dlqTopic, sourceTopic string) *DLQProducer {
	return &DLQProducer{
		logger:      logger,
		writer:      writer,
		dlqTopic:    dlqTopic,
		sourceTopic: sourceTopic,
		now:         time.Now,
	}
}

func (p *DLQProducer) PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error {
	if p == nil || p.writer == nil {
		return ErrDLQDisabled
	}

	value, err := json.Marshal(dlqEnvelope{
		OriginalKey:   key,
		OriginalValue: string(originalMessageValue),
		SourceTopic:   p.sourceTopic,
		DLQReason:     reason,
		Timestamp:     p.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "dlq-reason", Value: []byte(reason)},
			{Key: "dlq-source-topic", Value: []byte(p.sourceTopic)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish message to DLQ",
			"topic", p.dlqTopic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to DLQ %s: %w", p.dlqTopic, err)
	}

	p.logger.Info("Published message to DLQ",
		"topic", p.dlqTopic,
		"key", key,
		"reason", reason,
	)
	return nil
}

func (p *DLQProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	p.logger.Info("Closing DLQ Kafka message producer", "topic", p.dlqTopic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close dlq kafka writer for topic %s: %w", p.dlqTopic, err)
	}
	return nil
}
