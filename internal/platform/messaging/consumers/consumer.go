package consumers

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pi-escrow-ledger/internal/config"
)

// MessageHandler processes one message. A non-nil error leaves the offset
// uncommitted so the message is redelivered.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer defines the message queue consumer interface
type Consumer interface {
	Subscribe(ctx context.Context, handler MessageHandler) error
	Close() error
}

// KafkaReader wraps kafka.Reader methods for testing
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads the payment confirmation topic as part of a consumer group.
type KafkaConsumer struct {
	reader     KafkaReader
	logger     *slog.Logger
	topic      string
	groupID    string
	retryDelay time.Duration
}

func NewKafkaConsumer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig) *KafkaConsumer {
	startOffset := cfg.StartOffset
	if startOffset == 0 {
		startOffset = kafka.FirstOffset
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{cfg.Brokers},
		Topic:       cfg.ConfirmationTopic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
		StartOffset: startOffset,
	})
	return newKafkaConsumer(logger, reader, cfg.ConfirmationTopic, cfg.ConsumerGroup)
}

func newKafkaConsumer(logger *slog.Logger, reader KafkaReader, topic, groupID string) *KafkaConsumer {
	return &KafkaConsumer{
		reader:     reader,
		logger:     logger,
		topic:      topic,
		groupID:    groupID,
		retryDelay: time.Second,
	}
}

// Subscribe starts consuming in the background until ctx is cancelled.
func (c *KafkaConsumer) Subscribe(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Subscribed to Kafka topic",
		"topic", c.topic,
		"group_id", c.groupID,
	)

	go c.consume(ctx, handler)
	return nil
}

func (c *KafkaConsumer) consume(ctx context.Context, handler MessageHandler) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Context canceled, stopping consumer", "topic", c.topic, "group_id", c.groupID)
				return
			}
			c.logger.Error("Failed to fetch message from Kafka",
				"topic", c.topic,
				"group_id", c.groupID,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}
			continue
		}

		c.logger.Debug("Received message from Kafka",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
		)

		if !c.handle(ctx, handler, msg) {
			return
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit message after successful processing",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// handle redelivers msg until the handler accepts it. It returns false when
// ctx ends first; the offset then stays uncommitted.
func (c *KafkaConsumer) handle(ctx context.Context, handler MessageHandler, msg kafka.Message) bool {
	for {
		err := handler(ctx, msg.Key, msg.Value)
		if err == nil {
			return true
		}
		c.logger.Error("Failed to process message, will not commit offset",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
