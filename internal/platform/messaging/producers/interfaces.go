package producers

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// MessagePublisher writes JSON-encoded values to one Kafka topic. TopicProducer
// implements it; ConfirmationProducer and EscalationProducer publish through it
// to the confirmation and dispute escalation topics.
type MessagePublisher interface {
	Publish(ctx context.Context, key string, value any) error
	Close() error
}

// DeadLetterPublisher parks a confirmation that can never be processed,
// together with the reason. DLQProducer implements it and returns
// ErrDLQDisabled when no DLQ topic is configured.
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, original []byte, reason string) error
	Close() error
}

// KafkaWriter is the subset of *kafka.Writer the producers use.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var (
	_ MessagePublisher    = (*TopicProducer)(nil)
	_ DeadLetterPublisher = (*DLQProducer)(nil)
	_ KafkaWriter         = (*kafka.Writer)(nil)
)
