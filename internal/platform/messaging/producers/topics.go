package producers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"github.com/pi-escrow-ledger/internal/config"
)

const topicLookupAttempts = 5

// topicAdmin is the part of *kafka.Conn used to bootstrap topics.
type topicAdmin interface {
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	CreateTopics(topics ...kafka.TopicConfig) error
}

// openTopicWriter makes sure topic exists and returns a synchronous writer
// for it. Messages are hashed by key so a payment's messages share a partition.
func openTopicWriter(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig, topic string) (*kafka.Writer, error) {
	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for %s: %w", topic, err)
	}
	defer conn.Close()

	topicCfg := kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
	if err := ensureTopic(ctx, conn, topicCfg, time.Second, logger); err != nil {
		return nil, err
	}

	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.MaxWait,
	}, nil
}

// ensureTopic creates the topic unless the broker already reports partitions
// for it. Transient read failures are retried; an unknown topic is not.
func ensureTopic(ctx context.Context, admin topicAdmin, topicCfg kafka.TopicConfig, retryDelay time.Duration, logger *slog.Logger) error {
	log := logger.With("topic", topicCfg.Topic)

	var partitions []kafka.Partition
	lookup := func() error {
		var err error
		partitions, err = admin.ReadPartitions(topicCfg.Topic)
		if errors.Is(err, kafka.UnknownTopicOrPartition) {
			return backoff.Permanent(err)
		}
		if err != nil {
			log.Warn("Failed to read topic partitions", "error", err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryDelay), topicLookupAttempts-1),
		ctx,
	)
	if err := backoff.Retry(lookup, policy); err == nil && len(partitions) > 0 {
		log.Debug("Kafka topic already exists", "partitions", len(partitions))
		return nil
	} else if err != nil {
		log.Info("Kafka topic not readable, creating it", "last_error", err)
	}

	if topicCfg.NumPartitions <= 0 {
		topicCfg.NumPartitions = 1
	}
	if topicCfg.ReplicationFactor <= 0 {
		topicCfg.ReplicationFactor = 1
	}

	if err := admin.CreateTopics(topicCfg); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("failed to create kafka topic %s: %w", topicCfg.Topic, err)
	}
	log.Info("Kafka topic ready",
		"partitions", topicCfg.NumPartitions,
		"replication_factor", topicCfg.ReplicationFactor,
	)
	return nil
}
