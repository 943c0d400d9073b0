package producers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockTopicAdmin struct {
	mock.Mock
}

func (m *MockTopicAdmin) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	args := m.Called(topics)
	partitions, _ := args.Get(0).([]kafka.Partition)
	return partitions, args.Error(1)
}

func (m *MockTopicAdmin) CreateTopics(topics ...kafka.TopicConfig) error {
	return m.Called(topics).Error(0)
}

func TestEnsureTopic(t *testing.T) {
	topics := []string{"payment-confirmations"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		topicCfg   kafka.TopicConfig
		setupMocks func(admin *MockTopicAdmin)
		wantErr    string
	}{
		{
			name:     "existing topic is left alone",
			topicCfg: kafka.TopicConfig{Topic: topics[0]},
			setupMocks: func(admin *MockTopicAdmin) {
				admin.On("ReadPartitions", topics).Return([]kafka.Partition{{Topic: topics[0]}}, nil).Once()
			},
		},
		{
			name:     "unknown topic is created with defaults without retrying",
			topicCfg: kafka.TopicConfig{Topic: topics[0]},
			setupMocks: func(admin *MockTopicAdmin) {
				admin.On("ReadPartitions", topics).Return(nil, kafka.UnknownTopicOrPartition).Once()
				admin.On("CreateTopics", []kafka.TopicConfig{{Topic: topics[0], NumPartitions: 1, ReplicationFactor: 1}}).Return(nil).Once()
			},
		},
		{
			name:     "transient read failure is retried",
			topicCfg: kafka.TopicConfig{Topic: topics[0], NumPartitions: 3, ReplicationFactor: 1},
			setupMocks: func(admin *MockTopicAdmin) {
				admin.On("ReadPartitions", topics).Return(nil, errors.New("broker not ready")).Twice()
				admin.On("ReadPartitions", topics).Return([]kafka.Partition{{Topic: topics[0]}}, nil).Once()
			},
		},
		{
			name:     "persistent read failure falls back to creation",
			topicCfg: kafka.TopicConfig{Topic: topics[0], NumPartitions: 3, ReplicationFactor: 2},
			setupMocks: func(admin *MockTopicAdmin) {
				admin.On("ReadPartitions", topics).Return(nil, errors.New("broker not ready")).Times(topicLookupAttempts)
				admin.On("CreateTopics", []kafka.TopicConfig{{Topic: topics[0], NumPartitions: 3, ReplicationFactor: 2}}).Return(nil).Once()
			},
		},
		{
			name:     "topic created concurrently",
			topicCfg: kafka.TopicConfig{Topic: topics[0]},
			setupMocks: func(admin *MockTopicAdmin) {
				admin.On("ReadPartitions", topics).Return(nil, kafka.UnknownTopicOrPartition).Once()
				admin.On("CreateTopics", mock.Anything).Return(kafka.TopicAlreadyExists).Once()
			},
		},
		{
			name:     "creation failure",
			topicCfg: kafka.TopicConfig{Topic: topics[0]},
			setupMocks: func(admin *MockTopicAdmin) {
				admin.On("ReadPartitions", topics).Return(nil, kafka.UnknownTopicOrPartition).Once()
				admin.On("CreateTopics", mock.Anything).Return(errors.New("not authorized")).Once()
			},
			wantErr: "failed to create kafka topic payment-confirmations",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admin := &MockTopicAdmin{}
			tt.setupMocks(admin)

			err := ensureTopic(context.Background(), admin, tt.topicCfg, 0, logger)

			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			admin.AssertExpectations(t)
		})
	}
}
