package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pi-escrow-ledger/internal/domain/payment"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/platform/messaging/producers"
)

type MockConfirmationProcessor struct {
	mock.Mock
}

func (m *MockConfirmationProcessor) ProcessPayment(ctx context.Context, paymentID uuid.UUID, externalTxID string) (*payment.Payment, error) {
	args := m.Called(ctx, paymentID, externalTxID)
	p, _ := args.Get(0).(*payment.Payment)
	return p, args.Error(1)
}

type MockDeadLetterPublisher struct {
	mock.Mock
}

func (m *MockDeadLetterPublisher) PublishToDLQ(ctx context.Context, key string, value []byte, reason string) error {
	return m.Called(ctx, key, value, reason).Error(0)
}

func (m *MockDeadLetterPublisher) Close() error {
	return m.Called().Error(0)
}

func TestConfirmationHandler_HandleMessage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	paymentID := uuid.New()

	valid, err := json.Marshal(shared.PaymentConfirmation{
		PaymentID:     paymentID,
		ExternalTxID:  "tx-1",
		CorrelationID: "corr-1",
	})
	require.NoError(t, err)
	incomplete, err := json.Marshal(shared.PaymentConfirmation{PaymentID: paymentID})
	require.NoError(t, err)

	tests := []struct {
		name       string
		value      []byte
		setupMocks func(processor *MockConfirmationProcessor, dlq *MockDeadLetterPublisher)
		wantErr    bool
	}{
		{
			name:  "settles confirmation",
			value: valid,
			setupMocks: func(processor *MockConfirmationProcessor, _ *MockDeadLetterPublisher) {
				processor.On("ProcessPayment", mock.Anything, paymentID, "tx-1").
					Return(&payment.Payment{ID: paymentID, Status: payment.StatusCompleted}, nil)
			},
		},
		{
			name:  "escrow deferred by trading window is acknowledged without DLQ",
			value: valid,
			setupMocks: func(processor *MockConfirmationProcessor, _ *MockDeadLetterPublisher) {
				processor.On("ProcessPayment", mock.Anything, paymentID, "tx-1").
					Return(&payment.Payment{ID: paymentID, Status: payment.StatusEscrowPending, ExternalTxID: "tx-1"}, nil)
			},
		},
		{
			name:  "undecodable message goes to DLQ",
			value: []byte("{not json"),
			setupMocks: func(_ *MockConfirmationProcessor, dlq *MockDeadLetterPublisher) {
				dlq.On("PublishToDLQ", mock.Anything, "key-1", []byte("{not json"), mock.MatchedBy(func(reason string) bool {
					return strings.HasPrefix(reason, "Failed to unmarshal payment confirmation")
				})).Return(nil)
			},
		},
		{
			name:  "incomplete message goes to DLQ",
			value: incomplete,
			setupMocks: func(_ *MockConfirmationProcessor, dlq *MockDeadLetterPublisher) {
				dlq.On("PublishToDLQ", mock.Anything, "key-1", incomplete, mock.Anything).Return(nil)
			},
		},
		{
			name:  "amount mismatch is acknowledged and parked",
			value: valid,
			setupMocks: func(processor *MockConfirmationProcessor, dlq *MockDeadLetterPublisher) {
				processor.On("ProcessPayment", mock.Anything, paymentID, "tx-1").
					Return(nil, shared.AmountMismatchError{PaymentID: paymentID})
				dlq.On("PublishToDLQ", mock.Anything, "key-1", valid, mock.Anything).Return(nil)
			},
		},
		{
			name:  "invalid transition is acknowledged and parked",
			value: valid,
			setupMocks: func(processor *MockConfirmationProcessor, dlq *MockDeadLetterPublisher) {
				processor.On("ProcessPayment", mock.Anything, paymentID, "tx-1").
					Return(nil, shared.InvalidStateTransitionError{Entity: "payment", From: "FAILED", To: "COMPLETED"})
				dlq.On("PublishToDLQ", mock.Anything, "key-1", valid, mock.Anything).Return(nil)
			},
		},
		{
			name:  "ledger outage is redelivered",
			value: valid,
			setupMocks: func(processor *MockConfirmationProcessor, _ *MockDeadLetterPublisher) {
				processor.On("ProcessPayment", mock.Anything, paymentID, "tx-1").
					Return(nil, shared.ExternalServiceError{Service: "pi-ledger"})
			},
			wantErr: true,
		},
		{
			name:  "version conflict is redelivered",
			value: valid,
			setupMocks: func(processor *MockConfirmationProcessor, _ *MockDeadLetterPublisher) {
				processor.On("ProcessPayment", mock.Anything, paymentID, "tx-1").
					Return(nil, shared.ConcurrencyConflictError{Entity: "payment", ID: paymentID})
			},
			wantErr: true,
		},
		{
			name:  "failing DLQ leaves message for redelivery",
			value: []byte("garbage"),
			setupMocks: func(_ *MockConfirmationProcessor, dlq *MockDeadLetterPublisher) {
				dlq.On("PublishToDLQ", mock.Anything, "key-1", mock.Anything, mock.Anything).Return(errors.New("broker down"))
			},
			wantErr: true,
		},
		{
			name:  "disabled DLQ drops message",
			value: []byte("garbage"),
			setupMocks: func(_ *MockConfirmationProcessor, dlq *MockDeadLetterPublisher) {
				dlq.On("PublishToDLQ", mock.Anything, "key-1", mock.Anything, mock.Anything).Return(producers.ErrDLQDisabled)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := &MockConfirmationProcessor{}
			dlq := &MockDeadLetterPublisher{}
			tt.setupMocks(processor, dlq)
			handler := NewConfirmationHandler(logger, processor, dlq)

			err := handler.HandleMessage(context.Background(), []byte("key-1"), tt.value)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			processor.AssertExpectations(t)
			dlq.AssertExpectations(t)
		})
	}

	t.Run("nil DLQ producer", func(t *testing.T) {
		handler := NewConfirmationHandler(logger, &MockConfirmationProcessor{}, nil)
		assert.NoError(t, handler.HandleMessage(context.Background(), []byte("k"), []byte("garbage")))
	})
}
