package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pi-escrow-ledger/internal/domain/shared"
)

// ConfirmationServiceImpl implements the ConfirmationService interface
type ConfirmationServiceImpl struct {
	payments PaymentReader
	queue    ConfirmationQueue
	clock    shared.Clock
	logger   *slog.Logger
}

// NewConfirmationService creates a new confirmation service
func NewConfirmationService(logger *slog.Logger, payments PaymentReader, queue ConfirmationQueue, clock shared.Clock) ConfirmationService {
	return &ConfirmationServiceImpl{
		payments: payments,
		queue:    queue,
		clock:    clock,
		logger:   logger,
	}
}

// EnqueueConfirmation checks the payment exists and publishes the
// confirmation keyed by payment id, so confirmations of one payment are
// consumed in order.
func (s *ConfirmationServiceImpl) EnqueueConfirmation(ctx context.Context, paymentID uuid.UUID, externalTxID, correlationID string) (shared.PaymentConfirmation, error) {
	if externalTxID == "" {
		return shared.PaymentConfirmation{}, shared.ValidationError{Code: shared.CodeInvalidRequest, Message: "external_tx_id is required"}
	}

	if _, err := s.payments.GetPayment(ctx, paymentID); err != nil {
		return shared.PaymentConfirmation{}, err
	}

	confirmation := shared.PaymentConfirmation{
		PaymentID:     paymentID,
		ExternalTxID:  externalTxID,
		CorrelationID: correlationID,
		ReceivedAt:    s.clock.Now(),
	}

	if err := s.queue.Enqueue(ctx, confirmation); err != nil {
		s.logger.Error("Failed to publish payment confirmation",
			"payment_id", paymentID.String(),
			"external_tx_id", externalTxID,
			"error", err,
		)
		return shared.PaymentConfirmation{}, shared.ExternalServiceError{Service: "confirmation_queue", Err: err}
	}

	s.logger.Info("Payment confirmation published",
		"payment_id", paymentID.String(),
		"external_tx_id", externalTxID,
	)
	return confirmation, nil
}
