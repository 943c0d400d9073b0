package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/payment_processor/service"
	"github.com/pi-escrow-ledger/internal/platform/messaging/producers"
)

// ConfirmationHandler settles ledger confirmations read from Kafka.
type ConfirmationHandler struct {
	processor service.ConfirmationProcessor
	producer  producers.DeadLetterPublisher
	logger    *slog.Logger
}

// NewConfirmationHandler creates a new handler. producer may be nil when no
// DLQ is configured.
func NewConfirmationHandler(
	logger *slog.Logger,
	processor service.ConfirmationProcessor,
	producer producers.DeadLetterPublisher,
) *ConfirmationHandler {
	return &ConfirmationHandler{
		processor: processor,
		producer:  producer,
		logger:    logger,
	}
}

// HandleMessage processes one confirmation. Returning nil commits the offset:
// settled confirmations, business rejections and undecodable messages are all
// final. Infrastructure failures are returned so the message is redelivered.
func (h *ConfirmationHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var confirmation shared.PaymentConfirmation
	if err := json.Unmarshal(value, &confirmation); err != nil {
		return h.deadLetter(ctx, h.logger, key, value, "Failed to unmarshal payment confirmation", err)
	}
	if confirmation.PaymentID == uuid.Nil || confirmation.ExternalTxID == "" {
		return h.deadLetter(ctx, h.logger, key, value, "Payment confirmation is incomplete",
			errors.New("payment_id and external_tx_id are required"))
	}

	logger := h.logger
	if confirmation.CorrelationID != "" {
		logger = h.logger.With("correlation_id", confirmation.CorrelationID)
	}
	logger = logger.With("payment_id", confirmation.PaymentID.String(), "external_tx_id", confirmation.ExternalTxID)

	logger.Info("Received payment confirmation")

	p, err := h.processor.ProcessPayment(ctx, confirmation.PaymentID, confirmation.ExternalTxID)
	if err != nil {
		if shared.IsBusinessError(err) {
			logger.Warn("Payment confirmation rejected", "code", shared.CodeOf(err), "error", err)
			return h.deadLetter(ctx, logger, key, value, "Payment confirmation rejected", err)
		}
		logger.Error("Failed to process payment confirmation", "error", err)
		return fmt.Errorf("processing confirmation for payment %s failed: %w", confirmation.PaymentID, err)
	}

	logger.Info("Payment confirmation processed", "status", p.Status)
	return nil
}

// deadLetter parks a message that will never succeed. A disabled DLQ
// drops it after logging; a failing DLQ leaves it for redelivery.
func (h *ConfirmationHandler) deadLetter(ctx context.Context, logger *slog.Logger, key, value []byte, msg string, cause error) error {
	reason := fmt.Sprintf("%s: %s", msg, cause.Error())
	logger.Error(msg, "error", cause, "message_key", string(key))

	if h.producer == nil {
		logger.Warn("No DLQ configured, dropping message", "message_key", string(key))
		return nil
	}

	if err := h.producer.PublishToDLQ(ctx, string(key), value, reason); err != nil {
		if errors.Is(err, producers.ErrDLQDisabled) {
			logger.Warn("No DLQ configured, dropping message", "message_key", string(key))
			return nil
		}
		logger.Error("Failed to publish message to DLQ",
			"dlq_error", err,
			"original_error", cause,
			"message_key", string(key),
		)
		return fmt.Errorf("failed to dead-letter message %s: %w", string(key), err)
	}

	logger.Info("Published message to DLQ", "message_key", string(key), "reason", reason)
	return nil
}
