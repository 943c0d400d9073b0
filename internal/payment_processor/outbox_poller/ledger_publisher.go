package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pi-escrow-ledger/internal/domain/outbox"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/payment_processor/service"
)

// ErrPoisonMessage marks a message that can never be applied. The publisher
// has already moved it to FAILED_TO_PUBLISH.
var ErrPoisonMessage = errors.New("outbox message cannot be applied")

// LedgerPublisher applies outbox instructions to the transaction ledger
type LedgerPublisher interface {
	PublishToLedger(ctx context.Context, message *outbox.Message) error
}

// LedgerPublisherImpl implements LedgerPublisher
type LedgerPublisherImpl struct {
	outboxRepo outbox.Repository
	ledger     service.TransactionLedger
	logger     *slog.Logger
}

// NewLedgerPublisher creates a new publisher
func NewLedgerPublisher(
	outboxRepo outbox.Repository,
	ledger service.TransactionLedger,
	logger *slog.Logger,
) *LedgerPublisherImpl {
	return &LedgerPublisherImpl{
		outboxRepo: outboxRepo,
		ledger:     ledger,
		logger:     logger,
	}
}

// PublishToLedger applies one instruction and marks the message PROCESSED.
// Applying the same message twice leaves the ledger unchanged.
func (p *LedgerPublisherImpl) PublishToLedger(ctx context.Context, message *outbox.Message) error {
	logger := p.logger.With("outbox_id", message.ID, "payment_id", message.PaymentID.String())

	if message.Payload == nil {
		logger.Error("Outbox payload could not be decrypted")
		return p.poison(ctx, logger, message, shared.DecryptionFailedError{Reason: "outbox payload"})
	}

	instruction, err := message.GetInstruction()
	if err != nil {
		logger.Error("Failed to decode ledger instruction from outbox payload", "error", err)
		return p.poison(ctx, logger, message, err)
	}

	switch instruction.Kind {
	case outbox.KindRecordTransaction:
		record, err := p.ledger.CreateTransaction(ctx, *instruction.Record)
		if err != nil {
			if shared.IsBusinessError(err) {
				logger.Error("Ledger rejected transaction record", "transaction_id", instruction.Record.ID.String(), "error", err)
				return p.poison(ctx, logger, message, err)
			}
			return fmt.Errorf("failed to record transaction %s: %w", instruction.Record.ID, err)
		}
		logger.Info("Transaction recorded from outbox", "transaction_id", record.ID.String(), "type", record.Type)

	case outbox.KindAppendAudit:
		// NotFound is retried: the record may still be ahead of us in a retry.
		if err := p.ledger.AppendAudit(ctx, instruction.TransactionID, *instruction.Entry); err != nil {
			return fmt.Errorf("failed to append audit entry to transaction %s: %w", instruction.TransactionID, err)
		}
		logger.Info("Audit entry applied from outbox", "transaction_id", instruction.TransactionID.String(), "action", instruction.Entry.Action)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Failed to update outbox message status to PROCESSED", "error", err)
		return fmt.Errorf("ledger write OK, but failed to mark outbox %d as PROCESSED: %w", message.ID, err)
	}

	logger.Info("Outbox message processed and marked as PROCESSED", "kind", message.Kind)
	return nil
}

func (p *LedgerPublisherImpl) poison(ctx context.Context, logger *slog.Logger, message *outbox.Message, cause error) error {
	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); err != nil {
		logger.Error("Also failed to update outbox status to FAILED_TO_PUBLISH", "update_error", err)
		return fmt.Errorf("outbox %d: %w", message.ID, cause)
	}
	return fmt.Errorf("%w: outbox %d: %w", ErrPoisonMessage, message.ID, cause)
}
