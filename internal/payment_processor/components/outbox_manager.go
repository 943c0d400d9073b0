package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pi-escrow-ledger/internal/domain/outbox"
	"github.com/pi-escrow-ledger/internal/domain/transaction"
)

type OutboxManagerImpl struct {
	outboxRepo outbox.Repository
	logger     *slog.Logger
}

func NewOutboxManager(outboxRepo outbox.Repository, logger *slog.Logger) *OutboxManagerImpl {
	return &OutboxManagerImpl{
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// RecordTransaction queues the creation of a transaction record
func (m *OutboxManagerImpl) RecordTransaction(ctx context.Context, tx pgx.Tx, req transaction.CreateRequest) error {
	message, err := outbox.NewRecordMessage(req)
	if err != nil {
		m.logger.Error("Failed to create outbox message (marshal payload)", "transaction_id", req.ID.String(), "error", err)
		return fmt.Errorf("failed to create outbox message payload for transaction %s: %w", req.ID, err)
	}
	return m.enqueue(ctx, tx, message, req.ID)
}

// AppendAudit queues an audit entry for an existing transaction record
func (m *OutboxManagerImpl) AppendAudit(ctx context.Context, tx pgx.Tx, paymentID, transactionID uuid.UUID, entry transaction.AuditEntry) error {
	message, err := outbox.NewAuditMessage(paymentID, transactionID, entry)
	if err != nil {
		m.logger.Error("Failed to create outbox message (marshal payload)", "transaction_id", transactionID.String(), "error", err)
		return fmt.Errorf("failed to create audit outbox payload for transaction %s: %w", transactionID, err)
	}
	return m.enqueue(ctx, tx, message, transactionID)
}

func (m *OutboxManagerImpl) enqueue(ctx context.Context, tx pgx.Tx, message *outbox.Message, transactionID uuid.UUID) error {
	if err := m.outboxRepo.WithTx(tx).Create(ctx, message); err != nil {
		m.logger.Error("Failed to create outbox message",
			"transaction_id", transactionID.String(),
			"payment_id", message.PaymentID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to create outbox message for transaction %s: %w", transactionID, err)
	}

	m.logger.Info("Outbox message created",
		"transaction_id", transactionID.String(),
		"kind", message.Kind,
		"outbox_id", message.ID,
	)
	return nil
}
