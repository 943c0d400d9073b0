package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pi-escrow-ledger/internal/domain/transaction"
)

// TransactionLedgerImpl records business events. Records are immutable once
// created; only the audit trail and the archival fields change afterwards.
type TransactionLedgerImpl struct {
	txRepo     transaction.Repository
	thresholds transaction.CategoryThresholds
	logger     *slog.Logger
}

func NewTransactionLedger(txRepo transaction.Repository, thresholds transaction.CategoryThresholds, logger *slog.Logger) *TransactionLedgerImpl {
	return &TransactionLedgerImpl{
		txRepo:     txRepo,
		thresholds: thresholds,
		logger:     logger,
	}
}

// CreateTransaction classifies and stores the record. Recording an id that
// already exists returns the stored record.
func (l *TransactionLedgerImpl) CreateTransaction(ctx context.Context, req transaction.CreateRequest) (*transaction.Transaction, error) {
	record, err := transaction.New(req, l.thresholds)
	if err != nil {
		return nil, err
	}

	if err := l.txRepo.Create(ctx, record); err != nil {
		if errors.Is(err, transaction.ErrDuplicateTransaction{TransactionID: record.ID}) {
			l.logger.Info("Transaction already recorded", "transaction_id", record.ID.String(), "payment_id", record.PaymentID.String())
			return l.txRepo.GetByID(ctx, record.ID)
		}
		l.logger.Error("Failed to record transaction", "transaction_id", record.ID.String(), "error", err)
		return nil, fmt.Errorf("failed to record transaction %s: %w", record.ID, err)
	}

	l.logger.Info("Transaction recorded",
		"transaction_id", record.ID.String(),
		"payment_id", record.PaymentID.String(),
		"type", record.Type,
		"category", record.Metadata.RegulatoryCategory,
	)
	return record, nil
}

// AppendAudit adds entry to the trail once.
func (l *TransactionLedgerImpl) AppendAudit(ctx context.Context, transactionID uuid.UUID, entry transaction.AuditEntry) error {
	if err := l.txRepo.AppendAudit(ctx, transactionID, entry); err != nil {
		return err
	}
	l.logger.Debug("Audit entry appended", "transaction_id", transactionID.String(), "action", entry.Action)
	return nil
}

func (l *TransactionLedgerImpl) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*transaction.Transaction, error) {
	return l.txRepo.GetByID(ctx, transactionID)
}

func (l *TransactionLedgerImpl) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*transaction.Transaction, error) {
	return l.txRepo.ListByPaymentID(ctx, paymentID)
}

// GenerateRegulatoryReport exports one transaction for compliance.
func (l *TransactionLedgerImpl) GenerateRegulatoryReport(ctx context.Context, transactionID uuid.UUID) (transaction.Report, error) {
	record, err := l.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		return transaction.Report{}, err
	}
	return transaction.BuildReport(record), nil
}

// ArchiveTransaction sets the archival fields; the repository writes the
// ARCHIVED audit entry in the same update. It reports false when the record
// was already archived.
func (l *TransactionLedgerImpl) ArchiveTransaction(ctx context.Context, transactionID uuid.UUID, now time.Time) (bool, error) {
	archived, err := l.txRepo.MarkArchived(ctx, transactionID, now)
	if err != nil {
		return false, fmt.Errorf("failed to archive %s: %w", transactionID, err)
	}
	if archived {
		l.logger.Info("Transaction archived", "transaction_id", transactionID.String())
	}
	return archived, nil
}
