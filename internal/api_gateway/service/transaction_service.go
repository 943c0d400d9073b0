package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pi-escrow-ledger/internal/domain/transaction"
)

// TransactionServiceImpl implements the TransactionService interface
type TransactionServiceImpl struct {
	ledger   LedgerReader
	payments PaymentReader
	logger   *slog.Logger
}

// NewTransactionService creates a new transaction service
func NewTransactionService(logger *slog.Logger, ledger LedgerReader, payments PaymentReader) TransactionService {
	return &TransactionServiceImpl{
		ledger:   ledger,
		payments: payments,
		logger:   logger,
	}
}

func (s *TransactionServiceImpl) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*transaction.Transaction, error) {
	tx, err := s.ledger.GetTransaction(ctx, transactionID)
	if err != nil {
		s.logger.Info("Failed to get transaction", "transaction_id", transactionID.String(), "error", err)
		return nil, err
	}
	return tx, nil
}

// ListByPayment returns the payment's transactions, oldest first. Records
// are written asynchronously, so a known payment may have none yet.
func (s *TransactionServiceImpl) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*transaction.Transaction, error) {
	if _, err := s.payments.GetPayment(ctx, paymentID); err != nil {
		return nil, err
	}

	txs, err := s.ledger.ListByPayment(ctx, paymentID)
	if err != nil {
		s.logger.Error("Failed to list transactions", "payment_id", paymentID.String(), "error", err)
		return nil, err
	}
	return txs, nil
}

// GetReport exports one transaction for the regulator.
func (s *TransactionServiceImpl) GetReport(ctx context.Context, transactionID uuid.UUID) (transaction.Report, error) {
	report, err := s.ledger.GenerateRegulatoryReport(ctx, transactionID)
	if err != nil {
		return transaction.Report{}, err
	}
	s.logger.Info("Regulatory report generated", "transaction_id", transactionID.String(), "category", report.Category)
	return report, nil
}
