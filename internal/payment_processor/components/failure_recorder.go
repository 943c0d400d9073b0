package components

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/pi-escrow-ledger/internal/domain/payment"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/domain/transaction"
	"github.com/pi-escrow-ledger/internal/payment_processor/service"
)

type FailureRecorderImpl struct {
	db            service.TxRunner
	paymentRepo   payment.Repository
	outboxManager service.OutboxManager
	clock         shared.Clock
	logger        *slog.Logger
}

func NewFailureRecorder(db service.TxRunner, paymentRepo payment.Repository, outboxManager service.OutboxManager, clock shared.Clock, logger *slog.Logger) *FailureRecorderImpl {
	return &FailureRecorderImpl{
		db:            db,
		paymentRepo:   paymentRepo,
		outboxManager: outboxManager,
		clock:         clock,
		logger:        logger,
	}
}

// RecordFailure moves p to FAILED and records the failed purchase
func (r *FailureRecorderImpl) RecordFailure(ctx context.Context, p *payment.Payment, failureReason string) error {
	logger := r.logger.With("payment_id", p.ID.String())

	if p.Status == payment.StatusFailed {
		logger.Info("Payment already marked as FAILED")
		return nil
	}

	logger.Info("Recording failed payment", "reason", failureReason)

	now := r.clock.Now()
	expected := p.Version
	if err := p.TransitionTo(payment.StatusFailed, now); err != nil {
		logger.Error("Payment cannot be marked FAILED", "status", p.Status, "error", err)
		return err
	}

	record := transaction.RequestForPayment(p, transaction.TypePurchase, transaction.DiscriminatorFailed, transaction.SystemActor, now)
	record.Details = transaction.PurchaseDetailsFor(p)
	record.ExternalLedgerRef = p.ExternalLedgerRef
	record.Notes = failureReason

	err := r.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := r.paymentRepo.WithTx(tx).Update(ctx, p, expected); err != nil {
			return err
		}
		return r.outboxManager.RecordTransaction(ctx, tx, record)
	})
	if err != nil {
		logger.Error("Failed to record payment failure", "error", err)
		return err
	}

	logger.Info("Payment marked as FAILED")
	return nil
}
