// Package escrow_resumer retries escrow creation for payments that settled
// while the trading window was closed.
package escrow_resumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/pi-escrow-ledger/internal/config"
	"github.com/pi-escrow-ledger/internal/domain/payment"
)

// PendingLister lists payments by status.
type PendingLister interface {
	ListByStatus(ctx context.Context, status payment.Status, limit int) ([]*payment.Payment, error)
}

// Processor re-runs a confirmation. For an ESCROW_PENDING payment it only
// attempts escrow creation.
type Processor interface {
	ProcessPayment(ctx context.Context, paymentID uuid.UUID, externalTxID string) (*payment.Payment, error)
}

// ResumeResult summarises one pass.
type ResumeResult struct {
	Scanned  int
	Locked   int
	Deferred int
}

// Resumer periodically locks escrow for ESCROW_PENDING payments. Replicas may
// run it concurrently; the payment version check lets only one of them win.
type Resumer struct {
	payments  PendingLister
	processor Processor
	cfg       config.EscrowConfig
	logger    *slog.Logger
}

func NewResumer(payments PendingLister, processor Processor, cfg config.EscrowConfig, logger *slog.Logger) *Resumer {
	return &Resumer{
		payments:  payments,
		processor: processor,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start runs a pass every ResumeInterval until ctx is done.
func (r *Resumer) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ResumeInterval)
	defer ticker.Stop()

	r.logger.Info("Starting escrow resumer", "interval", r.cfg.ResumeInterval, "batch_size", r.cfg.ResumeBatchSize)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Escrow resumer stopped")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("Escrow resume pass failed", "error", err)
			}
		}
	}
}

// RunOnce retries one batch of ESCROW_PENDING payments. Payments still gated
// by the trading window come back unchanged and are counted as deferred.
func (r *Resumer) RunOnce(ctx context.Context) (ResumeResult, error) {
	var (
		result ResumeResult
		errs   *multierror.Error
	)

	pending, err := r.payments.ListByStatus(ctx, payment.StatusEscrowPending, r.cfg.ResumeBatchSize)
	if err != nil {
		return result, fmt.Errorf("failed to list escrow pending payments: %w", err)
	}

	for _, p := range pending {
		result.Scanned++
		if ctx.Err() != nil {
			errs = multierror.Append(errs, ctx.Err())
			break
		}

		got, err := r.processor.ProcessPayment(ctx, p.ID, p.ExternalTxID)
		if err != nil {
			r.logger.Error("Failed to resume escrow", "payment_id", p.ID.String(), "error", err)
			errs = multierror.Append(errs, fmt.Errorf("payment %s: %w", p.ID, err))
			continue
		}
		if got.Status == payment.StatusEscrowPending {
			result.Deferred++
			continue
		}
		result.Locked++
	}

	if result.Scanned > 0 {
		r.logger.Info("Escrow resume pass completed",
			"scanned", result.Scanned,
			"locked", result.Locked,
			"deferred", result.Deferred,
		)
	}
	return result, errs.ErrorOrNil()
}
