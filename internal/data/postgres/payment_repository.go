// Package postgres provides PostgreSQL implementations of the domain repositories.
// Status writes are compare-and-swap updates on the version column, and
// sensitive columns pass through the encryption boundary on the way in and out.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pi-escrow-ledger/internal/domain/payment"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/platform/persistence"
	"github.com/pi-escrow-ledger/internal/security"
	"github.com/shopspring/decimal"
)

const paymentColumns = `id, amount::text, amount_egp::text, status, buyer_id, seller_id, listing_id, escrow_id,
		COALESCE(external_ledger_ref, ''), COALESCE(external_tx_id, ''), escrow_release_date,
		COALESCE(dispute_reason, ''), COALESCE(tax_id, ''), COALESCE(merchant_verification_id, ''),
		timezone, completed_at, created_at, updated_at, version`

// PaymentRepository implements the payment.Repository interface for PostgreSQL
type PaymentRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	cipher  security.Cipher
	logger  *slog.Logger
}

// NewPaymentRepository creates a new PostgreSQL payment repository.
func NewPaymentRepository(logger *slog.Logger, db *persistence.PostgresDB, cipher security.Cipher) payment.Repository {
	return &PaymentRepository{
		querier: db.Pool(),
		cipher:  cipher,
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx so that payment writes commit
// atomically with escrow and outbox writes.
func (r *PaymentRepository) WithTx(tx pgx.Tx) payment.Repository {
	return &PaymentRepository{
		querier: tx,
		cipher:  r.cipher,
		logger:  r.logger,
	}
}

// Create stores a new payment.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	ledgerRef, err := r.sealLedgerRef(p.ExternalLedgerRef)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payments (id, amount, amount_egp, status, buyer_id, seller_id, listing_id, escrow_id,
			external_ledger_ref, external_tx_id, escrow_release_date, dispute_reason, tax_id,
			merchant_verification_id, timezone, completed_at, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, NULLIF($12, ''),
			NULLIF($13, ''), NULLIF($14, ''), $15, $16, $17, $18, $19)
	`

	_, err = r.querier.Exec(ctx, query,
		p.ID,
		p.Amount.String(),
		p.AmountEGP.String(),
		p.Status,
		p.BuyerID,
		p.SellerID,
		p.ListingID,
		p.EscrowID,
		ledgerRef,
		p.ExternalTxID,
		p.EscrowReleaseDate,
		p.DisputeReason,
		p.TaxID,
		p.MerchantVerificationID,
		p.Timezone,
		p.CompletedAt,
		p.CreatedAt,
		p.UpdatedAt,
		p.Version,
	)
	if err != nil {
		r.logger.Error("Failed to create payment", "payment_id", p.ID.String(), "error", err)
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// GetByID retrieves a payment by its ID
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE id = $1
	`

	p, err := r.scanPayment(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFoundError{Resource: "payment", ID: id.String()}
		}
		r.logger.Error("Failed to get payment", "payment_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return p, nil
}

// GetByExternalTxID retrieves the payment settled by a ledger transaction.
func (r *PaymentRepository) GetByExternalTxID(ctx context.Context, externalTxID string) (*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE external_tx_id = $1
	`

	p, err := r.scanPayment(r.querier.QueryRow(ctx, query, externalTxID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFoundError{Resource: "payment", ID: externalTxID}
		}
		r.logger.Error("Failed to get payment by external tx", "external_tx_id", externalTxID, "error", err)
		return nil, fmt.Errorf("failed to get payment by external tx: %w", err)
	}

	return p, nil
}

// Update writes the mutable payment fields if the stored version still equals
// expectedVersion. Amount is never written after creation.
func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment, expectedVersion int) error {
	ledgerRef, err := r.sealLedgerRef(p.ExternalLedgerRef)
	if err != nil {
		return err
	}

	query := `
		UPDATE payments
		SET status = $1, escrow_id = $2, external_ledger_ref = NULLIF($3, ''), external_tx_id = NULLIF($4, ''),
			escrow_release_date = $5, dispute_reason = NULLIF($6, ''), completed_at = $7, updated_at = $8, version = $9
		WHERE id = $10 AND version = $11
	`

	result, err := r.querier.Exec(ctx, query,
		p.Status,
		p.EscrowID,
		ledgerRef,
		p.ExternalTxID,
		p.EscrowReleaseDate,
		p.DisputeReason,
		p.CompletedAt,
		p.UpdatedAt,
		p.Version,
		p.ID,
		expectedVersion,
	)
	if err != nil {
		if isUniqueViolation(err, "payments_external_tx_id_key") {
			return shared.ValidationError{Code: shared.CodeInvalidRequest, Message: "ledger transaction already settles another payment"}
		}
		r.logger.Error("Failed to update payment", "payment_id", p.ID.String(), "error", err)
		return fmt.Errorf("failed to update payment: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ConcurrencyConflictError{Entity: "payment", ID: p.ID, ExpectedVersion: expectedVersion}
	}

	return nil
}

// ListByStatus returns up to limit payments in status, oldest update first.
func (r *PaymentRepository) ListByStatus(ctx context.Context, status payment.Status, limit int) ([]*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = $1
		ORDER BY updated_at ASC, id ASC
		LIMIT $2
	`

	rows, err := r.querier.Query(ctx, query, status, limit)
	if err != nil {
		r.logger.Error("Failed to list payments", "status", status, "error", err)
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*payment.Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			r.logger.Error("Failed to scan payment", "status", status, "error", err)
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}

	return payments, nil
}

// SumBuyerAmountSince totals the buyer's non-failed, non-cancelled payments created at or after since.
func (r *PaymentRepository) SumBuyerAmountSince(ctx context.Context, buyerID string, since time.Time) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)::text
		FROM payments
		WHERE buyer_id = $1 AND created_at >= $2 AND status NOT IN ($3, $4)
	`

	var total string
	err := r.querier.QueryRow(ctx, query, buyerID, since, payment.StatusFailed, payment.StatusCancelled).Scan(&total)
	if err != nil {
		r.logger.Error("Failed to sum buyer payments", "buyer_id", buyerID, "error", err)
		return decimal.Zero, fmt.Errorf("failed to sum buyer payments: %w", err)
	}

	sum, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid payment total %q: %w", total, err)
	}
	return sum, nil
}

func (r *PaymentRepository) scanPayment(row pgx.Row) (*payment.Payment, error) {
	var (
		p                 payment.Payment
		amount, amountEGP string
		sealedRef         string
	)
	err := row.Scan(
		&p.ID,
		&amount,
		&amountEGP,
		&p.Status,
		&p.BuyerID,
		&p.SellerID,
		&p.ListingID,
		&p.EscrowID,
		&sealedRef,
		&p.ExternalTxID,
		&p.EscrowReleaseDate,
		&p.DisputeReason,
		&p.TaxID,
		&p.MerchantVerificationID,
		&p.Timezone,
		&p.CompletedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Version,
	)
	if err != nil {
		return nil, err
	}

	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid payment amount %q: %w", amount, err)
	}
	if p.AmountEGP, err = decimal.NewFromString(amountEGP); err != nil {
		return nil, fmt.Errorf("invalid payment EGP amount %q: %w", amountEGP, err)
	}
	if sealedRef != "" {
		if p.ExternalLedgerRef, err = r.cipher.DecryptString(sealedRef); err != nil {
			return nil, err
		}
	}

	return &p, nil
}

func (r *PaymentRepository) sealLedgerRef(ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	sealed, err := r.cipher.EncryptString(ref)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt ledger reference: %w", err)
	}
	return sealed, nil
}
