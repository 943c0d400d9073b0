package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repository defines payment persistence operations. Update is a
// compare-and-swap on Version and fails with shared.ConcurrencyConflictError.
type Repository interface {
	Create(ctx context.Context, payment *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetByExternalTxID(ctx context.Context, externalTxID string) (*Payment, error)
	Update(ctx context.Context, payment *Payment, expectedVersion int) error

	// ListByStatus returns up to limit payments in status, least recently updated first.
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Payment, error)

	// SumBuyerAmountSince totals the buyer's payments that count toward the daily limit.
	SumBuyerAmountSince(ctx context.Context, buyerID string, since time.Time) (decimal.Decimal, error)
	WithTx(tx pgx.Tx) Repository
}
