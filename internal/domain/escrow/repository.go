package escrow

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines escrow persistence operations. At most one escrow
// exists per payment; Update is a compare-and-swap on Version.
type Repository interface {
	Create(ctx context.Context, escrow *Escrow) error
	GetByID(ctx context.Context, id uuid.UUID) (*Escrow, error)
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*Escrow, error)
	Update(ctx context.Context, escrow *Escrow, expectedVersion int) error
	WithTx(tx pgx.Tx) Repository
}

// ErrDuplicateEscrow indicates a second escrow for the same payment
type ErrDuplicateEscrow struct {
	PaymentID uuid.UUID
}

func (e ErrDuplicateEscrow) Error() string {
	return "escrow already exists for payment: " + e.PaymentID.String()
}

// Is implements the errors.Is interface for ErrDuplicateEscrow
func (e ErrDuplicateEscrow) Is(target error) bool {
	t, ok := target.(ErrDuplicateEscrow)
	if !ok {
		return false
	}
	return t.PaymentID == uuid.Nil || t.PaymentID == e.PaymentID
}
