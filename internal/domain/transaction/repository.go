package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository manages transaction persistence. Core fields are written once
// by Create; afterwards only AppendAudit and MarkArchived touch a document.
type Repository interface {
	Create(ctx context.Context, tx *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	ListByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]*Transaction, error)

	// AppendAudit is a no-op if an entry with the same id is already present.
	AppendAudit(ctx context.Context, id uuid.UUID, entry AuditEntry) error

	ListArchivalCandidates(ctx context.Context, createdBefore time.Time, limit int) ([]*Transaction, error)

	// MarkArchived returns false when the document was already archived.
	MarkArchived(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	DeleteExpired(ctx context.Context, createdBefore time.Time) (int64, error)
}

// ErrDuplicateTransaction indicates the transaction id is already recorded
type ErrDuplicateTransaction struct {
	TransactionID uuid.UUID
}

func (e ErrDuplicateTransaction) Error() string {
	return "duplicate transaction: " + e.TransactionID.String()
}

// Is implements the errors.Is interface for ErrDuplicateTransaction
func (e ErrDuplicateTransaction) Is(target error) bool {
	t, ok := target.(ErrDuplicateTransaction)
	if !ok {
		return false
	}
	return t.TransactionID == uuid.Nil || e.TransactionID == t.TransactionID
}
