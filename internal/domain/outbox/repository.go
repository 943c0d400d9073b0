package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pi-escrow-ledger/internal/domain/shared"
)

// Repository persists ledger outbox messages. Create must run in the same
// database transaction as the state change it records (see WithTx).
// UpdateStatus and IncrementAttempts return shared.NotFoundError for an
// unknown id.
type Repository interface {
	Create(ctx context.Context, message *Message) error
	GetPending(ctx context.Context, limit int) ([]*Message, error)
	UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error
	IncrementAttempts(ctx context.Context, id int64) error
	WithTx(tx pgx.Tx) Repository
}
