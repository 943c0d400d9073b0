package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pi-escrow-ledger/internal/domain/escrow"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/platform/persistence"
	"github.com/shopspring/decimal"
)

const escrowColumns = `id, payment_id, amount::text, release_date, is_released, COALESCE(released_by, ''),
		released_at, dispute_window_hours, legal_reference, status, dispute, version, created_at, updated_at`

// EscrowRepository implements the escrow.Repository interface for PostgreSQL
type EscrowRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewEscrowRepository creates a new PostgreSQL escrow repository
func NewEscrowRepository(logger *slog.Logger, db *persistence.PostgresDB) escrow.Repository {
	return &EscrowRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *EscrowRepository) WithTx(tx pgx.Tx) escrow.Repository {
	return &EscrowRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new escrow. A second escrow for the same payment is
// rejected with escrow.ErrDuplicateEscrow.
func (r *EscrowRepository) Create(ctx context.Context, e *escrow.Escrow) error {
	dispute, err := marshalDispute(e.Dispute)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO escrows (id, payment_id, amount, release_date, is_released, released_by, released_at,
			dispute_window_hours, legal_reference, status, dispute, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = r.querier.Exec(ctx, query,
		e.ID,
		e.PaymentID,
		e.Amount.String(),
		e.ReleaseDate,
		e.IsReleased,
		e.ReleasedBy,
		e.ReleasedAt,
		e.DisputeWindowHours,
		e.LegalReference,
		e.Status,
		dispute,
		e.Version,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "escrows_payment_id_key") {
			return escrow.ErrDuplicateEscrow{PaymentID: e.PaymentID}
		}
		r.logger.Error("Failed to create escrow", "escrow_id", e.ID.String(), "payment_id", e.PaymentID.String(), "error", err)
		return fmt.Errorf("failed to create escrow: %w", err)
	}

	return nil
}

func (r *EscrowRepository) GetByID(ctx context.Context, id uuid.UUID) (*escrow.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE id = $1`

	e, err := scanEscrow(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFoundError{Resource: "escrow", ID: id.String()}
		}
		r.logger.Error("Failed to get escrow", "escrow_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get escrow: %w", err)
	}

	return e, nil
}

func (r *EscrowRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*escrow.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE payment_id = $1`

	e, err := scanEscrow(r.querier.QueryRow(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFoundError{Resource: "escrow", ID: "payment:" + paymentID.String()}
		}
		r.logger.Error("Failed to get escrow by payment", "payment_id", paymentID.String(), "error", err)
		return nil, fmt.Errorf("failed to get escrow by payment: %w", err)
	}

	return e, nil
}

// Update is a compare-and-swap on version; zero affected rows means another
// writer got there first.
func (r *EscrowRepository) Update(ctx context.Context, e *escrow.Escrow, expectedVersion int) error {
	dispute, err := marshalDispute(e.Dispute)
	if err != nil {
		return err
	}

	query := `
		UPDATE escrows
		SET is_released = $1, released_by = NULLIF($2, ''), released_at = $3, status = $4, dispute = $5,
			version = $6, updated_at = $7
		WHERE id = $8 AND version = $9
	`

	result, err := r.querier.Exec(ctx, query,
		e.IsReleased,
		e.ReleasedBy,
		e.ReleasedAt,
		e.Status,
		dispute,
		e.Version,
		e.UpdatedAt,
		e.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update escrow", "escrow_id", e.ID.String(), "error", err)
		return fmt.Errorf("failed to update escrow: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ConcurrencyConflictError{Entity: "escrow", ID: e.ID, ExpectedVersion: expectedVersion}
	}

	return nil
}

func scanEscrow(row pgx.Row) (*escrow.Escrow, error) {
	var (
		e       escrow.Escrow
		amount  string
		dispute []byte
	)
	err := row.Scan(
		&e.ID,
		&e.PaymentID,
		&amount,
		&e.ReleaseDate,
		&e.IsReleased,
		&e.ReleasedBy,
		&e.ReleasedAt,
		&e.DisputeWindowHours,
		&e.LegalReference,
		&e.Status,
		&dispute,
		&e.Version,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid escrow amount %q: %w", amount, err)
	}
	if len(dispute) > 0 {
		var resolution escrow.Resolution
		if err := json.Unmarshal(dispute, &resolution); err != nil {
			return nil, fmt.Errorf("invalid escrow dispute: %w", err)
		}
		e.Dispute = &resolution
	}

	return &e, nil
}

func marshalDispute(d *escrow.Resolution) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode escrow dispute: %w", err)
	}
	return b, nil
}
