package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pi-escrow-ledger/internal/domain/outbox"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/platform/persistence"
	"github.com/pi-escrow-ledger/internal/security"
)

// OutboxRepository implements the outbox.Repository interface for PostgreSQL.
// Payloads carry buyer, seller and ledger references, so they are sealed
// with the cipher before they reach the table.
type OutboxRepository struct {
	querier persistence.Querier
	cipher  security.Cipher
	logger  *slog.Logger
}

// NewOutboxRepository creates a new PostgreSQL outbox repository
func NewOutboxRepository(logger *slog.Logger, db *persistence.PostgresDB, cipher security.Cipher) outbox.Repository {
	return &OutboxRepository{
		querier: db.Pool(),
		cipher:  cipher,
		logger:  logger,
	}
}

// WithTx binds the repository to tx so that a message is only stored when
// the state change that produced it commits.
func (r *OutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	return &OutboxRepository{
		querier: tx,
		cipher:  r.cipher,
		logger:  r.logger,
	}
}

// Create stores a new outbox message in pending status.
func (r *OutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	sealed, err := r.cipher.Encrypt(message.Payload)
	if err != nil {
		return fmt.Errorf("failed to encrypt outbox payload: %w", err)
	}

	query := `
		INSERT INTO ledger_outbox (payment_id, kind, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err = r.querier.QueryRow(ctx, query,
		message.PaymentID,
		message.Kind,
		sealed,
		message.Status,
		message.Attempts,
		message.CreatedAt,
	).Scan(&message.ID)

	if err != nil {
		r.logger.Error("Failed to create outbox message",
			"payment_id", message.PaymentID.String(),
			"kind", string(message.Kind),
			"error", err,
		)
		return fmt.Errorf("failed to create outbox message: %w", err)
	}

	return nil
}

// GetPending retrieves a batch of pending messages in FIFO order. A payload
// that fails to decrypt is returned with a nil Payload so the poller can
// fail it instead of stalling the batch.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	query := `
		SELECT id, payment_id, kind, payload, status, attempts, created_at, last_attempt_at
		FROM ledger_outbox
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`

	rows, err := r.querier.Query(ctx, query, shared.OutboxStatusPending, limit)
	if err != nil {
		r.logger.Error("Failed to get pending outbox messages", "error", err)
		return nil, fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []*outbox.Message
	for rows.Next() {
		var (
			message outbox.Message
			sealed  []byte
		)
		err := rows.Scan(
			&message.ID,
			&message.PaymentID,
			&message.Kind,
			&sealed,
			&message.Status,
			&message.Attempts,
			&message.CreatedAt,
			&message.LastAttemptAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan outbox message", "error", err)
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}

		payload, err := r.cipher.Decrypt(sealed)
		if err != nil {
			r.logger.Error("Failed to decrypt outbox payload", "id", message.ID, "error", err)
		} else {
			message.Payload = payload
		}
		messages = append(messages, &message)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over outbox messages", "error", err)
		return nil, fmt.Errorf("error iterating over outbox messages: %w", err)
	}

	return messages, nil
}

// UpdateStatus updates the message status and last attempt timestamp.
func (r *OutboxRepository) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	query := `
		UPDATE ledger_outbox
		SET status = $1, last_attempt_at = $2
		WHERE id = $3
	`

	result, err := r.querier.Exec(ctx, query, status, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to update outbox message status",
			"id", id,
			"status", string(status),
			"error", err,
		)
		return fmt.Errorf("failed to update outbox message status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.NotFoundError{Resource: "outbox_message", ID: strconv.FormatInt(id, 10)}
	}

	return nil
}

// IncrementAttempts bumps the retry counter and last attempt time.
func (r *OutboxRepository) IncrementAttempts(ctx context.Context, id int64) error {
	query := `
		UPDATE ledger_outbox
		SET attempts = attempts + 1, last_attempt_at = $1
		WHERE id = $2
	`

	result, err := r.querier.Exec(ctx, query, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to increment outbox message attempts",
			"id", id,
			"error", err,
		)
		return fmt.Errorf("failed to increment outbox message attempts: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.NotFoundError{Resource: "outbox_message", ID: strconv.FormatInt(id, 10)}
	}

	return nil
}
