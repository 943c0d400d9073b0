package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pi-escrow-ledger/internal/config"
	"github.com/pi-escrow-ledger/internal/domain/escrow"
	"github.com/pi-escrow-ledger/internal/domain/payment"
	"github.com/pi-escrow-ledger/internal/domain/rules"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/domain/transaction"
	"github.com/pi-escrow-ledger/internal/payment_processor/service"
)

// EscrowManagerImpl implements the EscrowManager interface
type EscrowManagerImpl struct {
	escrowRepo    escrow.Repository
	outboxManager service.OutboxManager
	escalation    service.SupportEscalationQueue
	validator     *rules.Validator
	threshold     decimal.Decimal
	terms         escrow.Terms
	gateCreation  bool
	clock         shared.Clock
	logger        *slog.Logger
}

// NewEscrowManager creates a new EscrowManagerImpl
func NewEscrowManager(
	escrowRepo escrow.Repository,
	outboxManager service.OutboxManager,
	escalation service.SupportEscalationQueue,
	validator *rules.Validator,
	cfg config.EscrowConfig,
	clock shared.Clock,
	logger *slog.Logger,
) *EscrowManagerImpl {
	return &EscrowManagerImpl{
		escrowRepo:    escrowRepo,
		outboxManager: outboxManager,
		escalation:    escalation,
		validator:     validator,
		threshold:     cfg.Threshold,
		terms: escrow.Terms{
			DurationDays:       cfg.DurationDays,
			DisputeWindowHours: cfg.DisputeWindowHours,
			LegalReference:     cfg.LegalReference,
		},
		gateCreation: cfg.GateCreationByTradingWindow,
		clock:        clock,
		logger:       logger,
	}
}

// CreateEscrow opens the escrow for p, or returns the one already open.
func (m *EscrowManagerImpl) CreateEscrow(ctx context.Context, tx pgx.Tx, p *payment.Payment) (*escrow.Escrow, error) {
	logger := m.logger.With("payment_id", p.ID.String())

	if !rules.RequiresEscrow(p.Amount, m.threshold) {
		return nil, shared.ValidationError{
			Code:    shared.CodeEscrowNotRequired,
			Message: fmt.Sprintf("amount %s is below the escrow threshold %s", p.Amount, m.threshold),
		}
	}

	now := m.clock.Now()
	if m.gateCreation {
		if err := m.validator.ValidateTradingWindow(ctx, now); err != nil {
			logger.Info("Escrow creation outside trading window", "error", err)
			return nil, err
		}
	}

	escrowRepoTx := m.escrowRepo.WithTx(tx)

	existing, err := escrowRepoTx.GetByPaymentID(ctx, p.ID)
	if err == nil {
		logger.Info("Escrow already exists for payment", "escrow_id", existing.ID.String())
		return existing, nil
	}
	if !errors.Is(err, shared.NotFoundError{Resource: "escrow"}) {
		return nil, fmt.Errorf("failed to look up escrow for payment %s: %w", p.ID, err)
	}

	esc := escrow.New(p.ID, p.Amount, m.terms, now)
	if err := escrowRepoTx.Create(ctx, esc); err != nil {
		if errors.Is(err, escrow.ErrDuplicateEscrow{}) {
			// Lost the race to a concurrent confirmation; the caller reloads.
			logger.Warn("Concurrent escrow creation", "error", err)
			return nil, shared.ConcurrencyConflictError{Entity: "payment", ID: p.ID, ExpectedVersion: p.Version}
		}
		logger.Error("Failed to create escrow", "error", err)
		return nil, fmt.Errorf("failed to create escrow for payment %s: %w", p.ID, err)
	}

	logger.Info("Escrow created",
		"escrow_id", esc.ID.String(),
		"release_date", esc.ReleaseDate,
		"dispute_window_hours", esc.DisputeWindowHours,
	)
	return esc, nil
}

// ReleaseEscrow hands the funds to the seller and queues the ESCROW_RELEASE record.
func (m *EscrowManagerImpl) ReleaseEscrow(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID, p *payment.Payment, releasedBy string) (*escrow.Escrow, error) {
	logger := m.logger.With("escrow_id", escrowID.String())

	now := m.clock.Now()
	if err := m.validator.ValidateTradingWindow(ctx, now); err != nil {
		logger.Info("Escrow release outside trading window", "error", err)
		return nil, err
	}

	escrowRepoTx := m.escrowRepo.WithTx(tx)
	esc, err := escrowRepoTx.GetByID(ctx, escrowID)
	if err != nil {
		return nil, err
	}

	expected := esc.Version
	if err := esc.Release(releasedBy, now); err != nil {
		logger.Warn("Escrow release rejected", "status", esc.Status, "error", err)
		return nil, err
	}
	if err := escrowRepoTx.Update(ctx, esc, expected); err != nil {
		return nil, err
	}

	record := transaction.RequestForPayment(p, transaction.TypeEscrowRelease, esc.ID.String(), releasedBy, now)
	record.Amount = esc.Amount
	record.EscrowID = &esc.ID
	record.Details = transaction.Details{EscrowRelease: &transaction.EscrowReleaseDetails{
		EscrowID:    esc.ID,
		ReleasedBy:  releasedBy,
		ReleaseDate: esc.ReleaseDate,
	}}
	if err := m.outboxManager.RecordTransaction(ctx, tx, record); err != nil {
		return nil, err
	}

	logger.Info("Escrow funds released", "payment_id", esc.PaymentID.String(), "released_by", releasedBy)
	return esc, nil
}

// HandleDispute admits a dispute raised inside the escrow's window and
// escalates it. The escalated escrow is returned unsaved; PersistDispute
// stores it in the caller's transaction.
func (m *EscrowManagerImpl) HandleDispute(ctx context.Context, details escrow.DisputeDetails) (*escrow.Escrow, error) {
	logger := m.logger.With("escrow_id", details.EscrowID.String())

	esc, err := m.escrowRepo.GetByID(ctx, details.EscrowID)
	if err != nil {
		return nil, err
	}

	if err := esc.CheckDisputeAdmissible(details.Timestamp); err != nil {
		logger.Info("Dispute rejected",
			"elapsed_hours", esc.ElapsedHours(details.Timestamp),
			"window_hours", esc.DisputeWindowHours,
			"error", err,
		)
		return nil, err
	}

	ticketRef, err := m.escalation.Escalate(ctx, esc, details)
	if err != nil {
		logger.Error("Failed to escalate dispute", "error", err)
		return nil, fmt.Errorf("failed to escalate dispute for escrow %s: %w", esc.ID, err)
	}

	if err := esc.RecordEscalation(details, ticketRef, m.clock.Now()); err != nil {
		return nil, err
	}

	logger.Info("Dispute escalated to support", "ticket_ref", ticketRef, "raised_by", details.RaisedBy)
	return esc, nil
}

// PersistDispute stores an escrow returned by HandleDispute.
func (m *EscrowManagerImpl) PersistDispute(ctx context.Context, tx pgx.Tx, esc *escrow.Escrow) error {
	return m.escrowRepo.WithTx(tx).Update(ctx, esc, esc.Version-1)
}

// ReturnEscrow sends the funds back to the buyer and queues the ESCROW_RETURN record.
func (m *EscrowManagerImpl) ReturnEscrow(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID, p *payment.Payment, actor, reason string) (*escrow.Escrow, error) {
	escrowRepoTx := m.escrowRepo.WithTx(tx)
	esc, err := escrowRepoTx.GetByID(ctx, escrowID)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	expected := esc.Version
	if err := esc.Return(now); err != nil {
		return nil, err
	}
	if err := escrowRepoTx.Update(ctx, esc, expected); err != nil {
		return nil, err
	}

	ticketRef := ""
	if esc.Dispute != nil {
		ticketRef = esc.Dispute.TicketRef
	}
	record := transaction.RequestForPayment(p, transaction.TypeEscrowReturn, esc.ID.String(), actor, now)
	record.Amount = esc.Amount
	record.EscrowID = &esc.ID
	record.Notes = reason
	record.Details = transaction.Details{EscrowReturn: &transaction.EscrowReturnDetails{
		EscrowID:  esc.ID,
		Reason:    reason,
		TicketRef: ticketRef,
	}}
	if err := m.outboxManager.RecordTransaction(ctx, tx, record); err != nil {
		return nil, err
	}

	m.logger.Info("Escrow funds returned to buyer", "escrow_id", esc.ID.String(), "payment_id", esc.PaymentID.String(), "actor", actor)
	return esc, nil
}

func (m *EscrowManagerImpl) GetEscrow(ctx context.Context, escrowID uuid.UUID) (*escrow.Escrow, error) {
	return m.escrowRepo.GetByID(ctx, escrowID)
}
