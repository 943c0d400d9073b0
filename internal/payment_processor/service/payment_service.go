package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pi-escrow-ledger/internal/domain/escrow"
	"github.com/pi-escrow-ledger/internal/domain/payment"
	"github.com/pi-escrow-ledger/internal/domain/rules"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/domain/transaction"
	"github.com/pi-escrow-ledger/internal/platform/ledger"
)

// PaymentServiceImpl is the Payment Processor.
type PaymentServiceImpl struct {
	db              TxRunner
	payments        payment.Repository
	validator       *rules.Validator
	escrowThreshold EscrowThreshold
	ledger          LedgerClient
	rates           ExchangeRateProvider
	escrowManager   EscrowManager
	outboxManager   OutboxManager
	failureRecorder FailureRecorder
	clock           shared.Clock
	logger          *slog.Logger
}

// EscrowThreshold decides whether a settled payment goes through escrow.
type EscrowThreshold func(p *payment.Payment) bool

// Dependencies groups the collaborators of PaymentServiceImpl.
type Dependencies struct {
	DB              TxRunner
	Payments        payment.Repository
	Validator       *rules.Validator
	RequiresEscrow  EscrowThreshold
	Ledger          LedgerClient
	Rates           ExchangeRateProvider
	EscrowManager   EscrowManager
	OutboxManager   OutboxManager
	FailureRecorder FailureRecorder
	Clock           shared.Clock
}

func NewPaymentService(deps Dependencies, logger *slog.Logger) *PaymentServiceImpl {
	clock := deps.Clock
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &PaymentServiceImpl{
		db:              deps.DB,
		payments:        deps.Payments,
		validator:       deps.Validator,
		escrowThreshold: deps.RequiresEscrow,
		ledger:          deps.Ledger,
		rates:           deps.Rates,
		escrowManager:   deps.EscrowManager,
		outboxManager:   deps.OutboxManager,
		failureRecorder: deps.FailureRecorder,
		clock:           clock,
		logger:          logger,
	}
}

// InitializePayment validates the request, persists a PENDING payment and
// registers it with the ledger. Rule violations are rejected before anything
// is stored.
func (s *PaymentServiceImpl) InitializePayment(ctx context.Context, req InitializeRequest) (*payment.Payment, error) {
	logger := s.logger
	if req.CorrelationID != "" {
		logger = s.logger.With("correlation_id", req.CorrelationID)
	}
	now := s.clock.Now()

	dayStart, err := s.validator.DayStart(now)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve local day: %w", err)
	}
	dailyTotal, err := s.payments.SumBuyerAmountSince(ctx, req.BuyerID, dayStart)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily total for buyer %s: %w", req.BuyerID, err)
	}
	if err := s.validator.ValidateAmount(req.Amount, dailyTotal); err != nil {
		logger.Info("Payment rejected by amount rules", "buyer_id", req.BuyerID, "amount", req.Amount.String(), "error", err)
		return nil, err
	}
	if err := s.validator.ValidateTradingWindow(ctx, now); err != nil {
		logger.Info("Payment rejected outside trading window", "buyer_id", req.BuyerID, "error", err)
		return nil, err
	}

	conversion, err := s.rates.Convert(ctx, req.Amount)
	if err != nil {
		return nil, err
	}

	p, err := payment.NewPayment(payment.NewParams{
		Amount:                 req.Amount,
		AmountEGP:              conversion.AmountEGP,
		BuyerID:                req.BuyerID,
		SellerID:               req.SellerID,
		ListingID:              req.ListingID,
		TaxID:                  req.TaxID,
		MerchantVerificationID: req.MerchantVerificationID,
		Timezone:               s.validator.ZoneID(),
	}, now)
	if err != nil {
		return nil, err
	}

	if err := s.payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to persist payment: %w", err)
	}
	logger = logger.With("payment_id", p.ID.String())
	logger.Info("Payment created", "amount", p.Amount.String(), "amount_egp", p.AmountEGP.String())

	intent, err := s.ledger.SubmitPayment(ctx, ledger.SubmitRequest{
		Amount: p.Amount,
		Memo:   p.ID.String(),
		Metadata: map[string]string{
			"buyer_id":   p.BuyerID,
			"seller_id":  p.SellerID,
			"listing_id": p.ListingID,
		},
	})
	if err != nil {
		logger.Error("Ledger submission failed", "error", err)
		if recordErr := s.failureRecorder.RecordFailure(ctx, p, err.Error()); recordErr != nil {
			logger.Error("Failed to record payment failure", "error", recordErr)
		}
		return p, err
	}

	expected := p.Version
	p.ExternalLedgerRef = intent.Identifier
	if err := p.TransitionTo(payment.StatusProcessing, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.payments.Update(ctx, p, expected); err != nil {
		logger.Error("Failed to store ledger intent", "ledger_ref", intent.Identifier, "error", err)
		return s.adoptIntent(ctx, p.ID, intent.Identifier, err)
	}

	logger.Info("Payment submitted to ledger")
	return p, nil
}

// adoptIntent stores an acknowledged ledger intent after the first write
// failed. The payment is reloaded and moved to PROCESSING once more; if that
// also fails it is marked FAILED with the intent reference kept on it.
func (s *PaymentServiceImpl) adoptIntent(ctx context.Context, paymentID uuid.UUID, ref string, cause error) (*payment.Payment, error) {
	logger := s.logger.With("payment_id", paymentID.String(), "ledger_ref", ref)

	current, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		logger.Error("Failed to reload payment after ledger acknowledgement", "error", err)
		return nil, cause
	}
	if current.Status == payment.StatusProcessing && current.ExternalLedgerRef == ref {
		return current, nil
	}
	if current.Status != payment.StatusPending {
		logger.Error("Ledger intent orphaned", "status", current.Status)
		return nil, cause
	}

	retry := *current
	retry.ExternalLedgerRef = ref
	if err = retry.TransitionTo(payment.StatusProcessing, s.clock.Now()); err == nil {
		if err = s.payments.Update(ctx, &retry, current.Version); err == nil {
			logger.Info("Payment submitted to ledger after retry")
			return &retry, nil
		}
	}

	current.ExternalLedgerRef = ref
	reason := fmt.Sprintf("ledger intent %s acknowledged but not stored: %v", ref, cause)
	if recordErr := s.failureRecorder.RecordFailure(ctx, current, reason); recordErr != nil {
		logger.Error("Failed to record payment failure", "error", recordErr)
	}
	return nil, cause
}

// ProcessPayment settles a ledger confirmation. Repeating a call that already
// completed returns the payment unchanged; a payment left in ESCROW_PENDING
// resumes escrow creation.
func (s *PaymentServiceImpl) ProcessPayment(ctx context.Context, paymentID uuid.UUID, externalTxID string) (*payment.Payment, error) {
	if externalTxID == "" {
		return nil, shared.ValidationError{Code: shared.CodeInvalidRequest, Message: "external transaction id is required"}
	}
	logger := s.logger.With("payment_id", paymentID.String(), "external_tx_id", externalTxID)

	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if p.IsSettledBy(externalTxID) {
		logger.Info("Confirmation already processed", "status", p.Status)
		return p, nil
	}

	resuming := p.Status == payment.StatusEscrowPending && p.ExternalTxID == externalTxID
	if !resuming {
		if p.Status != payment.StatusProcessing {
			return nil, shared.InvalidStateTransitionError{Entity: "payment", From: string(p.Status), To: string(payment.StatusCompleted)}
		}
		if err := s.settle(ctx, p, externalTxID); err != nil {
			return nil, err
		}
		logger.Info("Payment settled", "status", p.Status)
	}

	if p.Status == payment.StatusEscrowPending {
		if err := s.lockEscrow(ctx, p); err != nil {
			if isTradingWindowRejection(err) {
				logger.Warn("Escrow creation deferred", "error", err)
				return p, nil
			}
			return nil, err
		}
		logger.Info("Escrow locked", "escrow_id", p.EscrowID.String())
	}

	return p, nil
}

// isTradingWindowRejection reports whether escrow creation was refused only
// because the trading window is closed. The payment stays ESCROW_PENDING and
// is picked up again by the escrow resumer.
func isTradingWindowRejection(err error) bool {
	return errors.Is(err, shared.ValidationError{Code: shared.CodeOutsideTradingHours}) ||
		errors.Is(err, shared.ValidationError{Code: shared.CodeWeekendRestricted})
}

// settle verifies the ledger transaction and moves PROCESSING to
// ESCROW_PENDING or COMPLETED, queuing the PURCHASE record.
func (s *PaymentServiceImpl) settle(ctx context.Context, p *payment.Payment, externalTxID string) error {
	ledgerTx, err := s.ledger.GetTransaction(ctx, externalTxID)
	if err != nil {
		return err
	}
	if !ledgerTx.Amount.Equal(p.Amount) {
		return shared.AmountMismatchError{PaymentID: p.ID, Expected: p.Amount, Actual: ledgerTx.Amount}
	}

	next := payment.StatusCompleted
	if s.escrowThreshold(p) {
		next = payment.StatusEscrowPending
	}

	now := s.clock.Now()
	expected := p.Version
	p.ExternalTxID = externalTxID
	if err := p.TransitionTo(next, now); err != nil {
		return err
	}

	record := transaction.RequestForPayment(p, transaction.TypePurchase, externalTxID, p.BuyerID, now)
	record.Details = transaction.PurchaseDetailsFor(p)
	record.ExternalLedgerRef = p.ExternalLedgerRef
	record.BlockConfirmationTime = ledgerTx.BlockConfirmedAt

	return s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.payments.WithTx(tx).Update(ctx, p, expected); err != nil {
			return err
		}
		return s.outboxManager.RecordTransaction(ctx, tx, record)
	})
}

func (s *PaymentServiceImpl) lockEscrow(ctx context.Context, p *payment.Payment) error {
	return s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		esc, err := s.escrowManager.CreateEscrow(ctx, tx, p)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		expected := p.Version
		releaseDate := esc.ReleaseDate
		p.EscrowID = &esc.ID
		p.EscrowReleaseDate = &releaseDate
		if err := p.TransitionTo(payment.StatusEscrowLocked, now); err != nil {
			return err
		}
		if err := s.payments.WithTx(tx).Update(ctx, p, expected); err != nil {
			return err
		}

		purchaseID := transaction.PurchaseID(p.ID, p.ExternalTxID)
		entry := transaction.DeriveAuditEntry(purchaseID, transaction.ActionEscrowCreated, esc.ID.String(), transaction.SystemActor, "funds held until "+releaseDate.Format("2006-01-02"), now)
		return s.outboxManager.AppendAudit(ctx, tx, p.ID, purchaseID, entry)
	})
}

// CancelPayment cancels a payment the ledger has not settled yet.
func (s *PaymentServiceImpl) CancelPayment(ctx context.Context, paymentID uuid.UUID, actor, reason string) (*payment.Payment, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expected := p.Version
	if err := p.TransitionTo(payment.StatusCancelled, now); err != nil {
		return nil, err
	}

	record := transaction.RequestForPayment(p, transaction.TypePurchase, transaction.DiscriminatorCancelled, actor, now)
	record.Details = transaction.PurchaseDetailsFor(p)
	record.ExternalLedgerRef = p.ExternalLedgerRef
	record.Notes = reason

	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.payments.WithTx(tx).Update(ctx, p, expected); err != nil {
			return err
		}
		return s.outboxManager.RecordTransaction(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment cancelled", "payment_id", p.ID.String(), "actor", actor)
	return p, nil
}

// ReleaseEscrow hands the held funds to the seller and completes the payment.
func (s *PaymentServiceImpl) ReleaseEscrow(ctx context.Context, escrowID uuid.UUID, releasedBy string) (*EscrowResult, error) {
	esc, err := s.escrowManager.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	p, err := s.payments.GetByID(ctx, esc.PaymentID)
	if err != nil {
		return nil, err
	}
	return s.release(ctx, p, escrowID, releasedBy, "")
}

func (s *PaymentServiceImpl) release(ctx context.Context, p *payment.Payment, escrowID uuid.UUID, releasedBy, reason string) (*EscrowResult, error) {
	if p.Status != payment.StatusEscrowLocked && p.Status != payment.StatusDisputeResolution {
		return nil, shared.InvalidStateTransitionError{Entity: "payment", From: string(p.Status), To: string(payment.StatusCompleted)}
	}

	now := s.clock.Now()
	expected := p.Version
	if err := p.TransitionTo(payment.StatusCompleted, now); err != nil {
		return nil, err
	}

	var released *escrow.Escrow
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var err error
		released, err = s.escrowManager.ReleaseEscrow(ctx, tx, escrowID, p, releasedBy)
		if err != nil {
			return err
		}
		if err := s.payments.WithTx(tx).Update(ctx, p, expected); err != nil {
			return err
		}

		purchaseID := transaction.PurchaseID(p.ID, p.ExternalTxID)
		entry := transaction.DeriveAuditEntry(purchaseID, transaction.ActionEscrowReleased, escrowID.String(), releasedBy, reason, now)
		return s.outboxManager.AppendAudit(ctx, tx, p.ID, purchaseID, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Escrow released", "payment_id", p.ID.String(), "escrow_id", escrowID.String(), "released_by", releasedBy)
	return &EscrowResult{Payment: p, Escrow: released}, nil
}

// HandleDispute admits a dispute inside the escrow's window, escalates it to
// support and moves the payment to DISPUTE_RESOLUTION.
func (s *PaymentServiceImpl) HandleDispute(ctx context.Context, details escrow.DisputeDetails) (*EscrowResult, error) {
	if details.Timestamp.IsZero() {
		details.Timestamp = s.clock.Now()
	}

	// ownership is checked before escalation publishes a support ticket
	if details.PaymentID != uuid.Nil {
		current, err := s.escrowManager.GetEscrow(ctx, details.EscrowID)
		if err != nil {
			return nil, err
		}
		if current.PaymentID != details.PaymentID {
			return nil, shared.ValidationError{Code: shared.CodeInvalidRequest, Message: "escrow does not belong to payment " + details.PaymentID.String()}
		}
	}

	esc, err := s.escrowManager.HandleDispute(ctx, details)
	if err != nil {
		return nil, err
	}

	p, err := s.payments.GetByID(ctx, esc.PaymentID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expected := p.Version
	p.DisputeReason = details.Reason
	if err := p.TransitionTo(payment.StatusDisputeResolution, now); err != nil {
		return nil, err
	}

	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.escrowManager.PersistDispute(ctx, tx, esc); err != nil {
			return err
		}
		if err := s.payments.WithTx(tx).Update(ctx, p, expected); err != nil {
			return err
		}

		purchaseID := transaction.PurchaseID(p.ID, p.ExternalTxID)
		entry := transaction.DeriveAuditEntry(purchaseID, transaction.ActionDisputeEscalated, esc.Dispute.TicketRef, details.RaisedBy, details.Reason, now)
		return s.outboxManager.AppendAudit(ctx, tx, p.ID, purchaseID, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Dispute escalated",
		"payment_id", p.ID.String(),
		"escrow_id", esc.ID.String(),
		"ticket_ref", esc.Dispute.TicketRef,
	)
	return &EscrowResult{Payment: p, Escrow: esc}, nil
}

// ResolveDispute applies the support team's decision on a disputed payment.
func (s *PaymentServiceImpl) ResolveDispute(ctx context.Context, paymentID uuid.UUID, outcome DisputeOutcome, actor, reason string) (*EscrowResult, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	var target payment.Status
	switch outcome {
	case OutcomeReleaseToSeller:
		target = payment.StatusCompleted
	case OutcomeRefundToBuyer:
		target = payment.StatusRefunded
	default:
		return nil, shared.ValidationError{Code: shared.CodeInvalidRequest, Message: fmt.Sprintf("unknown dispute outcome %q", outcome)}
	}
	if p.Status != payment.StatusDisputeResolution || p.EscrowID == nil {
		return nil, shared.InvalidStateTransitionError{Entity: "payment", From: string(p.Status), To: string(target)}
	}

	if outcome == OutcomeReleaseToSeller {
		return s.release(ctx, p, *p.EscrowID, actor, reason)
	}
	return s.refund(ctx, p, actor, reason)
}

func (s *PaymentServiceImpl) refund(ctx context.Context, p *payment.Payment, actor, reason string) (*EscrowResult, error) {
	escrowID := *p.EscrowID
	now := s.clock.Now()
	expected := p.Version
	if err := p.TransitionTo(payment.StatusRefunded, now); err != nil {
		return nil, err
	}

	var returned *escrow.Escrow
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var err error
		returned, err = s.escrowManager.ReturnEscrow(ctx, tx, escrowID, p, actor, reason)
		if err != nil {
			return err
		}
		if err := s.payments.WithTx(tx).Update(ctx, p, expected); err != nil {
			return err
		}

		ticketRef := ""
		if returned.Dispute != nil {
			ticketRef = returned.Dispute.TicketRef
		}
		record := transaction.RequestForPayment(p, transaction.TypeRefund, escrowID.String(), actor, now)
		record.Details = transaction.Details{Refund: &transaction.RefundDetails{
			OriginalTransactionID: transaction.PurchaseID(p.ID, p.ExternalTxID),
			Reason:                reason,
			TicketRef:             ticketRef,
		}}
		record.Notes = reason
		return s.outboxManager.RecordTransaction(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment refunded", "payment_id", p.ID.String(), "escrow_id", escrowID.String(), "actor", actor)
	return &EscrowResult{Payment: p, Escrow: returned}, nil
}

func (s *PaymentServiceImpl) GetPayment(ctx context.Context, paymentID uuid.UUID) (*payment.Payment, error) {
	return s.payments.GetByID(ctx, paymentID)
}

func (s *PaymentServiceImpl) GetEscrow(ctx context.Context, escrowID uuid.UUID) (*escrow.Escrow, error) {
	return s.escrowManager.GetEscrow(ctx, escrowID)
}

// ConflictRetryingService retries an operation once when a guarded write
// lost a version race. Every attempt reloads state from the repositories.
type ConflictRetryingService struct {
	PaymentService
	logger *slog.Logger
}

func NewConflictRetryingService(base PaymentService, logger *slog.Logger) *ConflictRetryingService {
	return &ConflictRetryingService{PaymentService: base, logger: logger}
}

func retryOnConflict[T any](logger *slog.Logger, op string, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil || !errors.Is(err, shared.ConcurrencyConflictError{}) {
		return result, err
	}
	logger.Warn("Concurrent modification, retrying once", "operation", op, "error", err)
	return fn()
}

func (s *ConflictRetryingService) ProcessPayment(ctx context.Context, paymentID uuid.UUID, externalTxID string) (*payment.Payment, error) {
	return retryOnConflict(s.logger, "process_payment", func() (*payment.Payment, error) {
		return s.PaymentService.ProcessPayment(ctx, paymentID, externalTxID)
	})
}

func (s *ConflictRetryingService) CancelPayment(ctx context.Context, paymentID uuid.UUID, actor, reason string) (*payment.Payment, error) {
	return retryOnConflict(s.logger, "cancel_payment", func() (*payment.Payment, error) {
		return s.PaymentService.CancelPayment(ctx, paymentID, actor, reason)
	})
}

func (s *ConflictRetryingService) ReleaseEscrow(ctx context.Context, escrowID uuid.UUID, releasedBy string) (*EscrowResult, error) {
	return retryOnConflict(s.logger, "release_escrow", func() (*EscrowResult, error) {
		return s.PaymentService.ReleaseEscrow(ctx, escrowID, releasedBy)
	})
}

func (s *ConflictRetryingService) HandleDispute(ctx context.Context, details escrow.DisputeDetails) (*EscrowResult, error) {
	return retryOnConflict(s.logger, "handle_dispute", func() (*EscrowResult, error) {
		return s.PaymentService.HandleDispute(ctx, details)
	})
}

func (s *ConflictRetryingService) ResolveDispute(ctx context.Context, paymentID uuid.UUID, outcome DisputeOutcome, actor, reason string) (*EscrowResult, error) {
	return retryOnConflict(s.logger, "resolve_dispute", func() (*EscrowResult, error) {
		return s.PaymentService.ResolveDispute(ctx, paymentID, outcome, actor, reason)
	})
}
