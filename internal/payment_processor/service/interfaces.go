package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pi-escrow-ledger/internal/domain/escrow"
	"github.com/pi-escrow-ledger/internal/domain/payment"
	"github.com/pi-escrow-ledger/internal/domain/transaction"
	"github.com/pi-escrow-ledger/internal/platform/exchangerate"
	"github.com/pi-escrow-ledger/internal/platform/ledger"
)

// DisputeOutcome is the support team's decision on an escalated dispute.
type DisputeOutcome string

const (
	OutcomeReleaseToSeller DisputeOutcome = "RELEASE_TO_SELLER"
	OutcomeRefundToBuyer   DisputeOutcome = "REFUND_TO_BUYER"
)

// InitializeRequest is what a buyer submits to start a payment.
type InitializeRequest struct {
	Amount                 decimal.Decimal
	BuyerID                string
	SellerID               string
	ListingID              string
	TaxID                  string
	MerchantVerificationID string
	CorrelationID          string
}

// EscrowResult pairs a payment with its escrow after an escrow operation.
type EscrowResult struct {
	Payment *payment.Payment
	Escrow  *escrow.Escrow
}

// PaymentService drives the payment lifecycle. It is the only writer of
// payment status.
type PaymentService interface {
	InitializePayment(ctx context.Context, req InitializeRequest) (*payment.Payment, error)
	ProcessPayment(ctx context.Context, paymentID uuid.UUID, externalTxID string) (*payment.Payment, error)
	CancelPayment(ctx context.Context, paymentID uuid.UUID, actor, reason string) (*payment.Payment, error)
	ReleaseEscrow(ctx context.Context, escrowID uuid.UUID, releasedBy string) (*EscrowResult, error)
	HandleDispute(ctx context.Context, details escrow.DisputeDetails) (*EscrowResult, error)
	ResolveDispute(ctx context.Context, paymentID uuid.UUID, outcome DisputeOutcome, actor, reason string) (*EscrowResult, error)
	GetPayment(ctx context.Context, paymentID uuid.UUID) (*payment.Payment, error)
	GetEscrow(ctx context.Context, escrowID uuid.UUID) (*escrow.Escrow, error)
}

// ConfirmationProcessor settles ledger confirmations arriving from the queue.
type ConfirmationProcessor interface {
	ProcessPayment(ctx context.Context, paymentID uuid.UUID, externalTxID string) (*payment.Payment, error)
}

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// LedgerClient is the external Pi ledger.
type LedgerClient interface {
	SubmitPayment(ctx context.Context, req ledger.SubmitRequest) (*ledger.PaymentIntent, error)
	GetTransaction(ctx context.Context, txID string) (*ledger.Transaction, error)
}

// ExchangeRateProvider converts Pi amounts to EGP.
type ExchangeRateProvider interface {
	Convert(ctx context.Context, amountPi decimal.Decimal) (exchangerate.Conversion, error)
}

// EscrowManager is the only writer of escrow state. Methods taking a pgx.Tx
// join the caller's database transaction.
type EscrowManager interface {
	CreateEscrow(ctx context.Context, tx pgx.Tx, p *payment.Payment) (*escrow.Escrow, error)
	ReleaseEscrow(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID, p *payment.Payment, releasedBy string) (*escrow.Escrow, error)

	// HandleDispute admits and escalates a dispute without persisting it;
	// PersistDispute stores the returned escrow.
	HandleDispute(ctx context.Context, details escrow.DisputeDetails) (*escrow.Escrow, error)
	PersistDispute(ctx context.Context, tx pgx.Tx, esc *escrow.Escrow) error
	ReturnEscrow(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID, p *payment.Payment, actor, reason string) (*escrow.Escrow, error)
	GetEscrow(ctx context.Context, escrowID uuid.UUID) (*escrow.Escrow, error)
}

// OutboxManager queues ledger instructions inside the caller's transaction.
type OutboxManager interface {
	RecordTransaction(ctx context.Context, tx pgx.Tx, req transaction.CreateRequest) error
	AppendAudit(ctx context.Context, tx pgx.Tx, paymentID, transactionID uuid.UUID, entry transaction.AuditEntry) error
}

// FailureRecorder moves a payment to FAILED and records the failed purchase.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, p *payment.Payment, failureReason string) error
}

// SupportEscalationQueue hands admitted disputes to the support team and
// returns the ticket reference.
type SupportEscalationQueue interface {
	Escalate(ctx context.Context, esc *escrow.Escrow, details escrow.DisputeDetails) (string, error)
}

// TransactionLedger is the only writer of transaction records.
type TransactionLedger interface {
	CreateTransaction(ctx context.Context, req transaction.CreateRequest) (*transaction.Transaction, error)
	AppendAudit(ctx context.Context, transactionID uuid.UUID, entry transaction.AuditEntry) error
	GetTransaction(ctx context.Context, transactionID uuid.UUID) (*transaction.Transaction, error)
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*transaction.Transaction, error)
	GenerateRegulatoryReport(ctx context.Context, transactionID uuid.UUID) (transaction.Report, error)
	ArchiveTransaction(ctx context.Context, transactionID uuid.UUID, now time.Time) (bool, error)
}
