package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/pi-escrow-ledger/internal/domain/escrow"
	"github.com/pi-escrow-ledger/internal/domain/payment"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/domain/transaction"
	processor "github.com/pi-escrow-ledger/internal/payment_processor/service"
)

// PaymentService is the part of the payment processor served synchronously
// over HTTP. Confirmations go through ConfirmationService instead.
type PaymentService interface {
	InitializePayment(ctx context.Context, req processor.InitializeRequest) (*payment.Payment, error)
	CancelPayment(ctx context.Context, paymentID uuid.UUID, actor, reason string) (*payment.Payment, error)
	ReleaseEscrow(ctx context.Context, escrowID uuid.UUID, releasedBy string) (*processor.EscrowResult, error)
	HandleDispute(ctx context.Context, details escrow.DisputeDetails) (*processor.EscrowResult, error)
	ResolveDispute(ctx context.Context, paymentID uuid.UUID, outcome processor.DisputeOutcome, actor, reason string) (*processor.EscrowResult, error)
	GetPayment(ctx context.Context, paymentID uuid.UUID) (*payment.Payment, error)
	GetEscrow(ctx context.Context, escrowID uuid.UUID) (*escrow.Escrow, error)
}

// ConfirmationService accepts ledger confirmations for asynchronous settlement.
type ConfirmationService interface {
	// EnqueueConfirmation returns NotFoundError for an unknown payment.
	EnqueueConfirmation(ctx context.Context, paymentID uuid.UUID, externalTxID, correlationID string) (shared.PaymentConfirmation, error)
}

// TransactionService reads the transaction ledger.
type TransactionService interface {
	GetTransaction(ctx context.Context, transactionID uuid.UUID) (*transaction.Transaction, error)
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*transaction.Transaction, error)
	GetReport(ctx context.Context, transactionID uuid.UUID) (transaction.Report, error)
}

// PaymentReader looks up payments.
type PaymentReader interface {
	GetPayment(ctx context.Context, paymentID uuid.UUID) (*payment.Payment, error)
}

// ConfirmationQueue publishes confirmations to the processor.
type ConfirmationQueue interface {
	Enqueue(ctx context.Context, confirmation shared.PaymentConfirmation) error
}

// LedgerReader is the read side of the transaction ledger.
type LedgerReader interface {
	GetTransaction(ctx context.Context, transactionID uuid.UUID) (*transaction.Transaction, error)
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*transaction.Transaction, error)
	GenerateRegulatoryReport(ctx context.Context, transactionID uuid.UUID) (transaction.Report, error)
}
