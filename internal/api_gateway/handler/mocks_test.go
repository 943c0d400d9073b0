package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/pi-escrow-ledger/internal/api_gateway/middleware"
	"github.com/pi-escrow-ledger/internal/domain/escrow"
	"github.com/pi-escrow-ledger/internal/domain/payment"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/domain/transaction"
	processor "github.com/pi-escrow-ledger/internal/payment_processor/service"
)

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) InitializePayment(ctx context.Context, req processor.InitializeRequest) (*payment.Payment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockPaymentService) CancelPayment(ctx context.Context, paymentID uuid.UUID, actor, reason string) (*payment.Payment, error) {
	args := m.Called(ctx, paymentID, actor, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockPaymentService) ReleaseEscrow(ctx context.Context, escrowID uuid.UUID, releasedBy string) (*processor.EscrowResult, error) {
	args := m.Called(ctx, escrowID, releasedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.EscrowResult), args.Error(1)
}

func (m *MockPaymentService) HandleDispute(ctx context.Context, details escrow.DisputeDetails) (*processor.EscrowResult, error) {
	args := m.Called(ctx, details)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.EscrowResult), args.Error(1)
}

func (m *MockPaymentService) ResolveDispute(ctx context.Context, paymentID uuid.UUID, outcome processor.DisputeOutcome, actor, reason string) (*processor.EscrowResult, error) {
	args := m.Called(ctx, paymentID, outcome, actor, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.EscrowResult), args.Error(1)
}

func (m *MockPaymentService) GetPayment(ctx context.Context, paymentID uuid.UUID) (*payment.Payment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockPaymentService) GetEscrow(ctx context.Context, escrowID uuid.UUID) (*escrow.Escrow, error) {
	args := m.Called(ctx, escrowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Escrow), args.Error(1)
}

type MockConfirmationService struct {
	mock.Mock
}

func (m *MockConfirmationService) EnqueueConfirmation(ctx context.Context, paymentID uuid.UUID, externalTxID, correlationID string) (shared.PaymentConfirmation, error) {
	args := m.Called(ctx, paymentID, externalTxID, correlationID)
	return args.Get(0).(shared.PaymentConfirmation), args.Error(1)
}

type MockTransactionService struct {
	mock.Mock
}

func (m *MockTransactionService) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*transaction.Transaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionService) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*transaction.Transaction, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionService) GetReport(ctx context.Context, transactionID uuid.UUID) (transaction.Report, error) {
	args := m.Called(ctx, transactionID)
	return args.Get(0).(transaction.Report), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.CorrelationID())
	return r
}
