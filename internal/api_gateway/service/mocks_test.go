package service

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/pi-escrow-ledger/internal/domain/payment"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/domain/transaction"
)

type MockPaymentReader struct {
	mock.Mock
}

func (m *MockPaymentReader) GetPayment(ctx context.Context, paymentID uuid.UUID) (*payment.Payment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

type MockConfirmationQueue struct {
	mock.Mock
}

func (m *MockConfirmationQueue) Enqueue(ctx context.Context, confirmation shared.PaymentConfirmation) error {
	return m.Called(ctx, confirmation).Error(0)
}

type MockLedgerReader struct {
	mock.Mock
}

func (m *MockLedgerReader) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*transaction.Transaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockLedgerReader) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*transaction.Transaction, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*transaction.Transaction), args.Error(1)
}

func (m *MockLedgerReader) GenerateRegulatoryReport(ctx context.Context, transactionID uuid.UUID) (transaction.Report, error) {
	args := m.Called(ctx, transactionID)
	return args.Get(0).(transaction.Report), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
