package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/pi-escrow-ledger/internal/domain/escrow"
	"github.com/pi-escrow-ledger/internal/domain/payment"
	"github.com/pi-escrow-ledger/internal/domain/transaction"
	"github.com/pi-escrow-ledger/internal/platform/exchangerate"
	"github.com/pi-escrow-ledger/internal/platform/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTxRunner runs fn with a nil transaction; mocked repositories ignore it.
type fakeTxRunner struct {
	calls int
}

func (r *fakeTxRunner) ExecuteTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	r.calls++
	return fn(nil)
}

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*payment.Payment)
	return p, args.Error(1)
}

func (m *MockPaymentRepository) GetByExternalTxID(ctx context.Context, externalTxID string) (*payment.Payment, error) {
	args := m.Called(ctx, externalTxID)
	p, _ := args.Get(0).(*payment.Payment)
	return p, args.Error(1)
}

func (m *MockPaymentRepository) Update(ctx context.Context, p *payment.Payment, expectedVersion int) error {
	return m.Called(ctx, p, expectedVersion).Error(0)
}

func (m *MockPaymentRepository) ListByStatus(ctx context.Context, status payment.Status, limit int) ([]*payment.Payment, error) {
	args := m.Called(ctx, status, limit)
	payments, _ := args.Get(0).([]*payment.Payment)
	return payments, args.Error(1)
}

func (m *MockPaymentRepository) SumBuyerAmountSince(ctx context.Context, buyerID string, since time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, buyerID, since)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockPaymentRepository) WithTx(pgx.Tx) payment.Repository {
	return m
}

type MockLedgerClient struct {
	mock.Mock
}

func (m *MockLedgerClient) SubmitPayment(ctx context.Context, req ledger.SubmitRequest) (*ledger.PaymentIntent, error) {
	args := m.Called(ctx, req)
	intent, _ := args.Get(0).(*ledger.PaymentIntent)
	return intent, args.Error(1)
}

func (m *MockLedgerClient) GetTransaction(ctx context.Context, txID string) (*ledger.Transaction, error) {
	args := m.Called(ctx, txID)
	tx, _ := args.Get(0).(*ledger.Transaction)
	return tx, args.Error(1)
}

type MockRates struct {
	mock.Mock
}

func (m *MockRates) Convert(ctx context.Context, amountPi decimal.Decimal) (exchangerate.Conversion, error) {
	args := m.Called(ctx, amountPi)
	return args.Get(0).(exchangerate.Conversion), args.Error(1)
}

type MockEscrowManager struct {
	mock.Mock
}

func (m *MockEscrowManager) CreateEscrow(ctx context.Context, tx pgx.Tx, p *payment.Payment) (*escrow.Escrow, error) {
	args := m.Called(ctx, tx, p)
	esc, _ := args.Get(0).(*escrow.Escrow)
	return esc, args.Error(1)
}

func (m *MockEscrowManager) ReleaseEscrow(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID, p *payment.Payment, releasedBy string) (*escrow.Escrow, error) {
	args := m.Called(ctx, tx, escrowID, p, releasedBy)
	esc, _ := args.Get(0).(*escrow.Escrow)
	return esc, args.Error(1)
}

func (m *MockEscrowManager) HandleDispute(ctx context.Context, details escrow.DisputeDetails) (*escrow.Escrow, error) {
	args := m.Called(ctx, details)
	esc, _ := args.Get(0).(*escrow.Escrow)
	return esc, args.Error(1)
}

func (m *MockEscrowManager) PersistDispute(ctx context.Context, tx pgx.Tx, esc *escrow.Escrow) error {
	return m.Called(ctx, tx, esc).Error(0)
}

func (m *MockEscrowManager) ReturnEscrow(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID, p *payment.Payment, actor, reason string) (*escrow.Escrow, error) {
	args := m.Called(ctx, tx, escrowID, p, actor, reason)
	esc, _ := args.Get(0).(*escrow.Escrow)
	return esc, args.Error(1)
}

func (m *MockEscrowManager) GetEscrow(ctx context.Context, escrowID uuid.UUID) (*escrow.Escrow, error) {
	args := m.Called(ctx, escrowID)
	esc, _ := args.Get(0).(*escrow.Escrow)
	return esc, args.Error(1)
}

type MockOutboxManager struct {
	mock.Mock
}

func (m *MockOutboxManager) RecordTransaction(ctx context.Context, tx pgx.Tx, req transaction.CreateRequest) error {
	return m.Called(ctx, tx, req).Error(0)
}

func (m *MockOutboxManager) AppendAudit(ctx context.Context, tx pgx.Tx, paymentID, transactionID uuid.UUID, entry transaction.AuditEntry) error {
	return m.Called(ctx, tx, paymentID, transactionID, entry).Error(0)
}

type MockFailureRecorder struct {
	mock.Mock
}

func (m *MockFailureRecorder) RecordFailure(ctx context.Context, p *payment.Payment, failureReason string) error {
	return m.Called(ctx, p, failureReason).Error(0)
}
