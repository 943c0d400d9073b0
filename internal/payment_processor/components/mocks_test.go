package components

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
	"github.com/pi-escrow-ledger/internal/domain/outbox"
	"github.com/pi-escrow-ledger/internal/domain/payment"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/domain/transaction"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTxRunner struct {
	err error
}

func (r fakeTxRunner) ExecuteTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	if r.err != nil {
		return r.err
	}
	return fn(nil)
}

type MockOutboxRepo struct {
	mock.Mock
}

func (m *MockOutboxRepo) Create(ctx context.Context, message *outbox.Message) error {
	return m.Called(ctx, message).Error(0)
}

func (m *MockOutboxRepo) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepo) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockOutboxRepo) IncrementAttempts(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOutboxRepo) WithTx(tx pgx.Tx) outbox.Repository {
	args := m.Called(tx)
	return args.Get(0).(outbox.Repository)
}

type MockEscrowRepo struct {
	mock.Mock
}

func (m *MockEscrowRepo) Create(ctx context.Context, e *escrow.Escrow) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockEscrowRepo) GetByID(ctx context.Context, id uuid.UUID) (*escrow.Escrow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Escrow), args.Error(1)
}

func (m *MockEscrowRepo) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*escrow.Escrow, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Escrow), args.Error(1)
}

func (m *MockEscrowRepo) Update(ctx context.Context, e *escrow.Escrow, expectedVersion int) error {
	return m.Called(ctx, e, expectedVersion).Error(0)
}

func (m *MockEscrowRepo) WithTx(pgx.Tx) escrow.Repository {
	return m
}

type MockPaymentRepo struct {
	mock.Mock
}

func (m *MockPaymentRepo) Create(ctx context.Context, p *payment.Payment) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockPaymentRepo) GetByExternalTxID(ctx context.Context, externalTxID string) (*payment.Payment, error) {
	args := m.Called(ctx, externalTxID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockPaymentRepo) Update(ctx context.Context, p *payment.Payment, expectedVersion int) error {
	return m.Called(ctx, p, expectedVersion).Error(0)
}

func (m *MockPaymentRepo) ListByStatus(ctx context.Context, status payment.Status, limit int) ([]*payment.Payment, error) {
	args := m.Called(ctx, status, limit)
	payments, _ := args.Get(0).([]*payment.Payment)
	return payments, args.Error(1)
}

func (m *MockPaymentRepo) SumBuyerAmountSince(ctx context.Context, buyerID string, since time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, buyerID, since)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockPaymentRepo) WithTx(pgx.Tx) payment.Repository {
	return m
}

type MockTransactionRepo struct {
	mock.Mock
}

func (m *MockTransactionRepo) Create(ctx context.Context, tx *transaction.Transaction) error {
	return m.Called(ctx, tx).Error(0)
}

func (m *MockTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) ListByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]*transaction.Transaction, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) AppendAudit(ctx context.Context, id uuid.UUID, entry transaction.AuditEntry) error {
	return m.Called(ctx, id, entry).Error(0)
}

func (m *MockTransactionRepo) ListArchivalCandidates(ctx context.Context, createdBefore time.Time, limit int) ([]*transaction.Transaction, error) {
	args := m.Called(ctx, createdBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) MarkArchived(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepo) DeleteExpired(ctx context.Context, createdBefore time.Time) (int64, error) {
	args := m.Called(ctx, createdBefore)
	return args.Get(0).(int64), args.Error(1)
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

type MockEscalationQueue struct {
	mock.Mock
}

func (m *MockEscalationQueue) Escalate(ctx context.Context, esc *escrow.Escrow, details escrow.DisputeDetails) (string, error) {
	args := m.Called(ctx, esc, details)
	return args.String(0), args.Error(1)
}
