package components

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pi-escrow-ledger/internal/domain/payment"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/domain/transaction"
)

var testThresholds = transaction.CategoryThresholds{
	HighValue:   decimal.NewFromInt(5000),
	MediumValue: decimal.NewFromInt(1000),
}

func purchaseRequest(amount int64) transaction.CreateRequest {
	p := escrowPendingPayment(amount)
	p.Status = payment.StatusCompleted
	req := transaction.RequestForPayment(p, transaction.TypePurchase, "tx-1", p.BuyerID, tradingHours)
	req.Details = transaction.PurchaseDetailsFor(p)
	return req
}

func TestTransactionLedger_CreateTransaction(t *testing.T) {
	tests := []struct {
		name         string
		amount       int64
		createErr    error
		setupMocks   func(repo *MockTransactionRepo, req transaction.CreateRequest)
		wantCategory transaction.Category
		wantErr      string
	}{
		{
			name:         "standard purchase",
			amount:       250,
			wantCategory: transaction.CategoryStandard,
		},
		{
			name:         "medium value at lower bound",
			amount:       1000,
			wantCategory: transaction.CategoryMediumValue,
		},
		{
			name:         "high value",
			amount:       7500,
			wantCategory: transaction.CategoryHighValue,
		},
		{
			name:      "duplicate returns stored record",
			amount:    250,
			createErr: transaction.ErrDuplicateTransaction{},
			setupMocks: func(repo *MockTransactionRepo, req transaction.CreateRequest) {
				stored, _ := transaction.New(req, testThresholds)
				stored.Metadata.Notes = "stored"
				repo.On("GetByID", mock.Anything, req.ID).Return(stored, nil)
			},
			wantCategory: transaction.CategoryStandard,
		},
		{
			name:      "store failure",
			amount:    250,
			createErr: errors.New("no reachable servers"),
			wantErr:   "no reachable servers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockTransactionRepo{}
			ledger := NewTransactionLedger(repo, testThresholds, testLogger())
			req := purchaseRequest(tt.amount)

			createErr := tt.createErr
			if errors.Is(createErr, transaction.ErrDuplicateTransaction{}) {
				createErr = transaction.ErrDuplicateTransaction{TransactionID: req.ID}
			}
			repo.On("Create", mock.Anything, mock.AnythingOfType("*transaction.Transaction")).Return(createErr)
			if tt.setupMocks != nil {
				tt.setupMocks(repo, req)
			}

			got, err := ledger.CreateTransaction(context.Background(), req)

			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, req.ID, got.ID)
			assert.Equal(t, tt.wantCategory, got.Metadata.RegulatoryCategory)
			require.Len(t, got.Metadata.AuditTrail, 1)
			assert.Equal(t, transaction.ActionCreated, got.Metadata.AuditTrail[0].Action)
			assert.Equal(t, "buyer-1", got.Metadata.AuditTrail[0].UserID)
			repo.AssertExpectations(t)
		})
	}

	t.Run("invalid details never reach the store", func(t *testing.T) {
		repo := &MockTransactionRepo{}
		ledger := NewTransactionLedger(repo, testThresholds, testLogger())
		req := purchaseRequest(250)
		req.Details = transaction.Details{}

		_, err := ledger.CreateTransaction(context.Background(), req)

		assert.ErrorIs(t, err, shared.ValidationError{Code: shared.CodeInvalidRequest})
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestTransactionLedger_ArchiveTransaction(t *testing.T) {
	id := uuid.New()
	now := time.Date(2028, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("archives once with a single audit write", func(t *testing.T) {
		repo := &MockTransactionRepo{}
		ledger := NewTransactionLedger(repo, testThresholds, testLogger())

		repo.On("MarkArchived", mock.Anything, id, now).Return(true, nil).Once()

		archived, err := ledger.ArchiveTransaction(context.Background(), id, now)

		require.NoError(t, err)
		assert.True(t, archived)
		repo.AssertExpectations(t)
		repo.AssertNotCalled(t, "AppendAudit", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("repository failure", func(t *testing.T) {
		repo := &MockTransactionRepo{}
		ledger := NewTransactionLedger(repo, testThresholds, testLogger())
		mongoErr := errors.New("mongo unavailable")

		repo.On("MarkArchived", mock.Anything, id, now).Return(false, mongoErr).Once()

		archived, err := ledger.ArchiveTransaction(context.Background(), id, now)

		assert.False(t, archived)
		assert.ErrorIs(t, err, mongoErr)
		repo.AssertNotCalled(t, "AppendAudit", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("already archived is a no-op", func(t *testing.T) {
		repo := &MockTransactionRepo{}
		ledger := NewTransactionLedger(repo, testThresholds, testLogger())

		repo.On("MarkArchived", mock.Anything, id, now).Return(false, nil).Once()

		archived, err := ledger.ArchiveTransaction(context.Background(), id, now)

		require.NoError(t, err)
		assert.False(t, archived)
		repo.AssertNotCalled(t, "AppendAudit", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestTransactionLedger_GenerateRegulatoryReport(t *testing.T) {
	repo := &MockTransactionRepo{}
	ledger := NewTransactionLedger(repo, testThresholds, testLogger())
	req := purchaseRequest(6000)
	req.ExternalLedgerRef = "intent-1"
	record, err := transaction.New(req, testThresholds)
	require.NoError(t, err)

	repo.On("GetByID", mock.Anything, record.ID).Return(record, nil)
	missing := uuid.New()
	repo.On("GetByID", mock.Anything, missing).Return(nil, shared.NotFoundError{Resource: "transaction", ID: missing.String()})

	report, err := ledger.GenerateRegulatoryReport(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.CategoryHighValue, report.Category)
	assert.Equal(t, "UTC", report.Jurisdiction)
	assert.True(t, decimal.NewFromInt(90000).Equal(report.AmountEGP))
	assert.Equal(t, "intent-1", report.ExternalLedgerRef)
	assert.Len(t, record.Metadata.AuditTrail, 1, "report generation must not modify the record")

	_, err = ledger.GenerateRegulatoryReport(context.Background(), missing)
	assert.ErrorIs(t, err, shared.NotFoundError{Resource: "transaction"})
}
