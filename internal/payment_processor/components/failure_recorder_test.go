package components

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/pi-escrow-ledger/internal/domain/payment"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/domain/transaction"
)

func TestFailureRecorder_RecordFailure(t *testing.T) {
	tests := []struct {
		name       string
		status     payment.Status
		txErr      error
		setupMocks func(repo *MockPaymentRepo, outboxManager *MockOutboxManager, p *payment.Payment)
		wantStatus payment.Status
		wantErr    error
	}{
		{
			name:   "pending payment is marked failed",
			status: payment.StatusPending,
			setupMocks: func(repo *MockPaymentRepo, outboxManager *MockOutboxManager, p *payment.Payment) {
				repo.On("Update", mock.Anything, p, 1).Return(nil)
				outboxManager.On("RecordTransaction", mock.Anything, mock.Anything, mock.MatchedBy(func(req transaction.CreateRequest) bool {
					return req.ID == transaction.DeriveID(p.ID, transaction.TypePurchase, transaction.DiscriminatorFailed) &&
						req.Status == payment.StatusFailed &&
						req.ActorID == transaction.SystemActor &&
						req.Notes == "pi-ledger unavailable"
				})).Return(nil)
			},
			wantStatus: payment.StatusFailed,
		},
		{
			name:       "already failed",
			status:     payment.StatusFailed,
			wantStatus: payment.StatusFailed,
		},
		{
			name:       "terminal payment cannot fail",
			status:     payment.StatusCompleted,
			wantStatus: payment.StatusCompleted,
			wantErr:    shared.InvalidStateTransitionError{Entity: "payment"},
		},
		{
			name:       "transaction failure surfaces",
			status:     payment.StatusPending,
			txErr:      errors.New("db down"),
			wantStatus: payment.StatusFailed,
			wantErr:    errors.New("db down"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockPaymentRepo{}
			outboxManager := &MockOutboxManager{}
			recorder := NewFailureRecorder(fakeTxRunner{err: tt.txErr}, repo, outboxManager, shared.FixedClock{T: tradingHours}, testLogger())

			p := escrowPendingPayment(250)
			p.Status = tt.status
			p.Version = 1
			if tt.setupMocks != nil {
				tt.setupMocks(repo, outboxManager, p)
			}

			err := recorder.RecordFailure(context.Background(), p, "pi-ledger unavailable")

			switch {
			case tt.txErr != nil:
				assert.Equal(t, tt.txErr, err)
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantStatus, p.Status)
			repo.AssertExpectations(t)
			outboxManager.AssertExpectations(t)
		})
	}
}
