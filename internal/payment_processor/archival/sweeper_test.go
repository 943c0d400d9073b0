package archival

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pi-escrow-ledger/internal/config"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/domain/transaction"
	"github.com/pi-escrow-ledger/internal/platform/cache"
)

type MockTransactionRepo struct {
	mock.Mock
}

func (m *MockTransactionRepo) Create(ctx context.Context, tx *transaction.Transaction) error {
	return m.Called(ctx, tx).Error(0)
}

func (m *MockTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	args := m.Called(ctx, id)
	tx, _ := args.Get(0).(*transaction.Transaction)
	return tx, args.Error(1)
}

func (m *MockTransactionRepo) ListByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]*transaction.Transaction, error) {
	args := m.Called(ctx, paymentID)
	txs, _ := args.Get(0).([]*transaction.Transaction)
	return txs, args.Error(1)
}

func (m *MockTransactionRepo) AppendAudit(ctx context.Context, id uuid.UUID, entry transaction.AuditEntry) error {
	return m.Called(ctx, id, entry).Error(0)
}

func (m *MockTransactionRepo) ListArchivalCandidates(ctx context.Context, createdBefore time.Time, limit int) ([]*transaction.Transaction, error) {
	args := m.Called(ctx, createdBefore, limit)
	txs, _ := args.Get(0).([]*transaction.Transaction)
	return txs, args.Error(1)
}

func (m *MockTransactionRepo) MarkArchived(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepo) DeleteExpired(ctx context.Context, createdBefore time.Time) (int64, error) {
	args := m.Called(ctx, createdBefore)
	return args.Get(0).(int64), args.Error(1)
}

type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) ArchiveTransaction(ctx context.Context, transactionID uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(ctx, transactionID, now)
	return args.Bool(0), args.Error(1)
}

var sweepTime = time.Date(2026, 3, 4, 3, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func oldTransaction(age time.Duration) *transaction.Transaction {
	return &transaction.Transaction{ID: uuid.New(), CreatedAt: sweepTime.Add(-age)}
}

func TestSweeper_ArchiveEligible(t *testing.T) {
	threeYears := 3 * 365 * 24 * time.Hour
	cutoff := transaction.ArchivalCutoff(sweepTime)

	tests := []struct {
		name       string
		cfg        config.ArchivalConfig
		setupMocks func(repo *MockTransactionRepo, archiver *MockArchiver)
		want       SweepResult
		wantErr    string
	}{
		{
			name: "archives every page",
			cfg:  config.ArchivalConfig{BatchSize: 2},
			setupMocks: func(repo *MockTransactionRepo, archiver *MockArchiver) {
				a, b, c := oldTransaction(threeYears), oldTransaction(threeYears), oldTransaction(threeYears)
				repo.On("ListArchivalCandidates", mock.Anything, cutoff, 2).Return([]*transaction.Transaction{a, b}, nil).Once()
				repo.On("ListArchivalCandidates", mock.Anything, cutoff, 2).Return([]*transaction.Transaction{c}, nil).Once()
				archiver.On("ArchiveTransaction", mock.Anything, mock.Anything, sweepTime).Return(true, nil).Times(3)
			},
			want: SweepResult{Scanned: 3, Archived: 3},
		},
		{
			name: "already archived by a concurrent sweep",
			cfg:  config.ArchivalConfig{BatchSize: 10},
			setupMocks: func(repo *MockTransactionRepo, archiver *MockArchiver) {
				a := oldTransaction(threeYears)
				repo.On("ListArchivalCandidates", mock.Anything, cutoff, 10).Return([]*transaction.Transaction{a}, nil).Once()
				archiver.On("ArchiveTransaction", mock.Anything, a.ID, sweepTime).Return(false, nil).Once()
			},
			want: SweepResult{Scanned: 1, Skipped: 1},
		},
		{
			name: "record exactly two years old is left alone",
			cfg:  config.ArchivalConfig{BatchSize: 10},
			setupMocks: func(repo *MockTransactionRepo, _ *MockArchiver) {
				edge := &transaction.Transaction{ID: uuid.New(), CreatedAt: sweepTime.AddDate(-2, 0, 0)}
				repo.On("ListArchivalCandidates", mock.Anything, cutoff, 10).Return([]*transaction.Transaction{edge}, nil).Once()
			},
			want: SweepResult{Scanned: 1, Skipped: 1},
		},
		{
			name: "failures are collected and a full page without progress ends the sweep",
			cfg:  config.ArchivalConfig{BatchSize: 1},
			setupMocks: func(repo *MockTransactionRepo, archiver *MockArchiver) {
				a := oldTransaction(threeYears)
				repo.On("ListArchivalCandidates", mock.Anything, cutoff, 1).Return([]*transaction.Transaction{a}, nil).Once()
				archiver.On("ArchiveTransaction", mock.Anything, a.ID, sweepTime).Return(false, errors.New("mongo unavailable")).Once()
			},
			want:    SweepResult{Scanned: 1},
			wantErr: "mongo unavailable",
		},
		{
			name: "listing failure",
			cfg:  config.ArchivalConfig{BatchSize: 10},
			setupMocks: func(repo *MockTransactionRepo, _ *MockArchiver) {
				repo.On("ListArchivalCandidates", mock.Anything, cutoff, 10).Return(nil, errors.New("cursor error")).Once()
			},
			wantErr: "failed to list archival candidates",
		},
		{
			name: "expires archived records past retention",
			cfg:  config.ArchivalConfig{BatchSize: 10, EnforceRetentionExpiry: true},
			setupMocks: func(repo *MockTransactionRepo, _ *MockArchiver) {
				repo.On("ListArchivalCandidates", mock.Anything, cutoff, 10).Return([]*transaction.Transaction{}, nil).Once()
				repo.On("DeleteExpired", mock.Anything, transaction.RetentionCutoff(sweepTime)).Return(int64(4), nil).Once()
			},
			want: SweepResult{Expired: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockTransactionRepo{}
			archiver := &MockArchiver{}
			tt.setupMocks(repo, archiver)
			sweeper := NewSweeper(repo, archiver, nil, tt.cfg, shared.FixedClock{T: sweepTime}, testLogger())

			result, err := sweeper.ArchiveEligible(context.Background(), sweepTime)

			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, result)
			repo.AssertExpectations(t)
			archiver.AssertExpectations(t)
		})
	}
}

func TestSweeper_RunLocked(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := cache.NewLocker(client)
	cfg := config.ArchivalConfig{BatchSize: 10, LockTTL: time.Minute}

	t.Run("sweeps when the lock is free and releases it", func(t *testing.T) {
		repo := &MockTransactionRepo{}
		repo.On("ListArchivalCandidates", mock.Anything, mock.Anything, 10).Return([]*transaction.Transaction{}, nil).Once()
		sweeper := NewSweeper(repo, &MockArchiver{}, locker, cfg, shared.FixedClock{T: sweepTime}, testLogger())

		ran, err := sweeper.RunLocked(context.Background())

		require.NoError(t, err)
		assert.True(t, ran)
		assert.False(t, mr.Exists(lockName))
		repo.AssertExpectations(t)
	})

	t.Run("skips while another replica holds the lock", func(t *testing.T) {
		held, err := locker.TryLock(context.Background(), lockName, time.Minute)
		require.NoError(t, err)
		require.NotNil(t, held)
		defer func() { _ = held.Unlock(context.Background()) }()

		repo := &MockTransactionRepo{}
		sweeper := NewSweeper(repo, &MockArchiver{}, locker, cfg, shared.FixedClock{T: sweepTime}, testLogger())

		ran, err := sweeper.RunLocked(context.Background())

		require.NoError(t, err)
		assert.False(t, ran)
		repo.AssertNotCalled(t, "ListArchivalCandidates", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestSweeper_Start(t *testing.T) {
	repo := &MockTransactionRepo{}
	repo.On("ListArchivalCandidates", mock.Anything, mock.Anything, 5).Return([]*transaction.Transaction{}, nil)
	cfg := config.ArchivalConfig{Interval: 10 * time.Millisecond, BatchSize: 5}
	sweeper := NewSweeper(repo, &MockArchiver{}, nil, cfg, shared.FixedClock{T: sweepTime}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
	repo.AssertCalled(t, "ListArchivalCandidates", mock.Anything, mock.Anything, 5)
}
