package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/pi-escrow-ledger/internal/domain/payment"
)

// WorkerPoolConfirmationService bounds how many confirmations are settled
// concurrently. Callers block until their confirmation has been processed.
type WorkerPoolConfirmationService struct {
	base   ConfirmationProcessor
	pool   *ants.Pool
	logger *slog.Logger
}

type WorkerPoolConfig struct {
	Size int
}

type confirmationResult struct {
	payment *payment.Payment
	err     error
}

func NewWorkerPoolConfirmationService(
	base ConfirmationProcessor,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolConfirmationService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolConfirmationService{
		base:   base,
		pool:   pool,
		logger: logger,
	}, nil
}

// ProcessPayment runs the base ProcessPayment on a pool worker.
func (s *WorkerPoolConfirmationService) ProcessPayment(ctx context.Context, paymentID uuid.UUID, externalTxID string) (*payment.Payment, error) {
	s.logger.Debug("Submitting confirmation to worker pool",
		"payment_id", paymentID.String(),
		"external_tx_id", externalTxID,
	)

	resultChan := make(chan confirmationResult, 1)

	err := s.pool.Submit(func() {
		p, err := s.base.ProcessPayment(ctx, paymentID, externalTxID)
		resultChan <- confirmationResult{payment: p, err: err}
	})
	if err != nil {
		s.logger.Error("Failed to submit confirmation to worker pool",
			"payment_id", paymentID.String(),
			"error", err,
		)
		return nil, err
	}

	select {
	case result := <-resultChan:
		return result.payment, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown releases the pool's workers.
func (s *WorkerPoolConfirmationService) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolConfirmationService) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolConfirmationService) Capacity() int {
	return s.pool.Cap()
}
