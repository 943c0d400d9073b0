package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pi-escrow-ledger/internal/config"
	"github.com/pi-escrow-ledger/internal/domain/outbox"
	"github.com/pi-escrow-ledger/internal/domain/shared"
)

// Poller drains pending outbox messages into the transaction ledger
type Poller struct {
	outboxRepo       outbox.Repository
	ledgerPublisher  LedgerPublisher
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	cfg *config.OutboxConfig,
	outboxRepo outbox.Repository,
	ledgerPublisher LedgerPublisher,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		outboxRepo:       outboxRepo,
		ledgerPublisher:  ledgerPublisher,
		logger:           logger,
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// Start begins polling until context is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting Outbox Poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox Poller stopping due to context cancellation.")
			return
		case <-ticker.C:
			p.logger.Debug("Outbox Poller tick: processing pending messages")
			if err := p.processPendingMessages(ctx); err != nil {
				p.logger.Error("Error during batch processing of pending outbox messages", "error", err)
			}
		}
	}
}

// processPendingMessages applies one FIFO batch. Once a message for a
// payment fails, that payment's later messages wait for the next tick.
func (p *Poller) processPendingMessages(ctx context.Context) error {
	messages, err := p.outboxRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending outbox messages: %w", err)
	}

	if len(messages) == 0 {
		p.logger.Debug("No pending outbox messages found.")
		return nil
	}

	p.logger.Info("Fetched pending outbox messages", "count", len(messages))

	blocked := make(map[uuid.UUID]bool)
	for _, msg := range messages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger := p.logger.With("outbox_id", msg.ID, "payment_id", msg.PaymentID.String())

		if blocked[msg.PaymentID] {
			logger.Debug("Deferring outbox message behind an earlier failure")
			continue
		}

		err := p.ledgerPublisher.PublishToLedger(ctx, msg)
		if err == nil {
			continue
		}
		blocked[msg.PaymentID] = true

		if errors.Is(err, ErrPoisonMessage) {
			logger.Error("Outbox message failed permanently", "error", err)
			continue
		}

		logger.Error("Failed to apply outbox message to ledger", "current_attempts", msg.Attempts, "error", err)

		if errInc := p.outboxRepo.IncrementAttempts(ctx, msg.ID); errInc != nil {
			logger.Error("Failed to increment attempts for outbox message", "error", errInc)
			continue
		}

		if msg.Attempts+1 >= p.maxRetryAttempts {
			logger.Warn("Max retry attempts reached for outbox message, marking as FAILED_TO_PUBLISH",
				"attempts_made", msg.Attempts+1,
			)
			if errUpdate := p.outboxRepo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusFailedToPublish); errUpdate != nil {
				logger.Error("Failed to update outbox status to FAILED_TO_PUBLISH after max retries", "error", errUpdate)
			}
		}
	}
	return nil
}
