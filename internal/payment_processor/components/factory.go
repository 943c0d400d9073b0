package components

import (
	"log/slog"

	"github.com/pi-escrow-ledger/internal/config"
	"github.com/pi-escrow-ledger/internal/domain/escrow"
	"github.com/pi-escrow-ledger/internal/domain/outbox"
	"github.com/pi-escrow-ledger/internal/domain/payment"
	"github.com/pi-escrow-ledger/internal/domain/rules"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/domain/transaction"
	"github.com/pi-escrow-ledger/internal/payment_processor/service"
)

// Repositories groups the stores the processor writes to.
type Repositories struct {
	Payments payment.Repository
	Escrows  escrow.Repository
	Outbox   outbox.Repository
}

// Externals groups the collaborators outside the engine.
type Externals struct {
	Ledger     service.LedgerClient
	Rates      service.ExchangeRateProvider
	TimeZones  rules.TimeZoneProvider
	Escalation service.SupportEscalationQueue
}

// NewRulesValidator binds the configured limits and trading window.
func NewRulesValidator(cfg config.RulesConfig, tz rules.TimeZoneProvider) *rules.Validator {
	return rules.NewValidator(
		rules.Limits{
			MinAmount:  cfg.MinAmount,
			MaxAmount:  cfg.MaxAmount,
			DailyLimit: cfg.DailyLimit,
		},
		rules.TradingWindow{
			StartHour:  cfg.TradingStartHour,
			EndHour:    cfg.TradingEndHour,
			ClosedDays: cfg.ClosedDays,
		},
		cfg.Timezone,
		tz,
	)
}

// CreateTransactionLedger creates the ledger with the configured regulatory tiers.
func CreateTransactionLedger(txRepo transaction.Repository, cfg config.RegulatoryConfig, logger *slog.Logger) *TransactionLedgerImpl {
	return NewTransactionLedger(txRepo, transaction.CategoryThresholds{
		HighValue:   cfg.HighValueThreshold,
		MediumValue: cfg.MediumValueThreshold,
	}, logger.With("component", "transaction_ledger"))
}

// CreatePaymentService creates the Payment Processor with all its
// dependencies. Operations are retried once on a version conflict.
func CreatePaymentService(
	db service.TxRunner,
	repos Repositories,
	ext Externals,
	clock shared.Clock,
	logger *slog.Logger,
	cfg *config.Config,
) service.PaymentService {
	validator := NewRulesValidator(cfg.Rules, ext.TimeZones)
	outboxManager := NewOutboxManager(repos.Outbox, logger.With("component", "outbox_manager"))
	escrowManager := NewEscrowManager(
		repos.Escrows,
		outboxManager,
		ext.Escalation,
		validator,
		cfg.Escrow,
		clock,
		logger.With("component", "escrow_manager"),
	)
	failureRecorder := NewFailureRecorder(db, repos.Payments, outboxManager, clock, logger)

	threshold := cfg.Escrow.Threshold
	baseService := service.NewPaymentService(service.Dependencies{
		DB:        db,
		Payments:  repos.Payments,
		Validator: validator,
		RequiresEscrow: func(p *payment.Payment) bool {
			return rules.RequiresEscrow(p.Amount, threshold)
		},
		Ledger:          ext.Ledger,
		Rates:           ext.Rates,
		EscrowManager:   escrowManager,
		OutboxManager:   outboxManager,
		FailureRecorder: failureRecorder,
		Clock:           clock,
	}, logger)

	return service.NewConflictRetryingService(baseService, logger)
}

// CreateConfirmationService bounds confirmation processing with a worker pool,
// falling back to the direct service when the pool cannot be created.
func CreateConfirmationService(base service.ConfirmationProcessor, cfg config.WorkerPoolConfig, logger *slog.Logger) service.ConfirmationProcessor {
	workerPoolService, err := service.NewWorkerPoolConfirmationService(
		base,
		service.WorkerPoolConfig{Size: cfg.Size},
		logger.With("component", "worker_pool"),
	)
	if err != nil {
		logger.Error("Failed to create worker pool service, falling back to base service", "error", err)
		return base
	}

	logger.Info("Created worker pool confirmation service", "pool_size", cfg.Size)
	return workerPoolService
}
