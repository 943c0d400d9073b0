package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pi-escrow-ledger/internal/api_gateway"
	"github.com/pi-escrow-ledger/internal/api_gateway/service"
	"github.com/pi-escrow-ledger/internal/config"
	"github.com/pi-escrow-ledger/internal/data/mongo"
	"github.com/pi-escrow-ledger/internal/data/postgres"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/logger"
	"github.com/pi-escrow-ledger/internal/payment_processor/components"
	"github.com/pi-escrow-ledger/internal/platform/cache"
	"github.com/pi-escrow-ledger/internal/platform/exchangerate"
	"github.com/pi-escrow-ledger/internal/platform/ledger"
	"github.com/pi-escrow-ledger/internal/platform/messaging/producers"
	"github.com/pi-escrow-ledger/internal/platform/persistence"
	"github.com/pi-escrow-ledger/internal/platform/timezone"
	"github.com/pi-escrow-ledger/internal/security"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	cipher, err := security.NewCipher(cfg.Encryption)
	if err != nil {
		log.Error("Failed to initialize encryption", "error", err)
		os.Exit(1)
	}

	// Migrations are owned by the payment processor.
	postgresDB, err := persistence.OpenPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	confirmationPublisher, err := producers.NewTopicProducer(appCtx, log, &cfg.Kafka, cfg.Kafka.ConfirmationTopic)
	if err != nil {
		log.Error("Failed to initialize confirmation Kafka producer", "error", err)
		os.Exit(1)
	}
	confirmationProducer := producers.NewConfirmationProducer(confirmationPublisher)

	escalationPublisher, err := producers.NewTopicProducer(appCtx, log, &cfg.Kafka, cfg.Kafka.EscalationTopic)
	if err != nil {
		log.Error("Failed to initialize escalation Kafka producer", "error", err)
		os.Exit(1)
	}
	escalationProducer := producers.NewEscalationProducer(escalationPublisher)

	// Initialize repositories
	paymentRepo := postgres.NewPaymentRepository(log, postgresDB, cipher)
	escrowRepo := postgres.NewEscrowRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB, cipher)
	txRepo := mongo.NewTransactionRepository(log, mongoDB.Database(), cipher)

	clock := shared.SystemClock{}

	paymentService := components.CreatePaymentService(
		postgresDB,
		components.Repositories{
			Payments: paymentRepo,
			Escrows:  escrowRepo,
			Outbox:   outboxRepo,
		},
		components.Externals{
			Ledger:     ledger.NewClient(cfg.Ledger, cfg.Resilience, log.With("component", "ledger_client")),
			Rates:      exchangerate.NewProvider(cfg.ExchangeRate, cfg.Resilience, cfg.Ledger.CallTimeout, log.With("component", "exchange_rate")),
			TimeZones:  timezone.NewProvider(),
			Escalation: escalationProducer,
		},
		clock,
		log,
		cfg,
	)
	transactionLedger := components.CreateTransactionLedger(txRepo, cfg.Regulatory, log)

	services := api_gateway.Services{
		Payments:      paymentService,
		Confirmations: service.NewConfirmationService(log, paymentService, confirmationProducer, clock),
		Transactions:  service.NewTransactionService(log, transactionLedger, paymentService),
	}

	if cfg.Redis.Address != "" {
		redisClient, err := cache.NewRedisClient(appCtx, cfg.Redis, log)
		if err != nil {
			log.Error("Failed to initialize Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		services.Idempotency = cache.NewIdempotencyStore(redisClient, cfg.Idempotency.TTL)
	} else {
		log.Warn("Redis not configured, Idempotency-Key headers will be ignored")
	}

	server := api_gateway.NewServer(log, cfg, services, clock)
	log.Info("REST server initialized")

	errChan := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Stop accepting requests before the stores go away
	var shutdownErr error
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
		shutdownErr = err
	}

	if err := confirmationProducer.Close(); err != nil {
		log.Error("Error closing confirmation Kafka producer", "error", err)
		shutdownErr = err
	}
	if err := escalationProducer.Close(); err != nil {
		log.Error("Error closing escalation Kafka producer", "error", err)
		shutdownErr = err
	}

	postgresDB.Close()

	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
		shutdownErr = err
	}

	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if shutdownErr != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
