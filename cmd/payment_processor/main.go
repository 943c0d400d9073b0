package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pi-escrow-ledger/internal/config"
	"github.com/pi-escrow-ledger/internal/data/mongo"
	"github.com/pi-escrow-ledger/internal/data/postgres"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/logger"
	"github.com/pi-escrow-ledger/internal/payment_processor/archival"
	"github.com/pi-escrow-ledger/internal/payment_processor/components"
	"github.com/pi-escrow-ledger/internal/payment_processor/consumer"
	"github.com/pi-escrow-ledger/internal/payment_processor/escrow_resumer"
	"github.com/pi-escrow-ledger/internal/payment_processor/outbox_poller"
	"github.com/pi-escrow-ledger/internal/payment_processor/service"
	"github.com/pi-escrow-ledger/internal/platform/cache"
	"github.com/pi-escrow-ledger/internal/platform/exchangerate"
	"github.com/pi-escrow-ledger/internal/platform/ledger"
	"github.com/pi-escrow-ledger/internal/platform/messaging/consumers"
	"github.com/pi-escrow-ledger/internal/platform/messaging/producers"
	"github.com/pi-escrow-ledger/internal/platform/persistence"
	"github.com/pi-escrow-ledger/internal/platform/timezone"
	"github.com/pi-escrow-ledger/internal/security"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("payment_processor")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Payment Processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	cipher, err := security.NewCipher(cfg.Encryption)
	if err != nil {
		log.Error("Failed to initialize encryption", "error", err)
		os.Exit(1)
	}

	// The processor owns the schema; NewPostgresDB applies pending migrations.
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	paymentRepo := postgres.NewPaymentRepository(log, postgresDB, cipher)
	escrowRepo := postgres.NewEscrowRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB, cipher)
	txRepo := mongo.NewTransactionRepository(log, mongoDB.Database(), cipher)
	if err := txRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to ensure transaction indexes", "error", err)
		os.Exit(1)
	}

	escalationPublisher, err := producers.NewTopicProducer(appCtx, log, &cfg.Kafka, cfg.Kafka.EscalationTopic)
	if err != nil {
		log.Error("Failed to initialize escalation Kafka producer", "error", err)
		os.Exit(1)
	}
	escalationProducer := producers.NewEscalationProducer(escalationPublisher)

	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}

	var locker *cache.Locker
	if cfg.Redis.Address != "" {
		redisClient, err := cache.NewRedisClient(appCtx, cfg.Redis, log)
		if err != nil {
			log.Error("Failed to initialize Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		locker = cache.NewLocker(redisClient)
	}

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
	confirmationService := components.CreateConfirmationService(paymentService, cfg.WorkerPool, log)
	if wpService, ok := confirmationService.(*service.WorkerPoolConfirmationService); ok {
		log.Info("Confirmation worker pool ready", "capacity", wpService.Capacity())
	}
	transactionLedger := components.CreateTransactionLedger(txRepo, cfg.Regulatory, log)

	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)
	confirmationHandler := consumer.NewConfirmationHandler(
		log.With("component", "confirmation_handler"),
		confirmationService,
		dlqProducer,
	)

	ledgerPublisher := outbox_poller.NewLedgerPublisher(outboxRepo, transactionLedger, log.With("component", "ledger_publisher"))
	poller := outbox_poller.NewPoller(&cfg.Outbox, outboxRepo, ledgerPublisher, log.With("component", "outbox_poller"))

	sweeper := archival.NewSweeper(txRepo, transactionLedger, locker, cfg.Archival, clock, log.With("component", "archival"))
	resumer := escrow_resumer.NewResumer(paymentRepo, paymentService, cfg.Escrow, log.With("component", "escrow_resumer"))

	errChan := make(chan error, 1)
	var wg sync.WaitGroup

	log.Info("Starting Kafka consumer",
		"topic", cfg.Kafka.ConfirmationTopic,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := kafkaConsumer.Subscribe(appCtx, confirmationHandler.HandleMessage); err != nil {
		errChan <- fmt.Errorf("kafka consumer error: %w", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Outbox Poller",
			"interval", cfg.Outbox.PollingInterval.String(),
			"batch_size", cfg.Outbox.BatchSize,
		)
		poller.Start(appCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Start(appCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		resumer.Start(appCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	cancelAppCtx()

	if wpService, ok := confirmationService.(*service.WorkerPoolConfirmationService); ok {
		log.Info("Shutting down worker pool", "running_workers", wpService.Running())
		wpService.Shutdown()
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	var closeErr error
	if dlqProducer != nil {
		if err := dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
			closeErr = err
		}
	}
	if err := escalationProducer.Close(); err != nil {
		log.Error("Error closing escalation Kafka producer", "error", err)
		closeErr = err
	}
	if err := kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
		closeErr = err
	}

	postgresDB.Close()

	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
		closeErr = err
	}

	if serviceErr != nil || closeErr != nil {
		log.Error("Payment Processor shutdown completed with errors")
		os.Exit(1)
	}
	log.Info("Payment Processor shutdown completed successfully")
}
