package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pi-escrow-ledger/internal/config"
	"github.com/pi-escrow-ledger/internal/data/mongo"
	"github.com/pi-escrow-ledger/internal/logger"
	"github.com/pi-escrow-ledger/internal/payment_processor/components"
	"github.com/pi-escrow-ledger/internal/platform/persistence"
	"github.com/pi-escrow-ledger/internal/security"
)

// ledgerEnv is the transaction ledger opened for a single command run.
type ledgerEnv struct {
	cfg     *config.Config
	log     *slog.Logger
	mongoDB *persistence.MongoDB
	txRepo  *mongo.TransactionRepository
	ledger  *components.TransactionLedgerImpl
}

func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	name, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadConfig(name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, logger.NewLogger(cfg), nil
}

func openLedger(ctx context.Context, cmd *cobra.Command) (*ledgerEnv, error) {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	cipher, err := security.NewCipher(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}

	mongoDB, err := persistence.NewMongoDB(ctx, log, &cfg.MongoDB)
	if err != nil {
		return nil, err
	}

	txRepo := mongo.NewTransactionRepository(log, mongoDB.Database(), cipher)
	return &ledgerEnv{
		cfg:     cfg,
		log:     log,
		mongoDB: mongoDB,
		txRepo:  txRepo,
		ledger:  components.CreateTransactionLedger(txRepo, cfg.Regulatory, log),
	}, nil
}

func (e *ledgerEnv) Close(ctx context.Context) {
	if err := e.mongoDB.Close(ctx); err != nil {
		e.log.Error("Error closing MongoDB connection", "error", err)
	}
}
