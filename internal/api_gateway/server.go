package api_gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pi-escrow-ledger/internal/api_gateway/handler"
	"github.com/pi-escrow-ledger/internal/api_gateway/middleware"
	"github.com/pi-escrow-ledger/internal/api_gateway/service"
	"github.com/pi-escrow-ledger/internal/config"
	"github.com/pi-escrow-ledger/internal/domain/shared"
)

// Services groups what the HTTP surface serves.
type Services struct {
	Payments      service.PaymentService
	Confirmations service.ConfirmationService
	Transactions  service.TransactionService

	// Idempotency is optional; without it Idempotency-Key headers are ignored.
	Idempotency middleware.IdempotencyStore
}

// Server handles HTTP requests and manages the application's lifecycle
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
	httpRouter *gin.Engine
}

// NewServer creates and configures a new HTTP server with the given services
func NewServer(log *slog.Logger, cfg *config.Config, services Services, clock shared.Clock) *Server {
	if cfg.Application.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	httpRouter := gin.New()

	setupRouter(log, httpRouter, handlers{
		payments:     handler.NewPaymentHandler(log, services.Payments, services.Confirmations),
		escrows:      handler.NewEscrowHandler(log, services.Payments, clock),
		transactions: handler.NewTransactionHandler(log, services.Transactions),
	}, services.Idempotency)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		logger:     log,
		httpServer: httpServer,
		httpRouter: httpRouter,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server, waiting at most the write timeout
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.httpServer.WriteTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}
	return nil
}
