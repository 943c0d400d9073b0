package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pi-escrow-ledger/internal/api_gateway/handler"
	"github.com/pi-escrow-ledger/internal/api_gateway/middleware"
)

type handlers struct {
	payments     *handler.PaymentHandler
	escrows      *handler.EscrowHandler
	transactions *handler.TransactionHandler
}

// setupRouter configures API routes and middleware for the application
func setupRouter(logger *slog.Logger, r *gin.Engine, h handlers, idempotency middleware.IdempotencyStore) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))

	v1 := r.Group("/api/v1")
	if idempotency != nil {
		v1.Use(middleware.Idempotency(idempotency, logger))
	}
	{
		payments := v1.Group("/payments")
		{
			payments.POST("", h.payments.Create)
			payments.GET("/:id", h.payments.GetByID)
			payments.POST("/:id/confirmations", h.payments.Confirm)
			payments.POST("/:id/cancel", h.payments.Cancel)
			payments.POST("/:id/dispute-resolution", h.payments.ResolveDispute)
			payments.GET("/:id/transactions", h.transactions.GetByPaymentID)
		}

		escrows := v1.Group("/escrows")
		{
			escrows.GET("/:id", h.escrows.GetByID)
			escrows.POST("/:id/release", h.escrows.Release)
			escrows.POST("/:id/disputes", h.escrows.Dispute)
		}

		transactions := v1.Group("/transactions")
		{
			transactions.GET("/:id", h.transactions.GetByID)
			transactions.GET("/:id/report", h.transactions.Report)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
