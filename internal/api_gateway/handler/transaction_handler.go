package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/pi-escrow-ledger/internal/api_gateway/service"
)

// TransactionHandler handles HTTP requests for ledger transactions
type TransactionHandler struct {
	transactionService service.TransactionService
	logger             *slog.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(logger *slog.Logger, transactionService service.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		logger:             logger,
	}
}

// GetByID retrieves transaction details by its ID, returns 404 if not found
func (h *TransactionHandler) GetByID(c *gin.Context) {
	id, ok := parseIDParam(c, h.logger, "transaction")
	if !ok {
		return
	}

	tx, err := h.transactionService.GetTransaction(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapTransactionToResponse(tx))
}

// GetByPaymentID lists the transactions recorded for a payment
func (h *TransactionHandler) GetByPaymentID(c *gin.Context) {
	paymentID, ok := parseIDParam(c, h.logger, "payment")
	if !ok {
		return
	}

	txs, err := h.transactionService.ListByPayment(c.Request.Context(), paymentID)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	transactions := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		transactions = append(transactions, mapTransactionToResponse(tx))
	}

	RespondOK(c, TransactionListResponse{Transactions: transactions})
}

// Report exports the regulatory report of a transaction
func (h *TransactionHandler) Report(c *gin.Context) {
	id, ok := parseIDParam(c, h.logger, "transaction")
	if !ok {
		return
	}

	report, err := h.transactionService.GetReport(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, report)
}
