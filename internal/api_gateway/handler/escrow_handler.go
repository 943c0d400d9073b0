package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pi-escrow-ledger/internal/api_gateway/service"
	"github.com/pi-escrow-ledger/internal/domain/escrow"
	"github.com/pi-escrow-ledger/internal/domain/shared"
)

// EscrowHandler handles HTTP requests for escrow operations
type EscrowHandler struct {
	paymentService service.PaymentService
	clock          shared.Clock
	logger         *slog.Logger
}

// NewEscrowHandler creates a new escrow handler
func NewEscrowHandler(logger *slog.Logger, paymentService service.PaymentService, clock shared.Clock) *EscrowHandler {
	return &EscrowHandler{
		paymentService: paymentService,
		clock:          clock,
		logger:         logger,
	}
}

func (h *EscrowHandler) GetByID(c *gin.Context) {
	id, ok := parseIDParam(c, h.logger, "escrow")
	if !ok {
		return
	}

	e, err := h.paymentService.GetEscrow(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapEscrowToResponse(e))
}

// Release pays the escrowed funds out to the seller
func (h *EscrowHandler) Release(c *gin.Context) {
	id, ok := parseIDParam(c, h.logger, "escrow")
	if !ok {
		return
	}

	var req ReleaseEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.paymentService.ReleaseEscrow(c.Request.Context(), id, req.ReleasedBy)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapEscrowResult(result))
}

// Dispute opens a dispute on the escrow. The dispute time is the server's
// receipt time.
func (h *EscrowHandler) Dispute(c *gin.Context) {
	id, ok := parseIDParam(c, h.logger, "escrow")
	if !ok {
		return
	}

	var req RaiseDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.paymentService.HandleDispute(c.Request.Context(), escrow.DisputeDetails{
		EscrowID:  id,
		PaymentID: uuid.MustParse(req.PaymentID),
		RaisedBy:  req.RaisedBy,
		Reason:    req.Reason,
		Timestamp: h.clock.Now(),
	})
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapEscrowResult(result))
}
