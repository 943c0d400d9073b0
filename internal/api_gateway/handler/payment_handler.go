package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pi-escrow-ledger/internal/api_gateway/middleware"
	"github.com/pi-escrow-ledger/internal/api_gateway/service"
	processor "github.com/pi-escrow-ledger/internal/payment_processor/service"
)

// PaymentHandler handles HTTP requests for payment operations
type PaymentHandler struct {
	paymentService      service.PaymentService
	confirmationService service.ConfirmationService
	logger              *slog.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(logger *slog.Logger, paymentService service.PaymentService, confirmationService service.ConfirmationService) *PaymentHandler {
	return &PaymentHandler{
		paymentService:      paymentService,
		confirmationService: confirmationService,
		logger:              logger,
	}
}

// Create validates and registers a new payment with the external ledger
func (h *PaymentHandler) Create(c *gin.Context) {
	var req InitializePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Info("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		RespondBadRequest(c, "Invalid amount")
		return
	}

	p, err := h.paymentService.InitializePayment(c.Request.Context(), processor.InitializeRequest{
		Amount:                 amount,
		BuyerID:                req.BuyerID,
		SellerID:               req.SellerID,
		ListingID:              req.ListingID,
		TaxID:                  req.TaxID,
		MerchantVerificationID: req.MerchantVerificationID,
		CorrelationID:          middleware.GetCorrelationID(c),
	})
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondCreated(c, mapPaymentToResponse(p))
}

// GetByID retrieves payment details by its ID
func (h *PaymentHandler) GetByID(c *gin.Context) {
	id, ok := parseIDParam(c, h.logger, "payment")
	if !ok {
		return
	}

	p, err := h.paymentService.GetPayment(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapPaymentToResponse(p))
}

// Confirm queues a ledger confirmation for settlement and answers 202
func (h *PaymentHandler) Confirm(c *gin.Context) {
	id, ok := parseIDParam(c, h.logger, "payment")
	if !ok {
		return
	}

	var req ConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	confirmation, err := h.confirmationService.EnqueueConfirmation(c.Request.Context(), id, req.ExternalTxID, middleware.GetCorrelationID(c))
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondAccepted(c, ConfirmationAcceptedResponse{
		PaymentID:    confirmation.PaymentID.String(),
		ExternalTxID: confirmation.ExternalTxID,
		Status:       "QUEUED",
	})
}

// Cancel cancels a payment that has not been settled
func (h *PaymentHandler) Cancel(c *gin.Context) {
	id, ok := parseIDParam(c, h.logger, "payment")
	if !ok {
		return
	}

	var req CancelPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	p, err := h.paymentService.CancelPayment(c.Request.Context(), id, req.Actor, req.Reason)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapPaymentToResponse(p))
}

// ResolveDispute applies the support team's decision on a disputed payment
func (h *PaymentHandler) ResolveDispute(c *gin.Context) {
	id, ok := parseIDParam(c, h.logger, "payment")
	if !ok {
		return
	}

	var req ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.paymentService.ResolveDispute(c.Request.Context(), id, processor.DisputeOutcome(req.Outcome), req.Actor, req.Reason)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapEscrowResult(result))
}

func mapEscrowResult(result *processor.EscrowResult) EscrowResultResponse {
	return EscrowResultResponse{
		Payment: mapPaymentToResponse(result.Payment),
		Escrow:  mapEscrowToResponse(result.Escrow),
	}
}

func parseIDParam(c *gin.Context, logger *slog.Logger, resource string) (uuid.UUID, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		logger.Info("Invalid "+resource+" ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid "+resource+" ID")
		return uuid.Nil, false
	}
	return id, true
}
