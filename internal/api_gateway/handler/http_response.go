package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pi-escrow-ledger/internal/api_gateway/middleware"
	"github.com/pi-escrow-ledger/internal/domain/shared"
)

// Response represents a standard API response
type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// ErrorInfo represents error information in a response
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewResponse creates a new response with data
func NewResponse(data interface{}) *Response {
	return &Response{
		Data: data,
	}
}

// NewErrorResponse creates a new error response
func NewErrorResponse(code, message string) *Response {
	return &Response{
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// RespondWithData sends a JSON response with data
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	response := NewResponse(data)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondWithError sends a JSON response with an error
func RespondWithError(c *gin.Context, statusCode int, code, message string) {
	response := NewErrorResponse(code, message)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondOK sends a 200 OK response with data
func RespondOK(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusOK, data)
}

// RespondCreated sends a 201 Created response with data
func RespondCreated(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusCreated, data)
}

// RespondAccepted sends a 202 Accepted response with data.
func RespondAccepted(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusAccepted, data)
}

// RespondBadRequest sends a 400 Bad Request response with an error
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, string(shared.CodeInvalidRequest), message)
}

// StatusFor maps a domain error code to its HTTP status.
func StatusFor(code shared.ErrorCode) int {
	switch code {
	case shared.CodeAmountOutOfRange, shared.CodeDailyLimitExceeded, shared.CodeOutsideTradingHours,
		shared.CodeWeekendRestricted, shared.CodeEscrowNotRequired, shared.CodeInvalidRequest,
		shared.CodeDisputeWindowExpired:
		return http.StatusUnprocessableEntity
	case shared.CodeNotFound:
		return http.StatusNotFound
	case shared.CodeAmountMismatch, shared.CodeInvalidStateTransition,
		shared.CodeConcurrencyConflict, shared.CodeAlreadyReleased:
		return http.StatusConflict
	case shared.CodeExternalService:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondDomainError sends the status and reason code for err. Internal
// failures are logged and answered without detail.
func RespondDomainError(c *gin.Context, logger *slog.Logger, err error) {
	code := shared.CodeOf(err)
	status := StatusFor(code)

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			"correlation_id", middleware.GetCorrelationID(c),
			"code", code,
			"error", err,
		)
	}

	switch code {
	case shared.CodeInternal, shared.CodeDecryptionFailed:
		RespondWithError(c, status, string(code), "An internal server error occurred")
	case shared.CodeExternalService:
		message := "A dependency is unavailable"
		var extErr shared.ExternalServiceError
		if errors.As(err, &extErr) {
			message = extErr.Service + " is unavailable"
		}
		RespondWithError(c, status, string(code), message)
	default:
		RespondWithError(c, status, string(code), messageOf(err))
	}
}

func messageOf(err error) string {
	var validationErr shared.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Message
	}
	return err.Error()
}
