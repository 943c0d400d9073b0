package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pi-escrow-ledger/internal/api_gateway/middleware"
	"github.com/pi-escrow-ledger/internal/domain/shared"
)

func TestRespondDomainError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    shared.ErrorCode
		wantMessage string
	}{
		{
			name:        "validation",
			err:         shared.ValidationError{Code: shared.CodeDailyLimitExceeded, Message: "daily limit of 50000 Pi exceeded"},
			wantStatus:  http.StatusUnprocessableEntity,
			wantCode:    shared.CodeDailyLimitExceeded,
			wantMessage: "daily limit of 50000 Pi exceeded",
		},
		{
			name:       "wrapped not found",
			err:        fmt.Errorf("loading: %w", shared.NotFoundError{Resource: "payment", ID: "x"}),
			wantStatus: http.StatusNotFound,
			wantCode:   shared.CodeNotFound,
		},
		{
			name:       "amount mismatch",
			err:        shared.AmountMismatchError{PaymentID: uuid.New(), Expected: decimal.NewFromInt(5), Actual: decimal.NewFromInt(4)},
			wantStatus: http.StatusConflict,
			wantCode:   shared.CodeAmountMismatch,
		},
		{
			name:       "invalid transition",
			err:        shared.InvalidStateTransitionError{Entity: "payment", From: "COMPLETED", To: "CANCELLED"},
			wantStatus: http.StatusConflict,
			wantCode:   shared.CodeInvalidStateTransition,
		},
		{
			name:       "concurrency conflict",
			err:        shared.ConcurrencyConflictError{Entity: "payment", ID: uuid.New()},
			wantStatus: http.StatusConflict,
			wantCode:   shared.CodeConcurrencyConflict,
		},
		{
			name:       "dispute window expired",
			err:        shared.DisputeWindowExpiredError{EscrowID: uuid.New(), ElapsedHours: 49, WindowHours: 48},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   shared.CodeDisputeWindowExpired,
		},
		{
			name:       "already released",
			err:        shared.AlreadyReleasedError{EscrowID: uuid.New()},
			wantStatus: http.StatusConflict,
			wantCode:   shared.CodeAlreadyReleased,
		},
		{
			name:        "external service",
			err:         shared.ExternalServiceError{Service: "pi_ledger", Err: errors.New("timeout")},
			wantStatus:  http.StatusServiceUnavailable,
			wantCode:    shared.CodeExternalService,
			wantMessage: "pi_ledger is unavailable",
		},
		{
			name:        "decryption failed hides detail",
			err:         shared.DecryptionFailedError{Reason: "tag mismatch"},
			wantStatus:  http.StatusInternalServerError,
			wantCode:    shared.CodeDecryptionFailed,
			wantMessage: "An internal server error occurred",
		},
		{
			name:        "unclassified",
			err:         errors.New("connection reset"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    shared.CodeInternal,
			wantMessage: "An internal server error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter()
			router.GET("/err", func(c *gin.Context) {
				RespondDomainError(c, testLogger(), tt.err)
			})

			req, _ := http.NewRequest(http.MethodGet, "/err", nil)
			req.Header.Set(middleware.CorrelationIDHeader, "corr-1")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)

			var body Response
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			require.NotNil(t, body.Error)
			assert.Equal(t, string(tt.wantCode), body.Error.Code)
			assert.Equal(t, "corr-1", body.CorrelationID)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, body.Error.Message)
			}
		})
	}
}
