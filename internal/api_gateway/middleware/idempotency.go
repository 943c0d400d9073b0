package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pi-escrow-ledger/internal/platform/cache"
)

const (
	// IdempotencyKeyHeader carries the client's idempotency key
	IdempotencyKeyHeader = "Idempotency-Key"

	// IdempotentReplayHeader marks a replayed response
	IdempotentReplayHeader = "Idempotent-Replayed"
)

// IdempotencyStore remembers the first response per key.
type IdempotencyStore interface {
	Begin(ctx context.Context, key string) (*cache.StoredResponse, error)
	Complete(ctx context.Context, key string, resp cache.StoredResponse) error
	Release(ctx context.Context, key string) error
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// mutating requests. Keys are scoped to method and path. Server errors are
// not stored, so the client may retry them. If the store is unreachable the
// request proceeds without protection.
func Idempotency(store IdempotencyStore, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		scopedKey := c.Request.Method + ":" + c.Request.URL.Path + ":" + key
		ctx := c.Request.Context()

		stored, err := store.Begin(ctx, scopedKey)
		switch {
		case errors.Is(err, cache.ErrRequestInFlight):
			abortWithError(c, http.StatusConflict, "CONCURRENCY_CONFLICT", "A request with this idempotency key is in progress")
			return
		case err != nil:
			logger.Warn("Idempotency store unavailable", "correlation_id", GetCorrelationID(c), "error", err)
			c.Next()
			return
		case stored != nil:
			c.Header(IdempotentReplayHeader, "true")
			c.Data(stored.StatusCode, stored.ContentType, stored.Body)
			c.Abort()
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder

		c.Next()

		// the response is already written; bookkeeping must outlive the request
		bookkeeping := context.WithoutCancel(ctx)
		if recorder.Status() >= http.StatusInternalServerError {
			if err := store.Release(bookkeeping, scopedKey); err != nil {
				logger.Warn("Failed to release idempotency key", "error", err)
			}
			return
		}

		resp := cache.StoredResponse{
			StatusCode:  recorder.Status(),
			ContentType: recorder.Header().Get("Content-Type"),
			Body:        recorder.body.Bytes(),
		}
		if err := store.Complete(bookkeeping, scopedKey, resp); err != nil {
			logger.Warn("Failed to store idempotent response", "error", err)
		}
	}
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func abortWithError(c *gin.Context, status int, code, message string) {
	response := gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
	if correlationID := GetCorrelationID(c); correlationID != "" {
		response["correlation_id"] = correlationID
	}
	c.AbortWithStatusJSON(status, response)
}
