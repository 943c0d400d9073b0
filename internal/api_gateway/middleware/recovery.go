package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// Recovery turns a handler panic into a logged 500. If the handler already
// started writing, the connection is left with what was sent. An
// http.ErrAbortHandler panic is propagated to the server.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if err, ok := r.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(r)
			}

			logger.Error("Panic recovered",
				"correlation_id", GetCorrelationID(c),
				"method", c.Request.Method,
				"route", c.FullPath(),
				"panic", r,
				"stack", string(debug.Stack()),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal server error occurred")
		}()

		c.Next()
	}
}
