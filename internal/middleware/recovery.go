package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryMiddleware turns a handler panic into a 500 carrying the request id. A panic inside a
// webhook handler is logged with the provider so the failed delivery can be found and replayed;
// the provider retries on the 500.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		panic("RecoveryMiddleware requires a non-nil zap.Logger instance")
	}
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			requestID := c.GetString(ContextRequestID)
			fields := []zap.Field{
				zap.Any("error", rec),
				zap.String("stacktrace", string(debug.Stack())),
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.String("request_id", requestID),
			}
			if provider := c.GetString(ContextWebhookProvider); provider != "" {
				fields = append(fields, zap.String("webhook_provider", provider))
			}
			logger.Error("Panic recovered", fields...)

			if !c.Writer.Written() {
				resp := ErrorResponse{Error: "Internal Server Error"}
				if requestID != "" {
					resp.Details = "request_id=" + requestID
				}
				c.JSON(http.StatusInternalServerError, resp)
			}
			c.Abort()
		}()
		c.Next()
	}
}
