package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Context keys read by RequestLogger. Webhook handlers set the provider and outcome so callback
// deliveries can be traced in the access log.
const (
	ContextRequestID       = "requestID"
	ContextWebhookProvider = "webhookProvider"
	ContextWebhookOutcome  = "webhookOutcome"
)

// maxRequestIDLength bounds a caller-supplied id before it is echoed and logged.
const maxRequestIDLength = 128

// RequestID reuses the caller's X-Request-ID or assigns a new one, stores it in the context and
// echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(ContextRequestID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// AnnotateWebhook records which provider a callback came from and what was done with it.
func AnnotateWebhook(c *gin.Context, provider, outcome string) {
	c.Set(ContextWebhookProvider, provider)
	if outcome != "" {
		c.Set(ContextWebhookOutcome, outcome)
	}
}

// RequestLogger logs every request with a level chosen by its status code.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		panic("RequestLogger requires a non-nil zap.Logger instance")
	}
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		statusCode := c.Writer.Status()
		logFields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status_code", statusCode),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if id := c.GetString(ContextRequestID); id != "" {
			logFields = append(logFields, zap.String("request_id", id))
		}
		if uid := c.GetString(ContextUserID); uid != "" {
			logFields = append(logFields, zap.String("user_id", uid))
		}
		if provider := c.GetString(ContextWebhookProvider); provider != "" {
			logFields = append(logFields,
				zap.String("webhook_provider", provider),
				zap.String("webhook_outcome", c.GetString(ContextWebhookOutcome)))
		}
		if query != "" {
			logFields = append(logFields, zap.String("query", query))
		}
		if len(c.Errors) > 0 {
			logFields = append(logFields, zap.String("gin_errors", c.Errors.String()))
		}

		switch {
		case statusCode >= http.StatusInternalServerError:
			logger.Error("Incoming Request", logFields...)
		case statusCode >= http.StatusBadRequest:
			logger.Warn("Incoming Request", logFields...)
		default:
			logger.Info("Incoming Request", logFields...)
		}
	}
}
