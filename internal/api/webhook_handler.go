package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thetact/tact-backend/internal/core"
	"github.com/thetact/tact-backend/internal/middleware"
	"github.com/thetact/tact-backend/internal/paystack"
	"github.com/thetact/tact-backend/internal/stripepay"
)

// maxWebhookBody bounds the callback body read into memory.
const maxWebhookBody = 1 << 20

// WebhookHandler receives payment provider callbacks. These routes carry no auth middleware;
// the providers authenticate by signing the raw body.
type WebhookHandler struct {
	webhooks core.WebhookService
	logger   *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhooks core.WebhookService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, logger: logger}
}

// HandlePaystack handles POST /paystack-webhook and POST /paystack-subscription-webhook
func (h *WebhookHandler) HandlePaystack(c *gin.Context) {
	middleware.AnnotateWebhook(c, paystack.ProviderName, "")
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	result, err := h.webhooks.HandlePaystack(c.Request.Context(), body, c.GetHeader(paystack.SignatureHeader))
	h.respond(c, result, err)
}

// HandleStripe handles POST /stripe-webhook
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	middleware.AnnotateWebhook(c, stripepay.ProviderName, "")
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	result, err := h.webhooks.HandleStripe(c.Request.Context(), body, c.GetHeader(stripepay.SignatureHeader))
	h.respond(c, result, err)
}

func (h *WebhookHandler) respond(c *gin.Context, result core.WebhookResult, err error) {
	if err != nil {
		middleware.AnnotateWebhook(c, result.Provider, "rejected")
		mapErrorToStatus(c, h.logger, err)
		return
	}
	middleware.AnnotateWebhook(c, result.Provider, result.Outcome)
	c.JSON(http.StatusOK, WebhookResponse{Received: true, WebhookResult: result})
}

// readBody returns the exact bytes received; signatures are computed over them.
func (h *WebhookHandler) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		h.logger.Error("Failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to read webhook payload"})
		return nil, false
	}
	if len(body) > maxWebhookBody {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Webhook payload too large"})
		return nil, false
	}
	return body, true
}
