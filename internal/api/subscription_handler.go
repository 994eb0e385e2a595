package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thetact/tact-backend/internal/core"
	"github.com/thetact/tact-backend/internal/models"
)

// SubscriptionHandler handles subscription pricing and enrolment.
type SubscriptionHandler struct {
	checkout core.CheckoutService
	logger   *zap.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(checkout core.CheckoutService, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{checkout: checkout, logger: logger}
}

// GetQuote handles GET /subscription-quote?memberCount=
func (h *SubscriptionHandler) GetQuote(c *gin.Context) {
	memberCount, err := strconv.Atoi(c.DefaultQuery("memberCount", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "memberCount must be an integer"})
		return
	}
	quote, err := h.checkout.QuoteSubscription(memberCount)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// InitializeSubscription handles POST /initialize-subscription
func (h *SubscriptionHandler) InitializeSubscription(c *gin.Context) {
	var req models.InitializeSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if req.Subscriber() == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing required subscription details", Details: "subscriberId is required"})
		return
	}
	if !requireCaller(c, req.Subscriber()) {
		return
	}

	result, err := h.checkout.InitializeSubscription(c.Request.Context(), req)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, InitializeSubscriptionResponse{
		InitializeSubscriptionResult: *result,
		LegacyAuthorizationURL:       result.AuthorizationURL,
	})
}
