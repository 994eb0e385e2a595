package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thetact/tact-backend/internal/core"
	"github.com/thetact/tact-backend/internal/middleware"
	"github.com/thetact/tact-backend/internal/models"
)

// MarketplaceHandler handles seller onboarding and one-time order checkout.
type MarketplaceHandler struct {
	checkout core.CheckoutService
	logger   *zap.Logger
}

// NewMarketplaceHandler creates a new MarketplaceHandler.
func NewMarketplaceHandler(checkout core.CheckoutService, logger *zap.Logger) *MarketplaceHandler {
	return &MarketplaceHandler{checkout: checkout, logger: logger}
}

// CreateSellerSubaccount handles POST /create_seller_subaccount
func (h *MarketplaceHandler) CreateSellerSubaccount(c *gin.Context) {
	var req models.SellerSubaccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if !requireCaller(c, req.UID) {
		return
	}

	code, err := h.checkout.CreateSellerSubaccount(c.Request.Context(), req)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, SubaccountResponse{Success: true, SubaccountCode: code})
}

// CreatePaymentLink handles POST /create-payment-link
func (h *MarketplaceHandler) CreatePaymentLink(c *gin.Context) {
	var req models.PaymentLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	link, err := h.checkout.CreatePaymentLink(c.Request.Context(), req)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, PaymentLinkResponse{PaymentLink: link})
}

// CreateStripeCheckout handles POST /stripe/checkout-session
func (h *MarketplaceHandler) CreateStripeCheckout(c *gin.Context) {
	var req models.PaymentLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	link, err := h.checkout.CreateStripeCheckout(c.Request.Context(), req)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, PaymentLinkResponse{PaymentLink: link})
}

// CreateStripeConnectLink handles POST /stripe/connect-link
func (h *MarketplaceHandler) CreateStripeConnectLink(c *gin.Context) {
	var req models.StripeConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if !requireCaller(c, req.UID) {
		return
	}
	if req.Email == "" {
		req.Email = c.GetString(middleware.ContextUserEmail)
	}

	url, err := h.checkout.CreateStripeConnectLink(c.Request.Context(), req)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ConnectLinkResponse{URL: url})
}

// VerifyOrder handles GET /orders/:reference/verify
func (h *MarketplaceHandler) VerifyOrder(c *gin.Context) {
	order, err := h.checkout.VerifyOrderPayment(c.Request.Context(), c.Param("reference"))
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
