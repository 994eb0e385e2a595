package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thetact/tact-backend/internal/core"
	"github.com/thetact/tact-backend/internal/middleware"
	"github.com/thetact/tact-backend/internal/notify"
	"github.com/thetact/tact-backend/internal/observability"
)

// Dependencies are the services the routes are wired to. Auth and Mail may be nil: without Auth the
// client routes are served unauthenticated (local memory-store runs), without Mail /send-email answers 501.
type Dependencies struct {
	Checkout core.CheckoutService
	Webhooks core.WebhookService
	Auth     *middleware.AuthMiddleware
	Mail     notify.MailSender
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// SetupRoutes configures all the application routes with their handlers and middleware.
// Global middleware (logging, recovery, CORS, metrics) is applied by the caller.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	subscriptionHandler := NewSubscriptionHandler(deps.Checkout, deps.Logger)
	marketplaceHandler := NewMarketplaceHandler(deps.Checkout, deps.Logger)
	webhookHandler := NewWebhookHandler(deps.Webhooks, deps.Logger)
	emailHandler := NewEmailHandler(deps.Mail, nil, deps.Logger)

	// Provider callbacks authenticate by body signature, never by ID token.
	router.POST("/paystack-webhook", webhookHandler.HandlePaystack)
	router.POST("/paystack-subscription-webhook", webhookHandler.HandlePaystack)
	router.POST("/stripe-webhook", webhookHandler.HandleStripe)

	client := router.Group("/")
	if deps.Auth != nil {
		client.Use(deps.Auth.VerifyToken())
	} else {
		deps.Logger.Warn("No auth middleware configured; client routes are unauthenticated")
	}
	{
		client.GET("/subscription-quote", subscriptionHandler.GetQuote)
		client.POST("/initialize-subscription", subscriptionHandler.InitializeSubscription)
		client.POST("/create_seller_subaccount", marketplaceHandler.CreateSellerSubaccount)
		client.POST("/create-payment-link", marketplaceHandler.CreatePaymentLink)
		client.POST("/stripe/checkout-session", marketplaceHandler.CreateStripeCheckout)
		client.POST("/stripe/connect-link", marketplaceHandler.CreateStripeConnectLink)
		client.GET("/orders/:reference/verify", marketplaceHandler.VerifyOrder)
		client.POST("/send-email", emailHandler.SendEmail)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP", "message": "Tact backend is healthy."})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	deps.Logger.Info("API routes configured")
}
