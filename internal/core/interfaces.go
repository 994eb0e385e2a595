package core

import (
	"context"
	"time"

	"github.com/thetact/tact-backend/internal/models"
	"github.com/thetact/tact-backend/internal/paystack"
	"github.com/thetact/tact-backend/internal/stripepay"
)

// Clock returns the current time. Services take one so stored timestamps are reproducible.
type Clock func() time.Time

// WebhookService verifies and routes payment provider callbacks.
type WebhookService interface {
	HandlePaystack(ctx context.Context, body []byte, signature string) (WebhookResult, error)
	HandleStripe(ctx context.Context, body []byte, signatureHeader string) (WebhookResult, error)
}

// CheckoutService starts payments and onboards sellers.
type CheckoutService interface {
	QuoteSubscription(memberCount int) (Quote, error)
	InitializeSubscription(ctx context.Context, req models.InitializeSubscriptionRequest) (*models.InitializeSubscriptionResult, error)
	CreatePaymentLink(ctx context.Context, req models.PaymentLinkRequest) (string, error)
	CreateSellerSubaccount(ctx context.Context, req models.SellerSubaccountRequest) (string, error)
	VerifyOrderPayment(ctx context.Context, reference string) (*models.Order, error)
	CreateStripeCheckout(ctx context.Context, req models.PaymentLinkRequest) (string, error)
	CreateStripeConnectLink(ctx context.Context, req models.StripeConnectRequest) (string, error)
}

// PaystackGateway is the Paystack API surface used by the services.
type PaystackGateway interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error)
	ChargeAuthorization(ctx context.Context, req paystack.ChargeAuthorizationRequest) (*paystack.Transaction, error)
	CreateSubaccount(ctx context.Context, req paystack.SubaccountRequest) (*paystack.Subaccount, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Transaction, error)
}

// ChargeGateway charges a stored authorization off-session.
type ChargeGateway interface {
	ChargeAuthorization(ctx context.Context, req paystack.ChargeAuthorizationRequest) (*paystack.Transaction, error)
}

// StripeGateway is the Stripe surface used by the services.
type StripeGateway interface {
	CreateCheckoutSession(ctx context.Context, req stripepay.CheckoutRequest) (*stripepay.CheckoutSession, error)
	CreateConnectOnboarding(ctx context.Context, email string) (*stripepay.ConnectOnboarding, error)
	ParseWebhook(payload []byte, sigHeader string) (stripepay.WebhookEvent, error)
}
