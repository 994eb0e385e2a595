package stripepay

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/thetact/tact-backend/internal/models"
)

// ProviderName identifies Stripe in stored transaction metadata.
const ProviderName = "stripe"

// MetadataOrderReference is the session metadata key carrying the order reference.
const MetadataOrderReference = "order_reference"

// Client wraps a per-instance Stripe API client. It never touches the global stripe.Key.
type Client struct {
	api           *client.API
	webhookSecret string
	currency      string
	domainURL     string
}

// NewClient creates a Client. backends may be nil to use the live Stripe endpoints.
func NewClient(secretKey, webhookSecret, currency, domainURL string, backends *stripe.Backends) *Client {
	return &Client{
		api:           client.New(secretKey, backends),
		webhookSecret: webhookSecret,
		currency:      strings.ToLower(currency),
		domainURL:     strings.TrimRight(domainURL, "/"),
	}
}

// CheckoutRequest describes a one-time order paid through Stripe Checkout.
type CheckoutRequest struct {
	Email          string
	OrderReference string
	Products       []models.Product
}

// CheckoutSession is the created session.
type CheckoutSession struct {
	ID  string
	URL string
}

// CreateCheckoutSession creates a payment-mode Checkout Session tagged with the order reference.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail:     stripe.String(req.Email),
		ClientReferenceID: stripe.String(req.OrderReference),
		SuccessURL:        stripe.String(fmt.Sprintf("%s/orders/%s/success", c.domainURL, req.OrderReference)),
		CancelURL:         stripe.String(fmt.Sprintf("%s/orders/%s/cancel", c.domainURL, req.OrderReference)),
	}
	params.Context = ctx
	params.AddMetadata(MetadataOrderReference, req.OrderReference)

	for _, p := range req.Products {
		qty := int64(p.Quantity)
		if qty <= 0 {
			qty = 1
		}
		name := p.Name
		if name == "" {
			name = "Order item"
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(c.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
				UnitAmount: stripe.Int64(models.ToMinorUnits(p.Price)),
			},
			Quantity: stripe.Int64(qty),
		})
	}

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe checkout session for order '%s': %w", req.OrderReference, err)
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// ConnectOnboarding is a freshly created connected account and its onboarding link.
type ConnectOnboarding struct {
	AccountID string
	URL       string
}

// CreateConnectOnboarding creates an Express connected account and an onboarding link for it.
func (c *Client) CreateConnectOnboarding(ctx context.Context, email string) (*ConnectOnboarding, error) {
	acctParams := &stripe.AccountParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
	}
	if email != "" {
		acctParams.Email = stripe.String(email)
	}
	acctParams.Context = ctx

	acct, err := c.api.Accounts.New(acctParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe connected account: %w", err)
	}

	linkParams := &stripe.AccountLinkParams{
		Account:    stripe.String(acct.ID),
		RefreshURL: stripe.String(fmt.Sprintf("%s/seller/onboarding/refresh", c.domainURL)),
		ReturnURL:  stripe.String(fmt.Sprintf("%s/seller/onboarding/complete?account_id=%s", c.domainURL, acct.ID)),
		Type:       stripe.String("account_onboarding"),
	}
	linkParams.Context = ctx

	link, err := c.api.AccountLinks.New(linkParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe onboarding link for '%s': %w", acct.ID, err)
	}
	return &ConnectOnboarding{AccountID: acct.ID, URL: link.URL}, nil
}
