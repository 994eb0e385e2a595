package stripepay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/thetact/tact-backend/internal/models"
)

// SignatureHeader is the header carrying the Stripe webhook signature.
const SignatureHeader = "Stripe-Signature"

var (
	// ErrInvalidSignature is returned when the Stripe-Signature header does not verify.
	ErrInvalidSignature = errors.New("invalid stripe signature")
	// ErrMalformedPayload is returned when a verified event cannot be decoded.
	ErrMalformedPayload = errors.New("malformed stripe event")
)

// WebhookEvent is a verified Stripe event. OrderCharge is set when Settles is true.
type WebhookEvent struct {
	ID          string
	Type        string
	Settles     bool
	OrderCharge models.ChargeEvent
}

// checkoutEvents are the Checkout Session events that carry an order charge. Delayed payment
// methods complete the session unpaid and report the outcome in a later async_payment event.
var checkoutEvents = map[stripe.EventType]bool{
	stripe.EventTypeCheckoutSessionCompleted:             true,
	stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded: true,
	stripe.EventTypeCheckoutSessionAsyncPaymentFailed:    true,
}

// ParseWebhook verifies the signature header and extracts an order charge from Checkout Session
// events. The charge succeeded only when the session is paid.
func (c *Client) ParseWebhook(payload []byte, sigHeader string) (WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if !checkoutEvents[event.Type] {
		return out, nil
	}
	if event.Data == nil {
		return out, fmt.Errorf("%w: event %s has no data", ErrMalformedPayload, event.ID)
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	reference := session.Metadata[MetadataOrderReference]
	if reference == "" {
		reference = session.ClientReferenceID
	}
	if reference == "" {
		return out, nil
	}

	txID := session.ID
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		txID = session.PaymentIntent.ID
	}

	succeeded := session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid &&
		event.Type != stripe.EventTypeCheckoutSessionAsyncPaymentFailed

	out.Settles = true
	out.OrderCharge = models.ChargeEvent{
		Reference:     reference,
		Amount:        session.AmountTotal,
		Succeeded:     succeeded,
		CustomerEmail: session.CustomerEmail,
		Transaction: models.TransactionData{
			Provider:        ProviderName,
			ID:              txID,
			Amount:          session.AmountTotal,
			Currency:        strings.ToUpper(string(session.Currency)),
			Channel:         "checkout",
			GatewayResponse: string(session.PaymentStatus),
		},
	}
	return out, nil
}
