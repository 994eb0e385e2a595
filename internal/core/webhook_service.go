package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/thetact/tact-backend/internal/observability"
	"github.com/thetact/tact-backend/internal/paystack"
	"github.com/thetact/tact-backend/internal/stripepay"
	"github.com/thetact/tact-backend/pkg/cache"
)

// DeliveryTTL is how long a processed webhook delivery is remembered.
const DeliveryTTL = 24 * time.Hour

// ClaimTTL bounds how long an unfinished delivery holds its key if the process dies mid-flight.
const ClaimTTL = 5 * time.Minute

// WebhookResult describes how a verified delivery was handled. Every result is acknowledged to the provider.
type WebhookResult struct {
	Provider  string `json:"provider"`
	Event     string `json:"event,omitempty"`
	Kind      string `json:"kind"`
	Outcome   string `json:"outcome"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

type webhookService struct {
	paystackSecret string
	stripe         StripeGateway
	subscriptions  *SubscriptionWebhookHandler
	settler        *OrderSettler
	deliveries     cache.Cache
	metrics        *observability.Metrics
	logger         *zap.Logger
}

// NewWebhookService creates a WebhookService. stripe, deliveries and metrics may be nil.
func NewWebhookService(
	paystackSecret string,
	stripe StripeGateway,
	subscriptions *SubscriptionWebhookHandler,
	settler *OrderSettler,
	deliveries cache.Cache,
	metrics *observability.Metrics,
	logger *zap.Logger,
) WebhookService {
	return &webhookService{
		paystackSecret: paystackSecret,
		stripe:         stripe,
		subscriptions:  subscriptions,
		settler:        settler,
		deliveries:     deliveries,
		metrics:        metrics,
		logger:         logger,
	}
}

// HandlePaystack verifies the signature over the raw body, decodes the event once and routes it.
func (s *webhookService) HandlePaystack(ctx context.Context, body []byte, signature string) (WebhookResult, error) {
	result := WebhookResult{Provider: paystack.ProviderName, Kind: paystack.EventIgnored.String()}

	if !paystack.VerifySignature(body, signature, s.paystackSecret) {
		s.metrics.WebhookEvent(paystack.ProviderName, result.Kind, "unauthorized")
		s.logger.Warn("Rejected Paystack webhook with invalid signature")
		return result, ErrInvalidSignature
	}

	event, err := paystack.DecodeWebhook(body)
	if err != nil {
		s.metrics.WebhookEvent(paystack.ProviderName, result.Kind, "malformed")
		return result, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	result.Event = event.Event
	result.Kind = event.Kind.String()

	delivery := s.claim(ctx, "webhook:paystack:"+signature)
	if delivery.duplicate != "" {
		return s.duplicate(result, delivery.duplicate), nil
	}

	switch event.Kind {
	case paystack.EventSubscriptionCharged:
		var applied bool
		applied, err = s.subscriptions.HandleCharged(ctx, event.SubscriptionCharge)
		result.Outcome = appliedOutcome(applied)
	case paystack.EventSubscriptionFailed:
		var applied bool
		applied, err = s.subscriptions.HandleFailed(ctx, event.SubscriptionFailure)
		result.Outcome = appliedOutcome(applied)
	case paystack.EventOrderCharged:
		var outcome SettlementOutcome
		outcome, err = s.settler.Settle(ctx, paystack.ProviderName, event.OrderCharge)
		result.Outcome = string(outcome)
	default:
		result.Outcome = "ignored"
		s.logger.Debug("Ignoring Paystack event", zap.String("event", event.Event))
	}

	return s.finish(ctx, delivery, result, err)
}

// HandleStripe verifies the Stripe-Signature header and settles paid checkout sessions.
func (s *webhookService) HandleStripe(ctx context.Context, body []byte, signatureHeader string) (WebhookResult, error) {
	result := WebhookResult{Provider: stripepay.ProviderName, Kind: "ignored"}
	if s.stripe == nil {
		return result, ErrProviderNotConfigured
	}

	event, err := s.stripe.ParseWebhook(body, signatureHeader)
	if err != nil {
		if errors.Is(err, stripepay.ErrInvalidSignature) {
			s.metrics.WebhookEvent(stripepay.ProviderName, result.Kind, "unauthorized")
			s.logger.Warn("Rejected Stripe webhook with invalid signature")
			return result, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		s.metrics.WebhookEvent(stripepay.ProviderName, result.Kind, "malformed")
		return result, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	result.Event = event.Type

	if event.Settles {
		result.Kind = paystack.EventOrderCharged.String()
	}

	var delivery deliveryClaim
	if event.ID != "" {
		delivery = s.claim(ctx, "webhook:stripe:"+event.ID)
	}
	if delivery.duplicate != "" {
		return s.duplicate(result, delivery.duplicate), nil
	}

	if !event.Settles {
		result.Outcome = "ignored"
		s.logger.Debug("Ignoring Stripe event", zap.String("event", event.Type), zap.String("event_id", event.ID))
		return s.finish(ctx, delivery, result, nil)
	}

	outcome, err := s.settler.Settle(ctx, stripepay.ProviderName, event.OrderCharge)
	result.Outcome = string(outcome)
	return s.finish(ctx, delivery, result, err)
}

func (s *webhookService) finish(ctx context.Context, delivery deliveryClaim, result WebhookResult, err error) (WebhookResult, error) {
	if err != nil {
		s.metrics.WebhookEvent(result.Provider, result.Kind, "error")
		s.logger.Error("Webhook processing failed",
			zap.String("provider", result.Provider),
			zap.String("event", result.Event),
			zap.Error(err))
		s.release(ctx, delivery)
		return result, err
	}
	s.metrics.WebhookEvent(result.Provider, result.Kind, result.Outcome)
	s.complete(ctx, delivery)
	return result, nil
}

func (s *webhookService) duplicate(result WebhookResult, outcome string) WebhookResult {
	result.Outcome, result.Duplicate = outcome, true
	s.metrics.WebhookEvent(result.Provider, result.Kind, outcome)
	return result
}

// Delivery key states.
const (
	deliveryProcessing = "processing"
	deliveryDone       = "done"
)

// deliveryClaim is this attempt's hold on a delivery key. duplicate is set when another attempt
// holds or completed the key; owned when this attempt must complete or release it.
type deliveryClaim struct {
	key       string
	owned     bool
	duplicate string
}

// claim atomically reserves key for this attempt. Without a cache, or when the cache fails, the
// delivery is processed unclaimed and store idempotency alone applies.
func (s *webhookService) claim(ctx context.Context, key string) deliveryClaim {
	if s.deliveries == nil {
		return deliveryClaim{}
	}
	won, err := s.deliveries.SetNX(ctx, key, deliveryProcessing, ClaimTTL)
	if err != nil {
		s.logger.Warn("Delivery cache claim failed", zap.String("key", key), zap.Error(err))
		return deliveryClaim{}
	}
	if won {
		return deliveryClaim{key: key, owned: true}
	}

	state, err := s.deliveries.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Delivery cache lookup failed", zap.String("key", key), zap.Error(err))
	}
	if state == deliveryProcessing {
		return deliveryClaim{key: key, duplicate: "in_progress"}
	}
	return deliveryClaim{key: key, duplicate: "duplicate"}
}

// complete marks a processed delivery so redeliveries within DeliveryTTL are acknowledged as duplicates.
func (s *webhookService) complete(ctx context.Context, delivery deliveryClaim) {
	if !delivery.owned {
		return
	}
	if err := s.deliveries.Set(context.WithoutCancel(ctx), delivery.key, deliveryDone, DeliveryTTL); err != nil {
		s.logger.Warn("Failed to remember webhook delivery", zap.String("key", delivery.key), zap.Error(err))
	}
}

// release drops the claim of a failed attempt so the provider's retry is processed.
func (s *webhookService) release(ctx context.Context, delivery deliveryClaim) {
	if !delivery.owned {
		return
	}
	if err := s.deliveries.Delete(context.WithoutCancel(ctx), delivery.key); err != nil {
		s.logger.Error("Failed to release webhook delivery claim; retries are acknowledged until it expires",
			zap.String("key", delivery.key), zap.Duration("claim_ttl", ClaimTTL), zap.Error(err))
	}
}

func appliedOutcome(applied bool) string {
	if applied {
		return "applied"
	}
	return "dropped"
}
