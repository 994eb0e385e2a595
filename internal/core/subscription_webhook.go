package core

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/thetact/tact-backend/internal/models"
	"github.com/thetact/tact-backend/internal/notify"
)

// SubscriptionWebhookHandler applies subscription charge outcomes to the subscription store.
// Payloads missing identifying metadata are logged and dropped; only store failures are returned.
type SubscriptionWebhookHandler struct {
	store    *SubscriptionStore
	notifier notify.Notifier
	logger   *zap.Logger
	currency string
}

// NewSubscriptionWebhookHandler creates a SubscriptionWebhookHandler. notifier may be nil.
func NewSubscriptionWebhookHandler(store *SubscriptionStore, notifier notify.Notifier, logger *zap.Logger, currency string) *SubscriptionWebhookHandler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &SubscriptionWebhookHandler{store: store, notifier: notifier, logger: logger, currency: currency}
}

// HandleCharged stores the authorization from a successful subscription charge and activates the subscriber.
// It reports whether the store was mutated.
func (h *SubscriptionWebhookHandler) HandleCharged(ctx context.Context, charge models.SubscriptionCharge) (bool, error) {
	log := h.logger.With(zap.String("subscriber_id", charge.SubscriberID), zap.String("reference", charge.Reference))

	if charge.SubscriberID == "" || charge.AuthorizationToken == "" || charge.BillingEmail == "" {
		log.Warn("Subscription charge is missing subscriber id, authorization or email; dropped",
			zap.Bool("has_authorization", charge.AuthorizationToken != ""),
			zap.Bool("has_email", charge.BillingEmail != ""))
		return false, nil
	}
	if !strings.EqualFold(charge.TransactionStatus, "success") {
		log.Warn("Subscription charge reported a non-success transaction status; dropped",
			zap.String("provider_response", charge.TransactionStatus))
		return false, nil
	}

	quote := QuoteFor(charge.MemberCount)
	if quote.Amount != charge.Amount {
		log.Warn("Charged amount differs from tier price",
			zap.Int("member_count", charge.MemberCount),
			zap.String("tier", string(quote.Tier)),
			zap.Int64("tier_amount", quote.Amount),
			zap.Int64("charged_amount", charge.Amount))
	} else {
		log.Debug("Charged amount matches tier price", zap.String("tier", string(quote.Tier)))
	}

	if err := h.store.UpsertAuthorization(ctx, charge.SubscriberID, charge.AuthorizationToken, charge.BillingEmail, charge.Amount, charge.MemberCount); err != nil {
		return false, err
	}
	log.Info("Subscription activated", zap.Int64("amount", charge.Amount), zap.Int("member_count", charge.MemberCount))

	h.notifier.Notify(ctx, notify.Event{
		Type:         notify.EventSubscriptionActivated,
		SubscriberID: charge.SubscriberID,
		Email:        charge.BillingEmail,
		Amount:       charge.Amount,
		Currency:     h.currency,
		MemberCount:  charge.MemberCount,
		OccurredAt:   h.store.now().UTC(),
	})
	return true, nil
}

// HandleFailed marks the subscriber as payment_failed. Failures without a subscriber id are dropped.
func (h *SubscriptionWebhookHandler) HandleFailed(ctx context.Context, failure models.SubscriptionFailure) (bool, error) {
	if failure.SubscriberID == "" {
		h.logger.Debug("Subscription charge failure without subscriber id; dropped", zap.String("reference", failure.Reference))
		return false, nil
	}
	if err := h.store.MarkChargeFailure(ctx, failure.SubscriberID, failure.Amount); err != nil {
		return false, err
	}
	h.logger.Info("Subscription charge failed",
		zap.String("subscriber_id", failure.SubscriberID),
		zap.String("reference", failure.Reference),
		zap.String("provider_response", failure.Reason))

	h.notifier.Notify(ctx, notify.Event{
		Type:         notify.EventPaymentFailed,
		SubscriberID: failure.SubscriberID,
		Email:        failure.BillingEmail,
		Amount:       failure.Amount,
		Currency:     h.currency,
		Reason:       failure.Reason,
		OccurredAt:   h.store.now().UTC(),
	})
	return true, nil
}
