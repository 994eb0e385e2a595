package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thetact/tact-backend/internal/db"
	"github.com/thetact/tact-backend/internal/models"
)

// BillingPeriod is the rolling window between successful charges.
const BillingPeriod = 30 * 24 * time.Hour

// SubscriptionStore owns the permitted transitions of a subscriber record.
// Every write is a merge of only the fields the transition touches.
type SubscriptionStore struct {
	repo db.SubscriberRepository
	now  Clock
}

// NewSubscriptionStore creates a SubscriptionStore. A nil clock means time.Now.
func NewSubscriptionStore(repo db.SubscriberRepository, now Clock) *SubscriptionStore {
	if now == nil {
		now = time.Now
	}
	return &SubscriptionStore{repo: repo, now: now}
}

// Get returns the subscriber, or nil and ErrSubscriberNotFound when none is stored. A nil
// subscriber reports SubscriptionStatusUninitialized from EffectiveStatus.
func (s *SubscriptionStore) Get(ctx context.Context, subscriberID string) (*models.Subscriber, error) {
	if subscriberID == "" {
		return nil, fmt.Errorf("%w: subscriber id is required", ErrValidation)
	}
	sub, err := s.repo.GetByID(ctx, subscriberID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSubscriberNotFound, subscriberID)
		}
		return nil, err
	}
	return sub, nil
}

// UpsertAuthorization stores the provider authorization from a first successful charge and
// activates the subscription until now + BillingPeriod.
func (s *SubscriptionStore) UpsertAuthorization(ctx context.Context, subscriberID, token, email string, amount int64, memberCount int) error {
	if subscriberID == "" || token == "" || email == "" {
		return fmt.Errorf("%w: subscriber id, authorization token and email are required", ErrValidation)
	}
	update := s.chargedUpdate(amount, memberCount)
	update.AuthorizationToken = &token
	update.BillingEmail = &email
	return s.write(ctx, subscriberID, update)
}

// RecordSuccessfulRecurringCharge advances the billing window after a scheduled charge.
// The stored authorization is left untouched.
func (s *SubscriptionStore) RecordSuccessfulRecurringCharge(ctx context.Context, subscriberID string, amount int64, memberCount int) error {
	if subscriberID == "" {
		return fmt.Errorf("%w: subscriber id is required", ErrValidation)
	}
	return s.write(ctx, subscriberID, s.chargedUpdate(amount, memberCount))
}

// MarkChargeFailure flags the subscriber as payment_failed. attemptedAmount is recorded when positive.
func (s *SubscriptionStore) MarkChargeFailure(ctx context.Context, subscriberID string, attemptedAmount int64) error {
	if subscriberID == "" {
		return fmt.Errorf("%w: subscriber id is required", ErrValidation)
	}
	status := models.SubscriptionStatusPaymentFailed
	now := s.now().UTC()
	update := models.SubscriberUpdate{Status: &status, LastAttemptedAt: &now}
	if attemptedAmount > 0 {
		update.LastAttemptedChargeAmount = &attemptedAmount
	}
	return s.write(ctx, subscriberID, update)
}

// MarkAuthorizationError flags a subscriber whose stored credentials are incomplete.
func (s *SubscriptionStore) MarkAuthorizationError(ctx context.Context, subscriberID string) error {
	if subscriberID == "" {
		return fmt.Errorf("%w: subscriber id is required", ErrValidation)
	}
	status := models.SubscriptionStatusAuthorizationError
	return s.write(ctx, subscriberID, models.SubscriberUpdate{Status: &status})
}

func (s *SubscriptionStore) chargedUpdate(amount int64, memberCount int) models.SubscriberUpdate {
	status := models.SubscriptionStatusActive
	now := s.now().UTC()
	next := now.Add(BillingPeriod)
	return models.SubscriberUpdate{
		Status:            &status,
		LastChargedAt:     &now,
		LastChargedAmount: &amount,
		MemberCount:       &memberCount,
		NextChargeAt:      &next,
	}
}

func (s *SubscriptionStore) write(ctx context.Context, subscriberID string, update models.SubscriberUpdate) error {
	if err := s.repo.Upsert(ctx, subscriberID, update); err != nil {
		return fmt.Errorf("failed to update subscriber '%s': %w", subscriberID, err)
	}
	return nil
}
