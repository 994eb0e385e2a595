package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thetact/tact-backend/internal/db"
	"github.com/thetact/tact-backend/internal/models"
	"github.com/thetact/tact-backend/internal/notify"
	"github.com/thetact/tact-backend/internal/observability"
	"github.com/thetact/tact-backend/internal/paystack"
)

// SweepReport summarizes one billing sweep.
type SweepReport struct {
	Active              int           `json:"active"`
	Skipped             int           `json:"skipped"`
	Aborted             int           `json:"aborted"`
	Charged             int           `json:"charged"`
	Failed              int           `json:"failed"`
	AuthorizationErrors int           `json:"authorizationErrors"`
	StoreErrors         int           `json:"storeErrors"`
	Duration            time.Duration `json:"duration"`
}

// Due is the number of subscribers a charge attempt was made for.
func (r SweepReport) Due() int {
	return r.Active - r.Skipped - r.Aborted
}

type chargeOutcome int

const (
	chargeSucceeded chargeOutcome = iota
	chargeFailed
	chargeAuthorizationError
	chargeAborted
)

// BillingSchedulerConfig holds the sweep tunables.
type BillingSchedulerConfig struct {
	Currency       string
	MaxConcurrency int
	ChargeTimeout  time.Duration
}

// BillingScheduler charges every due, active subscriber once per sweep.
type BillingScheduler struct {
	subscribers db.SubscriberRepository
	users       db.UserRepository
	store       *SubscriptionStore
	charger     ChargeGateway
	notifier    notify.Notifier
	metrics     *observability.Metrics
	logger      *zap.Logger
	cfg         BillingSchedulerConfig
	now         Clock
}

// NewBillingScheduler creates a BillingScheduler. notifier, metrics and now may be nil.
func NewBillingScheduler(
	subscribers db.SubscriberRepository,
	users db.UserRepository,
	charger ChargeGateway,
	notifier notify.Notifier,
	metrics *observability.Metrics,
	logger *zap.Logger,
	cfg BillingSchedulerConfig,
	now Clock,
) *BillingScheduler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.ChargeTimeout <= 0 {
		cfg.ChargeTimeout = 30 * time.Second
	}
	return &BillingScheduler{
		subscribers: subscribers,
		users:       users,
		store:       NewSubscriptionStore(subscribers, now),
		charger:     charger,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
		now:         now,
	}
}

// Sweep charges all due subscribers and waits for every attempt to reach a terminal state.
// Only the initial listing can fail the sweep; per-subscriber failures are recorded on the subscriber.
func (s *BillingScheduler) Sweep(ctx context.Context) (SweepReport, error) {
	started := s.now()
	var report SweepReport

	subs, err := s.subscribers.ListByStatus(ctx, models.SubscriptionStatusActive)
	if err != nil {
		return report, fmt.Errorf("failed to list active subscribers: %w", err)
	}
	report.Active = len(subs)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.MaxConcurrency)

	for _, sub := range subs {
		if !sub.IsDue(started) {
			report.Skipped++
			s.logger.Debug("Subscriber not yet due", zap.String("subscriber_id", sub.ID), zap.Time("next_charge_at", sub.NextChargeAt))
			continue
		}
		g.Go(func() error {
			outcome, storeErr := s.chargeSubscriber(ctx, sub)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case chargeSucceeded:
				report.Charged++
			case chargeAuthorizationError:
				report.AuthorizationErrors++
			case chargeAborted:
				report.Aborted++
			default:
				report.Failed++
			}
			if storeErr != nil {
				report.StoreErrors++
			}
			return nil
		})
	}
	_ = g.Wait()

	finished := s.now()
	report.Duration = finished.Sub(started)
	s.metrics.SweepCompleted(report.Duration, finished)
	s.logger.Info("Billing sweep completed",
		zap.Int("active", report.Active),
		zap.Int("skipped", report.Skipped),
		zap.Int("aborted", report.Aborted),
		zap.Int("charged", report.Charged),
		zap.Int("failed", report.Failed),
		zap.Int("authorization_errors", report.AuthorizationErrors),
		zap.Int("store_errors", report.StoreErrors),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// chargeSubscriber runs one attempt to its terminal state write. Once the sweep is cancelled no new
// attempt starts and the subscriber is left active and due. An attempt already at the provider runs
// under a detached context bounded by ChargeTimeout, so its outcome is always recorded.
func (s *BillingScheduler) chargeSubscriber(ctx context.Context, sub *models.Subscriber) (chargeOutcome, error) {
	log := s.logger.With(zap.String("subscriber_id", sub.ID))
	if ctx.Err() != nil {
		log.Warn("Sweep cancelled before the charge attempt, subscriber left due", zap.Error(ctx.Err()))
		return chargeAborted, nil
	}
	writeCtx := context.WithoutCancel(ctx)

	if !sub.HasCredentials() {
		log.Error("Missing authorization token or billing email, marking authorization error")
		s.metrics.ChargeAttempt("authorization_error")
		err := s.store.MarkAuthorizationError(writeCtx, sub.ID)
		if err != nil {
			log.Error("Failed to record authorization error", zap.Error(err))
		}
		s.notify(writeCtx, notify.EventAuthorizationError, sub, 0, 0, "")
		return chargeAuthorizationError, err
	}

	memberCount, err := s.users.CountMembers(ctx, sub.ID)
	if err != nil && ctx.Err() != nil {
		log.Warn("Sweep cancelled while counting members, subscriber left due", zap.Error(err))
		return chargeAborted, nil
	}
	if err != nil {
		log.Error("Failed to count members, charge not attempted", zap.Error(err))
		return s.recordFailure(writeCtx, log, sub, 0, "member count unavailable")
	}
	amount := PriceForMembers(memberCount)

	if ctx.Err() != nil {
		log.Warn("Sweep cancelled before the charge attempt, subscriber left due", zap.Error(ctx.Err()))
		return chargeAborted, nil
	}
	callCtx, cancel := context.WithTimeout(writeCtx, s.cfg.ChargeTimeout)
	tx, err := s.charger.ChargeAuthorization(callCtx, paystack.ChargeAuthorizationRequest{
		AuthorizationCode: sub.AuthorizationToken,
		Email:             sub.BillingEmail,
		Amount:            amount,
		Currency:          s.cfg.Currency,
		Metadata: map[string]interface{}{
			paystack.FieldMemberCount: memberCount,
			"charged_tier_cents":      amount,
		},
	})
	cancel()
	if err != nil {
		log.Error("Charge authorization call failed", zap.Int64("amount", amount), zap.Error(err))
		return s.recordFailure(writeCtx, log, sub, amount, err.Error())
	}
	if !tx.Succeeded() {
		log.Error("Charge declined by provider",
			zap.Int64("amount", amount),
			zap.String("reference", tx.Reference),
			zap.String("provider_response", tx.GatewayResponse))
		return s.recordFailure(writeCtx, log, sub, amount, tx.GatewayResponse)
	}

	s.metrics.ChargeAttempt("success")
	if err := s.store.RecordSuccessfulRecurringCharge(writeCtx, sub.ID, amount, memberCount); err != nil {
		log.Error("Charge succeeded but the subscriber could not be updated",
			zap.String("reference", tx.Reference), zap.Int64("amount", amount), zap.Error(err))
		return chargeSucceeded, err
	}
	log.Info("Subscriber charged",
		zap.Int64("amount", amount),
		zap.Int("member_count", memberCount),
		zap.String("reference", tx.Reference))
	s.notify(writeCtx, notify.EventRecurringChargeSucceeded, sub, amount, memberCount, "")
	return chargeSucceeded, nil
}

func (s *BillingScheduler) recordFailure(ctx context.Context, log *zap.Logger, sub *models.Subscriber, amount int64, reason string) (chargeOutcome, error) {
	s.metrics.ChargeAttempt("failed")
	err := s.store.MarkChargeFailure(ctx, sub.ID, amount)
	if err != nil {
		log.Error("Failed to record charge failure", zap.Error(err))
	}
	s.notify(ctx, notify.EventPaymentFailed, sub, amount, 0, reason)
	return chargeFailed, err
}

func (s *BillingScheduler) notify(ctx context.Context, eventType notify.EventType, sub *models.Subscriber, amount int64, memberCount int, reason string) {
	s.notifier.Notify(ctx, notify.Event{
		Type:         eventType,
		SubscriberID: sub.ID,
		Email:        sub.BillingEmail,
		Amount:       amount,
		Currency:     s.cfg.Currency,
		MemberCount:  memberCount,
		Reason:       reason,
		OccurredAt:   s.now().UTC(),
	})
}

