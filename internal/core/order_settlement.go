package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/thetact/tact-backend/internal/db"
	"github.com/thetact/tact-backend/internal/models"
	"github.com/thetact/tact-backend/internal/notify"
	"github.com/thetact/tact-backend/internal/observability"
)

// SettlementOutcome is the terminal result of applying a charge event to an order.
type SettlementOutcome string

const (
	SettlementSettled     SettlementOutcome = "settled"
	SettlementAlreadyPaid SettlementOutcome = "already_paid"
	SettlementNotFound    SettlementOutcome = "not_found"
	SettlementIgnored     SettlementOutcome = "ignored"
)

// OrderSettler reconciles one-time order charges against stored orders.
type OrderSettler struct {
	orders   db.OrderRepository
	notifier notify.Notifier
	metrics  *observability.Metrics
	logger   *zap.Logger
	currency string
	now      Clock
}

// NewOrderSettler creates an OrderSettler. notifier, metrics and now may be nil.
func NewOrderSettler(orders db.OrderRepository, notifier notify.Notifier, metrics *observability.Metrics, logger *zap.Logger, currency string, now Clock) *OrderSettler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &OrderSettler{orders: orders, notifier: notifier, metrics: metrics, logger: logger, currency: currency, now: now}
}

// Settle applies a charge event. An unknown reference is terminal and reported as SettlementNotFound
// without an error. Amount disagreements are logged and settlement proceeds.
func (s *OrderSettler) Settle(ctx context.Context, provider string, event models.ChargeEvent) (SettlementOutcome, error) {
	outcome, err := s.settle(ctx, provider, event)
	if err != nil {
		s.metrics.OrderSettlement(provider, "error")
	} else {
		s.metrics.OrderSettlement(provider, string(outcome))
	}
	return outcome, err
}

func (s *OrderSettler) settle(ctx context.Context, provider string, event models.ChargeEvent) (SettlementOutcome, error) {
	log := s.logger.With(zap.String("order_reference", event.Reference), zap.String("provider", provider))
	if event.Reference == "" {
		log.Warn("Charge event without a reference, nothing to settle")
		return SettlementNotFound, nil
	}

	order, err := s.orders.GetByReference(ctx, event.Reference)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			log.Warn("Order not found for charge event")
			return SettlementNotFound, nil
		}
		return "", fmt.Errorf("failed to load order '%s': %w", event.Reference, err)
	}

	if expected := order.TotalMinorUnits(); expected != event.Amount {
		log.Error("Order amount mismatch, flagged for manual review",
			zap.Int64("expected_amount", expected),
			zap.Int64("charged_amount", event.Amount))
	}

	if !event.Succeeded {
		log.Info("Charge did not succeed, order left pending", zap.String("provider_response", event.Transaction.GatewayResponse))
		return SettlementIgnored, nil
	}

	tx := event.Transaction
	if tx.Provider == "" {
		tx.Provider = provider
	}
	if tx.Amount == 0 {
		tx.Amount = event.Amount
	}
	paidAt := s.now().UTC()
	if err := s.orders.MarkPaid(ctx, event.Reference, paidAt, tx); err != nil {
		if errors.Is(err, db.ErrAlreadyPaid) {
			log.Info("Order already paid, redelivery acknowledged")
			return SettlementAlreadyPaid, nil
		}
		if errors.Is(err, db.ErrNotFound) {
			log.Warn("Order disappeared before settlement")
			return SettlementNotFound, nil
		}
		return "", fmt.Errorf("failed to mark order '%s' as paid: %w", event.Reference, err)
	}

	log.Info("Order settled", zap.Int64("amount", event.Amount), zap.String("transaction_id", tx.ID))
	s.notifier.Notify(ctx, notify.Event{
		Type:           notify.EventOrderPaid,
		OrderReference: event.Reference,
		Email:          event.CustomerEmail,
		Amount:         event.Amount,
		Currency:       s.currencyFor(tx),
		OccurredAt:     paidAt,
	})
	return SettlementSettled, nil
}

func (s *OrderSettler) currencyFor(tx models.TransactionData) string {
	if tx.Currency != "" {
		return tx.Currency
	}
	return s.currency
}
