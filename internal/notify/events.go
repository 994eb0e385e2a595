package notify

import (
	"context"
	"time"
)

// EventType names a billing notification.
type EventType string

const (
	EventSubscriptionActivated    EventType = "subscription_activated"
	EventRecurringChargeSucceeded EventType = "recurring_charge_succeeded"
	EventPaymentFailed            EventType = "payment_failed"
	EventAuthorizationError       EventType = "authorization_error"
	EventOrderPaid                EventType = "order_paid"
)

// Event is a billing fact worth telling the account holder about.
type Event struct {
	Type           EventType `json:"type"`
	SubscriberID   string    `json:"subscriberId,omitempty"`
	OrderReference string    `json:"orderReference,omitempty"`
	Email          string    `json:"email,omitempty"`
	Amount         int64     `json:"amount,omitempty"`
	Currency       string    `json:"currency,omitempty"`
	MemberCount    int       `json:"memberCount,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Notifier accepts billing events. Implementations log their own failures; billing state
// never depends on a notification being delivered.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Nop discards every event.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, Event) {}
