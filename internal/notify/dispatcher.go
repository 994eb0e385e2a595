package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/thetact/tact-backend/internal/observability"
	"github.com/thetact/tact-backend/pkg/mailer"
)

// MailSender is the subset of mailer.Mailer the dispatcher needs.
type MailSender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// Dispatcher renders events into emails and sends them.
type Dispatcher struct {
	mail    MailSender
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewDispatcher creates a Dispatcher. metrics may be nil.
func NewDispatcher(mail MailSender, logger *zap.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{mail: mail, logger: logger, metrics: metrics}
}

// Dispatch sends the email for event. Events without a recipient are skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	if strings.TrimSpace(event.Email) == "" {
		d.logger.Debug("Skipping notification without recipient",
			zap.String("type", string(event.Type)),
			zap.String("subscriber_id", event.SubscriberID),
			zap.String("order_reference", event.OrderReference))
		d.metrics.Notification(string(event.Type), "skipped")
		return nil
	}

	msg, ok := render(event)
	if !ok {
		d.metrics.Notification(string(event.Type), "skipped")
		return nil
	}

	if err := d.mail.Send(ctx, msg); err != nil {
		d.metrics.Notification(string(event.Type), "failed")
		return fmt.Errorf("failed to send %s notification: %w", event.Type, err)
	}
	d.metrics.Notification(string(event.Type), "sent")
	return nil
}

func render(event Event) (mailer.Message, bool) {
	amount := FormatAmount(event.Amount, event.Currency)
	msg := mailer.Message{To: []string{event.Email}}

	switch event.Type {
	case EventSubscriptionActivated:
		msg.Subject = "Your Tact subscription is active"
		msg.Text = fmt.Sprintf("Thank you! Your monthly subscription is active. We charged %s for %d members.\n"+
			"Future charges will use the card you just authorized.", amount, event.MemberCount)
	case EventRecurringChargeSucceeded:
		msg.Subject = "Tact subscription receipt"
		msg.Text = fmt.Sprintf("We charged %s for your monthly subscription (%d members).", amount, event.MemberCount)
	case EventPaymentFailed:
		msg.Subject = "We could not charge your Tact subscription"
		msg.Text = fmt.Sprintf("Your subscription payment of %s did not go through", amount)
		if event.Reason != "" {
			msg.Text += fmt.Sprintf(" (%s)", event.Reason)
		}
		msg.Text += ". Please update your payment details in the app."
	case EventAuthorizationError:
		msg.Subject = "Action needed: re-authorize your Tact subscription"
		msg.Text = "We could not find a saved payment authorization for your subscription. " +
			"Please subscribe again in the app to keep your members active."
	case EventOrderPaid:
		msg.Subject = fmt.Sprintf("Payment received for order %s", event.OrderReference)
		msg.Text = fmt.Sprintf("We received your payment of %s for order %s.", amount, event.OrderReference)
	default:
		return msg, false
	}
	return msg, true
}

// FormatAmount renders minor units as "ZAR 189.00".
func FormatAmount(minor int64, currency string) string {
	if currency == "" {
		currency = "ZAR"
	}
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s %s%d.%02d", strings.ToUpper(currency), sign, minor/100, minor%100)
}
