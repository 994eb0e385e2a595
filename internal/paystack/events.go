package paystack

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/thetact/tact-backend/internal/models"
)

// SubscriptionType tags transactions that belong to the recurring overseer subscription.
const SubscriptionType = "monthly_overseer_tier"

// Metadata custom field names.
const (
	FieldSubscriptionType = "subscription_type"
	FieldFirebaseUID      = "firebase_uid"
	FieldOverseerUID      = "overseer_uid"
	FieldTierLevel        = "tier_level"
	FieldMemberCount      = "member_count"
)

// ErrMalformedPayload is returned when a webhook body is not a JSON event envelope.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// EventKind discriminates a decoded webhook.
type EventKind int

const (
	EventIgnored EventKind = iota
	EventSubscriptionCharged
	EventSubscriptionFailed
	EventOrderCharged
)

func (k EventKind) String() string {
	switch k {
	case EventSubscriptionCharged:
		return "subscription_charged"
	case EventSubscriptionFailed:
		return "subscription_failed"
	case EventOrderCharged:
		return "order_charged"
	default:
		return "ignored"
	}
}

// WebhookEvent is a decoded Paystack callback. Exactly one payload matching Kind is set.
type WebhookEvent struct {
	Kind                EventKind
	Event               string
	SubscriptionCharge  models.SubscriptionCharge
	SubscriptionFailure models.SubscriptionFailure
	OrderCharge         models.ChargeEvent
}

type webhookEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DecodeWebhook parses the event envelope once and classifies it.
func DecodeWebhook(body []byte) (WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	ev := WebhookEvent{Kind: EventIgnored, Event: env.Event}
	switch env.Event {
	case "charge.success", "charge.failure", "charge.failed":
	default:
		return ev, nil
	}

	var tx Transaction
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &tx); err != nil {
			return ev, fmt.Errorf("%w: %s data: %v", ErrMalformedPayload, env.Event, err)
		}
	}
	fields := MetadataFields(tx.Metadata)
	isSubscription := fields[FieldSubscriptionType] == SubscriptionType

	switch env.Event {
	case "charge.success":
		if isSubscription {
			ev.Kind = EventSubscriptionCharged
			ev.SubscriptionCharge = models.SubscriptionCharge{
				SubscriberID:       subscriberID(fields),
				AuthorizationToken: tx.Authorization.AuthorizationCode,
				BillingEmail:       tx.Customer.Email,
				Amount:             tx.Amount,
				MemberCount:        atoiOrZero(fields[FieldMemberCount]),
				TransactionStatus:  tx.Status,
				Reference:          tx.Reference,
			}
			return ev, nil
		}
		ev.Kind = EventOrderCharged
		ev.OrderCharge = tx.ChargeEvent()
	case "charge.failure", "charge.failed":
		if isSubscription {
			ev.Kind = EventSubscriptionFailed
			ev.SubscriptionFailure = models.SubscriptionFailure{
				SubscriberID: subscriberID(fields),
				BillingEmail: tx.Customer.Email,
				Amount:       tx.Amount,
				Reference:    tx.Reference,
				Reason:       tx.GatewayResponse,
			}
		}
	}
	return ev, nil
}

// MetadataFields flattens transaction metadata into name/value pairs. Metadata may be absent,
// a JSON object or a JSON-encoded string; custom_fields entries win over top-level keys.
// Unreadable metadata yields an empty map.
func MetadataFields(raw json.RawMessage) map[string]string {
	fields := make(map[string]string)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fields
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil || strings.TrimSpace(inner) == "" {
			return fields
		}
		raw = json.RawMessage(inner)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fields
	}
	for key, value := range obj {
		if key == "custom_fields" {
			continue
		}
		if s, ok := scalarString(value); ok {
			fields[key] = s
		}
	}

	var custom []struct {
		VariableName string          `json:"variable_name"`
		Value        json.RawMessage `json:"value"`
	}
	if cf, ok := obj["custom_fields"]; ok && json.Unmarshal(cf, &custom) == nil {
		for _, f := range custom {
			if f.VariableName == "" {
				continue
			}
			if s, ok := scalarString(f.Value); ok {
				fields[f.VariableName] = s
			}
		}
	}
	return fields
}

func scalarString(raw json.RawMessage) (string, bool) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func subscriberID(fields map[string]string) string {
	if id := fields[FieldFirebaseUID]; id != "" {
		return id
	}
	return fields[FieldOverseerUID]
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		if f, ferr := strconv.ParseFloat(strings.TrimSpace(s), 64); ferr == nil {
			return int(f)
		}
		return 0
	}
	return n
}
