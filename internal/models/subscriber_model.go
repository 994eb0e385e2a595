package models

import "time"

// SubscriptionStatus is the billing state of a subscriber.
type SubscriptionStatus string

const (
	SubscriptionStatusUninitialized      SubscriptionStatus = "uninitialized"
	SubscriptionStatusActive             SubscriptionStatus = "active"
	SubscriptionStatusPaymentFailed      SubscriptionStatus = "payment_failed"
	SubscriptionStatusAuthorizationError SubscriptionStatus = "authorization_error"
)

// Subscriber is an overseer enrolled in recurring billing.
// The document ID is the subscriber's Firebase UID.
type Subscriber struct {
	ID                        string             `json:"id" firestore:"-"`
	AuthorizationToken        string             `json:"-" firestore:"paystackAuthCode,omitempty"`
	BillingEmail              string             `json:"billingEmail,omitempty" firestore:"paystackEmail,omitempty"`
	Status                    SubscriptionStatus `json:"status" firestore:"subscriptionStatus,omitempty"`
	LastChargedAt             time.Time          `json:"lastChargedAt,omitempty" firestore:"lastCharged,omitempty"`
	LastChargedAmount         int64              `json:"lastChargedAmount" firestore:"lastChargedAmount,omitempty"`
	MemberCount               int                `json:"currentMemberCount" firestore:"currentMemberCount,omitempty"`
	NextChargeAt              time.Time          `json:"nextChargeAt,omitempty" firestore:"nextChargeDate,omitempty"`
	LastAttemptedAt           time.Time          `json:"lastAttemptedAt,omitempty" firestore:"lastAttempted,omitempty"`
	LastAttemptedChargeAmount int64              `json:"lastAttemptedChargeAmount,omitempty" firestore:"lastAttemptedChargeAmount,omitempty"`
}

// EffectiveStatus maps an empty stored status to uninitialized.
func (s *Subscriber) EffectiveStatus() SubscriptionStatus {
	if s == nil || s.Status == "" {
		return SubscriptionStatusUninitialized
	}
	return s.Status
}

// IsDue reports whether the scheduler may charge the subscriber at now.
func (s *Subscriber) IsDue(now time.Time) bool {
	if s.EffectiveStatus() != SubscriptionStatusActive {
		return false
	}
	return !now.Before(s.NextChargeAt)
}

// HasCredentials reports whether a charge-by-token attempt can be made.
func (s *Subscriber) HasCredentials() bool {
	return s.AuthorizationToken != "" && s.BillingEmail != ""
}

// SubscriberUpdate is a partial write to a subscriber document. Nil fields are left untouched,
// so concurrent writes to unrelated fields are never lost.
type SubscriberUpdate struct {
	AuthorizationToken        *string
	BillingEmail              *string
	Status                    *SubscriptionStatus
	LastChargedAt             *time.Time
	LastChargedAmount         *int64
	MemberCount               *int
	NextChargeAt              *time.Time
	LastAttemptedAt           *time.Time
	LastAttemptedChargeAmount *int64
}

// ApplyTo merges the update into s.
func (u SubscriberUpdate) ApplyTo(s *Subscriber) {
	if u.AuthorizationToken != nil {
		s.AuthorizationToken = *u.AuthorizationToken
	}
	if u.BillingEmail != nil {
		s.BillingEmail = *u.BillingEmail
	}
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.LastChargedAt != nil {
		s.LastChargedAt = *u.LastChargedAt
	}
	if u.LastChargedAmount != nil {
		s.LastChargedAmount = *u.LastChargedAmount
	}
	if u.MemberCount != nil {
		s.MemberCount = *u.MemberCount
	}
	if u.NextChargeAt != nil {
		s.NextChargeAt = *u.NextChargeAt
	}
	if u.LastAttemptedAt != nil {
		s.LastAttemptedAt = *u.LastAttemptedAt
	}
	if u.LastAttemptedChargeAmount != nil {
		s.LastAttemptedChargeAmount = *u.LastAttemptedChargeAmount
	}
}

// Fields returns the Firestore field map of the update.
func (u SubscriberUpdate) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if u.AuthorizationToken != nil {
		fields["paystackAuthCode"] = *u.AuthorizationToken
	}
	if u.BillingEmail != nil {
		fields["paystackEmail"] = *u.BillingEmail
	}
	if u.Status != nil {
		fields["subscriptionStatus"] = string(*u.Status)
	}
	if u.LastChargedAt != nil {
		fields["lastCharged"] = *u.LastChargedAt
	}
	if u.LastChargedAmount != nil {
		fields["lastChargedAmount"] = *u.LastChargedAmount
	}
	if u.MemberCount != nil {
		fields["currentMemberCount"] = *u.MemberCount
	}
	if u.NextChargeAt != nil {
		fields["nextChargeDate"] = *u.NextChargeAt
	}
	if u.LastAttemptedAt != nil {
		fields["lastAttempted"] = *u.LastAttemptedAt
	}
	if u.LastAttemptedChargeAmount != nil {
		fields["lastAttemptedChargeAmount"] = *u.LastAttemptedChargeAmount
	}
	return fields
}

// SubscriptionCharge is a successful charge reported for the subscription flow.
type SubscriptionCharge struct {
	SubscriberID       string
	AuthorizationToken string
	BillingEmail       string
	Amount             int64
	MemberCount        int
	TransactionStatus  string
	Reference          string
}

// SubscriptionFailure is a failed charge reported for the subscription flow.
type SubscriptionFailure struct {
	SubscriberID string
	BillingEmail string
	Amount       int64
	Reference    string
	Reason       string
}
