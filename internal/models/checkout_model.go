package models

// InitializeSubscriptionRequest is the body of POST /initialize-subscription.
// Amount is advisory; the server price for MemberCount is what gets charged.
type InitializeSubscriptionRequest struct {
	Email        string `json:"email" binding:"required,email"`
	Amount       int64  `json:"amount" binding:"required,gt=0"`
	SubscriberID string `json:"subscriberId"`
	UID          string `json:"uid"`
	Tier         string `json:"tier"`
	MemberCount  int    `json:"memberCount" binding:"gte=0"`
}

// Subscriber returns SubscriberID, falling back to the legacy uid field.
func (r InitializeSubscriptionRequest) Subscriber() string {
	if r.SubscriberID != "" {
		return r.SubscriberID
	}
	return r.UID
}

// InitializeSubscriptionResult is the hosted authorization page for the first charge.
type InitializeSubscriptionResult struct {
	AuthorizationURL string `json:"authorizationUrl"`
	Reference        string `json:"reference"`
	Amount           int64  `json:"amount"`
	Tier             string `json:"tier"`
}

// PaymentLinkRequest is the body of POST /create-payment-link and POST /stripe/checkout-session.
type PaymentLinkRequest struct {
	Email          string    `json:"email" binding:"required,email"`
	Products       []Product `json:"products" binding:"required,min=1,dive"`
	OrderReference string    `json:"orderReference" binding:"required"`
}

// SellerSubaccountRequest is the body of POST /create_seller_subaccount.
type SellerSubaccountRequest struct {
	UID           string `json:"uid" binding:"required"`
	BusinessName  string `json:"business_name" binding:"required"`
	BankCode      string `json:"bank_code" binding:"required"`
	AccountNumber string `json:"account_number" binding:"required"`
	ContactEmail  string `json:"contact_email" binding:"required,email"`
}

// StripeConnectRequest is the body of POST /stripe/connect-link.
type StripeConnectRequest struct {
	UID   string `json:"uid" binding:"required"`
	Email string `json:"email"`
}
