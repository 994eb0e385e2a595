package api

import (
	"github.com/thetact/tact-backend/internal/core"
	"github.com/thetact/tact-backend/internal/models"
)

// ErrorResponse is a generic structure for returning errors via API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse is a generic structure for simple success messages.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// InitializeSubscriptionResponse carries the hosted authorization page. authorization_url is kept
// for clients built against the older response shape.
type InitializeSubscriptionResponse struct {
	models.InitializeSubscriptionResult
	LegacyAuthorizationURL string `json:"authorization_url"`
}

// PaymentLinkResponse is returned by the checkout link endpoints.
type PaymentLinkResponse struct {
	PaymentLink string `json:"paymentLink"`
}

// SubaccountResponse is returned by POST /create_seller_subaccount.
type SubaccountResponse struct {
	Success        bool   `json:"success"`
	SubaccountCode string `json:"subaccount_code"`
}

// ConnectLinkResponse is returned by POST /stripe/connect-link.
type ConnectLinkResponse struct {
	URL string `json:"url"`
}

// WebhookResponse acknowledges a provider callback.
type WebhookResponse struct {
	Received bool `json:"received"`
	core.WebhookResult
}

// SendEmailRequest is the body of POST /send-email.
type SendEmailRequest struct {
	To            string `json:"to" binding:"required,email"`
	Subject       string `json:"subject" binding:"required"`
	Body          string `json:"body" binding:"required"`
	AttachmentURL string `json:"attachmentUrl"`
}
