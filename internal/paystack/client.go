package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/thetact/tact-backend/internal/models"
)

// ProviderName identifies Paystack in stored transaction metadata.
const ProviderName = "paystack"

// ErrProviderRejected is matched by errors returned when Paystack answers with status=false.
var ErrProviderRejected = errors.New("paystack rejected the request")

// RejectedError carries the provider message of a status=false response.
type RejectedError struct {
	Path    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("paystack %s: %s", e.Path, e.Message)
}

// Is makes errors.Is(err, ErrProviderRejected) succeed.
func (e *RejectedError) Is(target error) bool {
	return target == ErrProviderRejected
}

// Client calls the Paystack REST API with a secret key.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

// NewClient creates a Client. timeout bounds every outbound call.
func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		http:      &http.Client{Timeout: timeout},
	}
}

// CustomField is one entry of metadata.custom_fields.
type CustomField struct {
	DisplayName  string `json:"display_name"`
	VariableName string `json:"variable_name"`
	Value        string `json:"value"`
}

// Metadata is the transaction metadata sent on initialization.
type Metadata struct {
	CustomFields []CustomField `json:"custom_fields,omitempty"`
}

// SplitShare is a flat share routed to a subaccount.
type SplitShare struct {
	Subaccount string `json:"subaccount"`
	Share      int64  `json:"share"`
}

// Split is a dynamic transaction split.
type Split struct {
	Type        string       `json:"type"`
	Subaccounts []SplitShare `json:"subaccounts"`
}

// InitializeRequest is the body of POST /transaction/initialize.
type InitializeRequest struct {
	Email       string    `json:"email"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency,omitempty"`
	Reference   string    `json:"reference,omitempty"`
	Channels    []string  `json:"channels,omitempty"`
	CallbackURL string    `json:"callback_url,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
	Split       *Split    `json:"split,omitempty"`
}

// InitializeResponse is the data of a successful initialization.
type InitializeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// ChargeAuthorizationRequest is the body of POST /transaction/charge_authorization.
type ChargeAuthorizationRequest struct {
	AuthorizationCode string                 `json:"authorization_code"`
	Email             string                 `json:"email"`
	Amount            int64                  `json:"amount"`
	Currency          string                 `json:"currency,omitempty"`
	Reference         string                 `json:"reference,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// SubaccountRequest is the body of POST /subaccount.
type SubaccountRequest struct {
	BusinessName        string  `json:"business_name"`
	SettlementBank      string  `json:"settlement_bank"`
	AccountNumber       string  `json:"account_number"`
	PercentageCharge    float64 `json:"percentage_charge"`
	PrimaryContactEmail string  `json:"primary_contact_email,omitempty"`
}

// Subaccount is the data of a created subaccount.
type Subaccount struct {
	SubaccountCode string `json:"subaccount_code"`
	BusinessName   string `json:"business_name"`
}

// Transaction is the transaction object shared by webhooks, charge and verify responses.
type Transaction struct {
	ID              int64           `json:"id"`
	Status          string          `json:"status"`
	Reference       string          `json:"reference"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	Channel         string          `json:"channel"`
	GatewayResponse string          `json:"gateway_response"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	Customer        struct {
		Email string `json:"email"`
	} `json:"customer"`
	Authorization struct {
		AuthorizationCode string `json:"authorization_code"`
		Reusable          bool   `json:"reusable"`
	} `json:"authorization"`
}

// Succeeded reports whether the transaction status is "success".
func (t *Transaction) Succeeded() bool {
	return t.Status == "success"
}

// ChargeEvent converts the transaction to a provider-neutral order charge.
func (t *Transaction) ChargeEvent() models.ChargeEvent {
	return models.ChargeEvent{
		Reference:     t.Reference,
		Amount:        t.Amount,
		Succeeded:     t.Succeeded(),
		CustomerEmail: t.Customer.Email,
		Transaction: models.TransactionData{
			Provider:        ProviderName,
			ID:              strconv.FormatInt(t.ID, 10),
			Amount:          t.Amount,
			Currency:        t.Currency,
			Channel:         t.Channel,
			GatewayResponse: t.GatewayResponse,
		},
	}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeTransaction starts a hosted checkout and returns its authorization URL.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	var out InitializeResponse
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChargeAuthorization charges a stored authorization code off-session.
func (c *Client) ChargeAuthorization(ctx context.Context, req ChargeAuthorizationRequest) (*Transaction, error) {
	var out Transaction
	if err := c.do(ctx, http.MethodPost, "/transaction/charge_authorization", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSubaccount registers a seller settlement account.
func (c *Client) CreateSubaccount(ctx context.Context, req SubaccountRequest) (*Subaccount, error) {
	var out Subaccount
	if err := c.do(ctx, http.MethodPost, "/subaccount", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTransaction fetches the current state of a transaction by reference.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	var out Transaction
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request for %s: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request for %s: %w", path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response for %s (HTTP %d): %w", path, resp.StatusCode, err)
	}
	if !env.Status {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &RejectedError{Path: path, Message: msg}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode data for %s: %w", path, err)
		}
	}
	return nil
}
