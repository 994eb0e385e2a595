package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thetact/tact-backend/internal/core"
	"github.com/thetact/tact-backend/internal/db"
	"github.com/thetact/tact-backend/internal/middleware"
	"github.com/thetact/tact-backend/internal/models"
	"github.com/thetact/tact-backend/internal/observability"
	"github.com/thetact/tact-backend/internal/paystack"
	"github.com/thetact/tact-backend/pkg/mailer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const webhookSecret = "sk_test_api"

type stubCheckout struct {
	err         error
	initialized []models.InitializeSubscriptionRequest
}

func (s *stubCheckout) QuoteSubscription(memberCount int) (core.Quote, error) {
	if memberCount < 0 {
		return core.Quote{}, fmt.Errorf("%w: negative", core.ErrValidation)
	}
	return core.QuoteFor(memberCount), nil
}

func (s *stubCheckout) InitializeSubscription(_ context.Context, req models.InitializeSubscriptionRequest) (*models.InitializeSubscriptionResult, error) {
	s.initialized = append(s.initialized, req)
	if s.err != nil {
		return nil, s.err
	}
	return &models.InitializeSubscriptionResult{AuthorizationURL: "https://pay.test/abc", Reference: "AUTH_ov1_1", Amount: 18900, Tier: "A"}, nil
}

func (s *stubCheckout) CreatePaymentLink(context.Context, models.PaymentLinkRequest) (string, error) {
	return "https://pay.test/order", s.err
}

func (s *stubCheckout) CreateSellerSubaccount(context.Context, models.SellerSubaccountRequest) (string, error) {
	return "ACCT_1", s.err
}

func (s *stubCheckout) VerifyOrderPayment(_ context.Context, reference string) (*models.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{Reference: reference, Status: models.OrderStatusPaid}, nil
}

func (s *stubCheckout) CreateStripeCheckout(context.Context, models.PaymentLinkRequest) (string, error) {
	return "https://stripe.test/cs", s.err
}

func (s *stubCheckout) CreateStripeConnectLink(context.Context, models.StripeConnectRequest) (string, error) {
	return "https://stripe.test/connect", s.err
}

type stubVerifier map[string]string

func (s stubVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	if uid, ok := s[idToken]; ok {
		return &auth.Token{UID: uid, Claims: map[string]interface{}{}}, nil
	}
	return nil, errors.New("bad token")
}

type capturingMail struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *capturingMail) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

type fixture struct {
	router   *gin.Engine
	checkout *stubCheckout
	mem      *db.MemoryStore
	mail     *capturingMail
}

func newFixture(t *testing.T, withAuth bool) fixture {
	t.Helper()
	logger := zap.NewNop()
	mem := db.NewMemoryStore()
	clock := func() time.Time { return time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC) }
	settler := core.NewOrderSettler(mem.Orders(), nil, nil, logger, "ZAR", clock)
	subs := core.NewSubscriptionWebhookHandler(core.NewSubscriptionStore(mem.Subscribers(), clock), nil, logger, "ZAR")
	webhooks := core.NewWebhookService(webhookSecret, nil, subs, settler, nil, nil, logger)

	checkout := &stubCheckout{}
	mail := &capturingMail{}
	deps := Dependencies{
		Checkout: checkout,
		Webhooks: webhooks,
		Mail:     mail,
		Metrics:  observability.NewMetrics(prometheus.NewRegistry()),
		Logger:   logger,
	}
	if withAuth {
		deps.Auth = middleware.NewAuthMiddleware(stubVerifier{"tok-ov1": "ov1"}, logger)
	}
	router := gin.New()
	SetupRoutes(router, deps)
	return fixture{router: router, checkout: checkout, mem: mem, mail: mail}
}

func (f fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestInitializeSubscription(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodPost, "/initialize-subscription", `{"email":"ov1@example.com","amount":18900,"subscriberId":"ov1","memberCount":120}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://pay.test/abc", resp["authorizationUrl"])
	assert.Equal(t, "https://pay.test/abc", resp["authorization_url"])
	assert.Equal(t, "ov1", f.checkout.initialized[0].Subscriber())
}

func TestInitializeSubscription_LegacyUIDField(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodPost, "/initialize-subscription", `{"email":"ov1@example.com","amount":18900,"uid":"ov1","memberCount":0}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ov1", f.checkout.initialized[0].Subscriber())
}

func TestInitializeSubscription_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"missing email", `{"amount":18900,"subscriberId":"ov1"}`, nil, http.StatusBadRequest},
		{"missing subscriber", `{"email":"a@b.co","amount":18900}`, nil, http.StatusBadRequest},
		{"provider rejection", `{"email":"a@b.co","amount":18900,"subscriberId":"ov1"}`,
			fmt.Errorf("init: %w", &paystack.RejectedError{Path: "/transaction/initialize", Message: "Invalid email"}), http.StatusBadRequest},
		{"transport failure", `{"email":"a@b.co","amount":18900,"subscriberId":"ov1"}`, errors.New("dial tcp: timeout"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			f.checkout.err = tt.err

			w := f.do(http.MethodPost, "/initialize-subscription", tt.body, nil)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestProviderRejectionMessageIsReturned(t *testing.T) {
	f := newFixture(t, false)
	f.checkout.err = &paystack.RejectedError{Path: "/subaccount", Message: "Account number is invalid"}

	w := f.do(http.MethodPost, "/create_seller_subaccount",
		`{"uid":"s1","business_name":"B","bank_code":"058","account_number":"1","contact_email":"s@example.com"}`, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Account number is invalid"}`, w.Body.String())
}

func TestClientRoutesRequireMatchingToken(t *testing.T) {
	f := newFixture(t, true)
	body := `{"email":"ov1@example.com","amount":18900,"subscriberId":"ov1"}`

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/initialize-subscription", body, nil).Code)

	auth := map[string]string{"Authorization": "Bearer tok-ov1"}
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/initialize-subscription", body, auth).Code)

	other := `{"email":"ov2@example.com","amount":18900,"subscriberId":"ov2"}`
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/initialize-subscription", other, auth).Code)

	// Webhooks never require a token.
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/paystack-webhook", `{}`, map[string]string{paystack.SignatureHeader: "00"}).Code)
}

func TestSubscriptionQuote(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodGet, "/subscription-quote?memberCount=320", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"memberCount":320,"tier":"B","amount":25000}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/subscription-quote?memberCount=lots", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/subscription-quote?memberCount=-1", "", nil).Code)
}

func TestVerifyOrder(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/orders/ORD-1/verify", "", nil).Code)

	f.checkout.err = fmt.Errorf("%w: ORD-2", core.ErrOrderNotFound)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/orders/ORD-2/verify", "", nil).Code)

	f.checkout.err = core.ErrProviderNotConfigured
	assert.Equal(t, http.StatusNotImplemented, f.do(http.MethodPost, "/stripe/checkout-session",
		`{"email":"b@example.com","orderReference":"ORD-3","products":[{"price":1,"quantity":1}]}`, nil).Code)
}

func TestPaystackWebhook(t *testing.T) {
	f := newFixture(t, false)
	f.mem.PutOrder(models.Order{Reference: "ORD-1", TotalAmount: 99, Status: models.OrderStatusPendingPayment})
	body := `{"event":"charge.success","data":{"id":9,"status":"success","reference":"ORD-1","amount":9900}}`
	signed := map[string]string{paystack.SignatureHeader: paystack.Sign([]byte(body), webhookSecret)}

	w := f.do(http.MethodPost, "/paystack-webhook", body, signed)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outcome":"settled"`)

	w = f.do(http.MethodPost, "/paystack-subscription-webhook", body, signed)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outcome":"already_paid"`)

	tampered := strings.Replace(body, "9900", "9901", 1)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/paystack-webhook", tampered, signed).Code)

	garbage := `not json`
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/paystack-webhook", garbage,
		map[string]string{paystack.SignatureHeader: paystack.Sign([]byte(garbage), webhookSecret)}).Code)

	unknown := `{"event":"charge.success","data":{"status":"success","reference":"NOPE","amount":1}}`
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/paystack-webhook", unknown,
		map[string]string{paystack.SignatureHeader: paystack.Sign([]byte(unknown), webhookSecret)}).Code)

	assert.Equal(t, http.StatusNotImplemented, f.do(http.MethodPost, "/stripe-webhook", `{}`, nil).Code)
}

func TestSendEmail(t *testing.T) {
	pdf := []byte("%PDF-1.4 report")
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.pdf" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdf)
	}))
	defer files.Close()

	f := newFixture(t, false)

	w := f.do(http.MethodPost, "/send-email", fmt.Sprintf(`{"to":"a@example.com","subject":"Report","body":"line1\nline2","attachmentUrl":"%s/monthly.pdf"}`, files.URL), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/send-email", fmt.Sprintf(`{"to":"a@example.com","subject":"Report","body":"text","attachmentUrl":"%s/missing.pdf"}`, files.URL), nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, f.mail.sent, 2)
	first := f.mail.sent[0]
	assert.Equal(t, []string{"a@example.com"}, first.To)
	assert.Equal(t, "line1<br>line2", first.HTML)
	require.Len(t, first.Attachments, 1)
	assert.Equal(t, "monthly.pdf", first.Attachments[0].Filename)
	assert.True(t, bytes.Equal(pdf, first.Attachments[0].Data))
	assert.Empty(t, f.mail.sent[1].Attachments)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/send-email", `{"to":"a@example.com"}`, nil).Code)

	f.mail.err = errors.New("smtp down")
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodPost, "/send-email", `{"to":"a@example.com","subject":"s","body":"b"}`, nil).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, false)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "", nil).Code)
	w := f.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
