package core

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/thetact/tact-backend/internal/notify"
	"github.com/thetact/tact-backend/internal/paystack"
	"github.com/thetact/tact-backend/internal/stripepay"
)

var testNow = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func observedLogger(level zap.AtomicLevel) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) types() []notify.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.EventType, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

// fakePaystack records every call. charge decides the outcome of ChargeAuthorization per email.
type fakePaystack struct {
	mu          sync.Mutex
	initialized []paystack.InitializeRequest
	charges     []paystack.ChargeAuthorizationRequest
	subaccounts []paystack.SubaccountRequest
	verified    []string

	initErr    error
	charge     func(ctx context.Context, req paystack.ChargeAuthorizationRequest) (*paystack.Transaction, error)
	verifyTx   *paystack.Transaction
	verifyErr  error
	subaccount string
}

func (f *fakePaystack) InitializeTransaction(_ context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initialized = append(f.initialized, req)
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &paystack.InitializeResponse{AuthorizationURL: "https://checkout.paystack.test/" + req.Reference, Reference: req.Reference}, nil
}

func (f *fakePaystack) ChargeAuthorization(ctx context.Context, req paystack.ChargeAuthorizationRequest) (*paystack.Transaction, error) {
	f.mu.Lock()
	f.charges = append(f.charges, req)
	charge := f.charge
	f.mu.Unlock()
	if charge == nil {
		return &paystack.Transaction{Status: "success", Reference: "ch_" + req.Email, Amount: req.Amount}, nil
	}
	return charge(ctx, req)
}

func (f *fakePaystack) CreateSubaccount(_ context.Context, req paystack.SubaccountRequest) (*paystack.Subaccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subaccounts = append(f.subaccounts, req)
	return &paystack.Subaccount{SubaccountCode: f.subaccount, BusinessName: req.BusinessName}, nil
}

func (f *fakePaystack) VerifyTransaction(_ context.Context, reference string) (*paystack.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified = append(f.verified, reference)
	return f.verifyTx, f.verifyErr
}

func (f *fakePaystack) chargeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.charges)
}

type fakeStripe struct {
	event      stripepay.WebhookEvent
	parseErr   error
	sessions   []stripepay.CheckoutRequest
	onboarding *stripepay.ConnectOnboarding
}

func (f *fakeStripe) CreateCheckoutSession(_ context.Context, req stripepay.CheckoutRequest) (*stripepay.CheckoutSession, error) {
	f.sessions = append(f.sessions, req)
	return &stripepay.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func (f *fakeStripe) CreateConnectOnboarding(_ context.Context, _ string) (*stripepay.ConnectOnboarding, error) {
	return f.onboarding, nil
}

func (f *fakeStripe) ParseWebhook(_ []byte, _ string) (stripepay.WebhookEvent, error) {
	return f.event, f.parseErr
}
