package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thetact/tact-backend/internal/db"
	"github.com/thetact/tact-backend/internal/models"
	"github.com/thetact/tact-backend/internal/notify"
	"github.com/thetact/tact-backend/internal/paystack"
)

func newScheduler(mem *db.MemoryStore, charger ChargeGateway, notifier notify.Notifier, users db.UserRepository) *BillingScheduler {
	if users == nil {
		users = mem.Users()
	}
	return NewBillingScheduler(mem.Subscribers(), users, charger, notifier, nil, zap.NewNop(), BillingSchedulerConfig{
		Currency:       "ZAR",
		MaxConcurrency: 4,
		ChargeTimeout:  50 * time.Millisecond,
	}, fixedClock)
}

func activeSubscriber(id string, next time.Time) models.Subscriber {
	return models.Subscriber{
		ID:                 id,
		AuthorizationToken: "AUTH_" + id,
		BillingEmail:       id + "@example.com",
		Status:             models.SubscriptionStatusActive,
		NextChargeAt:       next,
	}
}

func addMembers(mem *db.MemoryStore, overseer string, n int) {
	for i := 0; i < n; i++ {
		mem.PutUser(fmt.Sprintf("%s-member-%d", overseer, i), db.MemoryUser{OverseerUID: overseer})
	}
}

func TestSweep_SkipRule(t *testing.T) {
	ctx := context.Background()
	mem := db.NewMemoryStore()
	mem.PutSubscriber(activeSubscriber("due", testNow.Add(-time.Hour)))
	mem.PutSubscriber(activeSubscriber("future", testNow.Add(time.Hour)))
	addMembers(mem, "due", 310)
	charger := &fakePaystack{}

	report, err := newScheduler(mem, charger, nil, nil).Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Active)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Charged)
	require.Equal(t, 1, charger.chargeCount())
	assert.Equal(t, "AUTH_due", charger.charges[0].AuthorizationCode)
	assert.Equal(t, int64(25000), charger.charges[0].Amount)
	assert.Equal(t, "ZAR", charger.charges[0].Currency)
	assert.Equal(t, 310, charger.charges[0].Metadata[paystack.FieldMemberCount])

	due, _ := mem.Subscribers().GetByID(ctx, "due")
	assert.Equal(t, models.SubscriptionStatusActive, due.Status)
	assert.Equal(t, int64(25000), due.LastChargedAmount)
	assert.Equal(t, 310, due.MemberCount)
	assert.Equal(t, testNow.Add(BillingPeriod), due.NextChargeAt)
	assert.Equal(t, "AUTH_due", due.AuthorizationToken)

	future, _ := mem.Subscribers().GetByID(ctx, "future")
	assert.Equal(t, testNow.Add(time.Hour), future.NextChargeAt)

	// A re-run finds nothing due.
	report, err = newScheduler(mem, charger, nil, nil).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Charged)
	assert.Equal(t, 1, charger.chargeCount())
}

func TestSweep_MissingCredentialsNeverCallsProvider(t *testing.T) {
	ctx := context.Background()
	mem := db.NewMemoryStore()
	noToken := activeSubscriber("notoken", testNow.Add(-time.Hour))
	noToken.AuthorizationToken = ""
	noEmail := activeSubscriber("noemail", time.Time{})
	noEmail.BillingEmail = ""
	mem.PutSubscriber(noToken)
	mem.PutSubscriber(noEmail)
	charger := &fakePaystack{}
	notifier := &recordingNotifier{}

	report, err := newScheduler(mem, charger, notifier, nil).Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, charger.chargeCount())
	assert.Equal(t, 2, report.AuthorizationErrors)
	for _, id := range []string{"notoken", "noemail"} {
		sub, _ := mem.Subscribers().GetByID(ctx, id)
		assert.Equal(t, models.SubscriptionStatusAuthorizationError, sub.Status, id)
	}
	assert.ElementsMatch(t, []notify.EventType{notify.EventAuthorizationError, notify.EventAuthorizationError}, notifier.types())
}

func TestSweep_FailuresAreIsolated(t *testing.T) {
	ctx := context.Background()
	mem := db.NewMemoryStore()
	for _, id := range []string{"declined", "erroring", "slow", "ok"} {
		mem.PutSubscriber(activeSubscriber(id, testNow.Add(-time.Minute)))
	}
	charger := &fakePaystack{charge: func(ctx context.Context, req paystack.ChargeAuthorizationRequest) (*paystack.Transaction, error) {
		switch req.Email {
		case "declined@example.com":
			return &paystack.Transaction{Status: "failed", GatewayResponse: "Insufficient Funds"}, nil
		case "erroring@example.com":
			return nil, &paystack.RejectedError{Path: "/transaction/charge_authorization", Message: "Invalid authorization"}
		case "slow@example.com":
			<-ctx.Done()
			return nil, ctx.Err()
		default:
			return &paystack.Transaction{Status: "success", Reference: "ok-ref"}, nil
		}
	}}

	report, err := newScheduler(mem, charger, nil, nil).Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Charged)
	assert.Equal(t, 3, report.Failed)
	assert.Equal(t, 4, charger.chargeCount())

	for _, id := range []string{"declined", "erroring", "slow"} {
		sub, _ := mem.Subscribers().GetByID(ctx, id)
		assert.Equal(t, models.SubscriptionStatusPaymentFailed, sub.Status, id)
		assert.Equal(t, testNow, sub.LastAttemptedAt, id)
		assert.Equal(t, TierAPrice, sub.LastAttemptedChargeAmount, id)
	}
	ok, _ := mem.Subscribers().GetByID(ctx, "ok")
	assert.Equal(t, models.SubscriptionStatusActive, ok.Status)
	assert.Equal(t, TierAPrice, ok.LastChargedAmount)
}

type failingUsers struct{ db.UserRepository }

func (failingUsers) CountMembers(context.Context, string) (int, error) {
	return 0, errors.New("aggregation query failed")
}

func TestSweep_MemberCountFailureSkipsCharge(t *testing.T) {
	ctx := context.Background()
	mem := db.NewMemoryStore()
	mem.PutSubscriber(activeSubscriber("ov1", testNow.Add(-time.Minute)))
	charger := &fakePaystack{}

	report, err := newScheduler(mem, charger, nil, failingUsers{mem.Users()}).Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, charger.chargeCount())
	sub, _ := mem.Subscribers().GetByID(ctx, "ov1")
	assert.Equal(t, models.SubscriptionStatusPaymentFailed, sub.Status)
}

func TestSweep_IgnoresInactiveSubscribers(t *testing.T) {
	mem := db.NewMemoryStore()
	failed := activeSubscriber("failed", testNow.Add(-time.Hour))
	failed.Status = models.SubscriptionStatusPaymentFailed
	mem.PutSubscriber(failed)
	charger := &fakePaystack{}

	report, err := newScheduler(mem, charger, nil, nil).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Active)
	assert.Equal(t, 0, charger.chargeCount())
}

func TestSweep_CancelledBeforeStartLeavesSubscribersDue(t *testing.T) {
	mem := db.NewMemoryStore()
	for _, id := range []string{"ov1", "ov2", "ov3"} {
		mem.PutSubscriber(activeSubscriber(id, testNow.Add(-time.Hour)))
	}
	charger := &fakePaystack{charge: func(ctx context.Context, _ paystack.ChargeAuthorizationRequest) (*paystack.Transaction, error) {
		return nil, ctx.Err()
	}}
	notifier := &recordingNotifier{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := newScheduler(mem, charger, notifier, nil).Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Active)
	assert.Equal(t, 3, report.Aborted)
	assert.Zero(t, report.Failed)
	assert.Zero(t, report.Due())
	assert.Zero(t, charger.chargeCount())
	assert.Empty(t, notifier.types())

	for _, id := range []string{"ov1", "ov2", "ov3"} {
		sub, _ := mem.Subscribers().GetByID(context.Background(), id)
		assert.Equal(t, models.SubscriptionStatusActive, sub.Status, id)
		assert.True(t, sub.IsDue(testNow), id)
	}

	// The next sweep picks all of them up.
	report, err = newScheduler(mem, &fakePaystack{}, nil, nil).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Charged)
}

func TestSweep_CancelDuringChargeFinishesStartedAttempt(t *testing.T) {
	mem := db.NewMemoryStore()
	for _, id := range []string{"ov1", "ov2", "ov3"} {
		mem.PutSubscriber(activeSubscriber(id, testNow.Add(-time.Hour)))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	charger := &fakePaystack{charge: func(callCtx context.Context, req paystack.ChargeAuthorizationRequest) (*paystack.Transaction, error) {
		cancel()
		if err := callCtx.Err(); err != nil {
			return nil, err
		}
		return &paystack.Transaction{Status: "success", Reference: "ch_" + req.Email, Amount: req.Amount}, nil
	}}

	scheduler := NewBillingScheduler(mem.Subscribers(), mem.Users(), charger, nil, nil, zap.NewNop(), BillingSchedulerConfig{
		Currency:       "ZAR",
		MaxConcurrency: 1,
		ChargeTimeout:  time.Second,
	}, fixedClock)
	report, err := scheduler.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Charged)
	assert.Equal(t, 2, report.Aborted)
	assert.Zero(t, report.Failed)
	require.Equal(t, 1, charger.chargeCount())

	var charged, due int
	for _, id := range []string{"ov1", "ov2", "ov3"} {
		sub, _ := mem.Subscribers().GetByID(context.Background(), id)
		assert.Equal(t, models.SubscriptionStatusActive, sub.Status, id)
		if sub.IsDue(testNow) {
			due++
		} else {
			charged++
		}
	}
	assert.Equal(t, 1, charged)
	assert.Equal(t, 2, due)
}
