package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thetact/tact-backend/internal/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StoreBackend:          "memory",
		PaystackSecretKey:     "sk_test_wiring",
		PaystackAPIBase:       "http://127.0.0.1:1",
		Currency:              "ZAR",
		ProviderTimeout:       time.Second,
		AdminSharePercent:     8,
		SellerPlatformFeePct:  9,
		BillingSchedule:       "0 0 1 * *",
		BillingTimezone:       "UTC",
		BillingMaxConcurrency: 4,
	}
}

func TestNewApplication_MemoryBackend(t *testing.T) {
	app, err := newApplication(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.checkout)
	assert.NotNil(t, app.webhooks)
	assert.NotNil(t, app.scheduler)
	assert.Nil(t, app.auth)
	assert.Nil(t, app.mail)
	assert.Nil(t, app.queue)

	report, err := app.runSweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Active)
	assert.Zero(t, report.Due())
}

func TestNewApplication_BadSMTPPort(t *testing.T) {
	cfg := memoryConfig()
	cfg.SMTPHost = "smtp.example.com"
	cfg.SMTPPort = "smtp"

	_, err := newApplication(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "invalid SMTP_PORT")
}

func TestNewApplication_MailEnabledWithoutQueue(t *testing.T) {
	cfg := memoryConfig()
	cfg.SMTPHost = "smtp.example.com"

	app, err := newApplication(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.mail)
	assert.NotNil(t, app.inline)
	assert.Equal(t, app.inline, app.notifier)
}

func TestStartBillingCron(t *testing.T) {
	app := &application{cfg: memoryConfig(), logger: zap.NewNop()}

	c, err := startBillingCron(context.Background(), app)
	require.NoError(t, err)
	require.Len(t, c.Entries(), 1)
	<-c.Stop().Done()

	app.cfg.BillingTimezone = "Mars/Olympus"
	_, err = startBillingCron(context.Background(), app)
	assert.ErrorContains(t, err, "invalid BILLING_TIMEZONE")

	app.cfg.BillingTimezone = "Africa/Johannesburg"
	app.cfg.BillingSchedule = "monthly please"
	_, err = startBillingCron(context.Background(), app)
	assert.ErrorContains(t, err, "invalid BILLING_SCHEDULE")
}
