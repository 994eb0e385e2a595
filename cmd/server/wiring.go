package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/thetact/tact-backend/internal/config"
	"github.com/thetact/tact-backend/internal/core"
	"github.com/thetact/tact-backend/internal/db"
	"github.com/thetact/tact-backend/internal/middleware"
	"github.com/thetact/tact-backend/internal/notify"
	"github.com/thetact/tact-backend/internal/observability"
	"github.com/thetact/tact-backend/internal/paystack"
	"github.com/thetact/tact-backend/internal/stripepay"
	"github.com/thetact/tact-backend/pkg/cache"
	"github.com/thetact/tact-backend/pkg/mailer"
	"github.com/thetact/tact-backend/pkg/messagequeue"
)

const defaultSMTPPort = 587

// application is the wired dependency graph shared by the HTTP server and the one-shot sweep.
type application struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics

	clients     *db.Clients
	subscribers db.SubscriberRepository
	orders      db.OrderRepository
	users       db.UserRepository

	mail       notify.MailSender
	dispatcher *notify.Dispatcher
	notifier   notify.Notifier
	inline     *notify.InlineNotifier
	queue      messagequeue.MessageQueue
	redis      *cache.RedisCache

	auth      *middleware.AuthMiddleware
	checkout  core.CheckoutService
	webhooks  core.WebhookService
	scheduler *core.BillingScheduler
}

func newApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	app := &application{cfg: cfg, logger: logger}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.metrics = observability.NewMetrics(registry)

	if err := app.initStore(ctx); err != nil {
		return nil, err
	}
	if err := app.initNotifications(); err != nil {
		app.Close()
		return nil, err
	}

	var deliveries cache.Cache
	if cfg.RedisAddress != "" {
		redisCache, err := cache.NewRedisCache(ctx, cache.NewRedisCacheConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			app.Close()
			return nil, err
		}
		app.redis = redisCache
		deliveries = redisCache
		logger.Info("Webhook delivery dedupe enabled", zap.String("redis_address", cfg.RedisAddress))
	} else {
		logger.Warn("REDIS_ADDRESS not set; webhook redeliveries rely on store idempotency only")
	}

	paystackClient := paystack.NewClient(cfg.PaystackAPIBase, cfg.PaystackSecretKey, cfg.ProviderTimeout)

	// A nil *stripepay.Client stored in the interface would not compare equal to nil.
	var stripeGateway core.StripeGateway
	if cfg.StripeEnabled() {
		stripeGateway = stripepay.NewClient(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.Currency, cfg.DomainURL, nil)
		logger.Info("Stripe integration enabled")
	}

	settler := core.NewOrderSettler(app.orders, app.notifier, app.metrics, logger, cfg.Currency, time.Now)
	subscriptionStore := core.NewSubscriptionStore(app.subscribers, time.Now)
	subscriptionHandler := core.NewSubscriptionWebhookHandler(subscriptionStore, app.notifier, logger, cfg.Currency)

	app.webhooks = core.NewWebhookService(cfg.PaystackSecretKey, stripeGateway, subscriptionHandler, settler, deliveries, app.metrics, logger)
	app.checkout = core.NewCheckoutService(paystackClient, stripeGateway, app.orders, app.users, settler, logger, core.CheckoutConfig{
		Currency:             cfg.Currency,
		AdminSharePercent:    cfg.AdminSharePercent,
		SellerPlatformFeePct: cfg.SellerPlatformFeePct,
		CallbackURL:          cfg.DomainURL,
	}, time.Now)
	app.scheduler = core.NewBillingScheduler(app.subscribers, app.users, paystackClient, app.notifier, app.metrics, logger, core.BillingSchedulerConfig{
		Currency:       cfg.Currency,
		MaxConcurrency: cfg.BillingMaxConcurrency,
		ChargeTimeout:  cfg.ProviderTimeout,
	}, time.Now)

	return app, nil
}

func (a *application) initStore(ctx context.Context) error {
	if a.cfg.StoreBackend == "memory" {
		a.logger.Warn("Using in-memory store; data is lost on restart and client routes are unauthenticated")
		mem := db.NewMemoryStore()
		a.subscribers, a.orders, a.users = mem.Subscribers(), mem.Orders(), mem.Users()
		return nil
	}

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	clients, err := db.InitFirebase(initCtx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Firebase: %w", err)
	}
	a.clients = clients
	a.subscribers = db.NewFirestoreSubscriberRepository(clients.Firestore)
	a.orders = db.NewFirestoreOrderRepository(clients.Firestore)
	a.users = db.NewFirestoreUserRepository(clients.Firestore)
	a.auth = middleware.NewAuthMiddleware(clients.Auth, a.logger)
	return nil
}

// initNotifications picks the delivery path: none without SMTP, RabbitMQ when configured,
// otherwise in-process goroutines.
func (a *application) initNotifications() error {
	if !a.cfg.MailEnabled() {
		a.logger.Warn("SMTP_HOST not set; email notifications and /send-email are disabled")
		return nil
	}

	port := defaultSMTPPort
	if a.cfg.SMTPPort != "" {
		p, err := strconv.Atoi(a.cfg.SMTPPort)
		if err != nil {
			return fmt.Errorf("invalid SMTP_PORT %q: %w", a.cfg.SMTPPort, err)
		}
		port = p
	}
	a.mail = mailer.New(mailer.Config{
		Host:     a.cfg.SMTPHost,
		Port:     port,
		Username: a.cfg.SMTPUsername,
		Password: a.cfg.SMTPPassword,
		Sender:   a.cfg.SMTPSender,
	})
	a.dispatcher = notify.NewDispatcher(a.mail, a.logger, a.metrics)

	if a.cfg.RabbitMQURL != "" {
		mq, err := messagequeue.NewRabbitMQService(messagequeue.NewRabbitMQServiceConfig{URL: a.cfg.RabbitMQURL})
		if err != nil {
			return err
		}
		a.queue = mq
		a.notifier = notify.NewQueueNotifier(mq, a.cfg.RabbitMQQueueName, a.logger)
		a.logger.Info("Notifications published to RabbitMQ", zap.String("queue", a.cfg.RabbitMQQueueName))
		return nil
	}

	a.inline = notify.NewInlineNotifier(a.dispatcher, a.logger)
	a.notifier = a.inline
	return nil
}

// runConsumer dispatches queued notifications until ctx is cancelled. It is a no-op without a queue.
func (a *application) runConsumer(ctx context.Context) {
	if a.queue == nil {
		return
	}
	go func() {
		if err := notify.RunConsumer(ctx, a.queue, a.cfg.RabbitMQQueueName, a.dispatcher, a.logger); err != nil && ctx.Err() == nil {
			a.logger.Error("Notification consumer stopped", zap.Error(err))
		}
	}()
}

// runSweep performs one billing sweep and logs its report.
func (a *application) runSweep(ctx context.Context) (core.SweepReport, error) {
	a.logger.Info("Starting billing sweep")
	report, err := a.scheduler.Sweep(ctx)
	if err != nil {
		a.logger.Error("Billing sweep failed", zap.Error(err))
		return report, err
	}
	a.logger.Info("Billing sweep completed",
		zap.Int("active", report.Active),
		zap.Int("due", report.Due()),
		zap.Int("skipped", report.Skipped),
		zap.Int("aborted", report.Aborted),
		zap.Int("charged", report.Charged),
		zap.Int("failed", report.Failed),
		zap.Int("authorization_errors", report.AuthorizationErrors),
		zap.Int("store_errors", report.StoreErrors),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// Close waits for in-flight notifications and releases external connections.
func (a *application) Close() {
	if a.inline != nil {
		a.inline.Wait()
	}
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.logger.Warn("Failed to close RabbitMQ connection", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close Redis connection", zap.Error(err))
		}
	}
	if err := a.clients.Close(); err != nil {
		a.logger.Warn("Failed to close Firestore client", zap.Error(err))
	}
}
