package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/thetact/tact-backend/internal/api"
	"github.com/thetact/tact-backend/internal/config"
	"github.com/thetact/tact-backend/internal/middleware"
)

func main() {
	sweepOnce := flag.Bool("sweep-once", false, "run a single billing sweep and exit")
	flag.Parse()

	// Load .env file. In production, environment variables should be set directly.
	if os.Getenv("GIN_MODE") != "release" {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: Error loading .env file:", err)
		}
	}

	appConfig, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to load application configuration: %v", err)
	}

	zapLogger, err := newLogger(appConfig)
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to initialize Zap logger: %v", err)
	}
	defer zapLogger.Sync()
	zapLogger.Info("Application configuration loaded", zap.String("store_backend", appConfig.StoreBackend))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, appConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to initialize application", zap.Error(err))
	}
	defer app.Close()

	if *sweepOnce {
		if _, err := app.runSweep(ctx); err != nil {
			app.Close()
			zapLogger.Fatal("Billing sweep aborted", zap.Error(err))
		}
		return
	}

	app.runConsumer(ctx)

	scheduler, err := startBillingCron(ctx, app)
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to schedule billing sweep", zap.Error(err))
	}

	if appConfig.IsRelease() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(zapLogger))
	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware(appConfig.ClientURL))
	router.Use(middleware.MetricsMiddleware(app.metrics))

	api.SetupRoutes(router, api.Dependencies{
		Checkout: app.checkout,
		Webhooks: app.webhooks,
		Auth:     app.auth,
		Mail:     app.mail,
		Metrics:  app.metrics,
		Logger:   zapLogger,
	})

	serverAddr := fmt.Sprintf(":%s", appConfig.Port)
	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	zapLogger.Info("Starting HTTP server...", zap.String("address", serverAddr), zap.String("ginMode", gin.Mode()))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("Received shutdown signal")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Stop waits for a running sweep to record the attempts it had already started.
	cronDone := scheduler.Stop()
	select {
	case <-cronDone.Done():
	case <-shutdownCtx.Done():
		zapLogger.Warn("Billing sweep still running at shutdown deadline")
	}

	zapLogger.Info("Server exiting gracefully.")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsRelease() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// startBillingCron schedules the monthly sweep. Overlapping runs are skipped.
func startBillingCron(ctx context.Context, app *application) (*cron.Cron, error) {
	loc, err := time.LoadLocation(app.cfg.BillingTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid BILLING_TIMEZONE %q: %w", app.cfg.BillingTimezone, err)
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if _, err := c.AddFunc(app.cfg.BillingSchedule, func() {
		// On shutdown, charges already sent finish and subscribers not yet reached stay due.
		_, _ = app.runSweep(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid BILLING_SCHEDULE %q: %w", app.cfg.BillingSchedule, err)
	}
	c.Start()
	app.logger.Info("Billing sweep scheduled",
		zap.String("schedule", app.cfg.BillingSchedule),
		zap.String("timezone", loc.String()))
	return c, nil
}
