package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"callsubs-backend/internal/middleware"
	"callsubs-backend/internal/repository/postgres"
	redisrepo "callsubs-backend/internal/repository/redis"
	callService "callsubs-backend/internal/service/call"
	"callsubs-backend/pkg/audit"
	"callsubs-backend/pkg/config"
	"callsubs-backend/pkg/constants"
	"callsubs-backend/pkg/database"
	"callsubs-backend/pkg/email"
	"callsubs-backend/pkg/env"
	"callsubs-backend/pkg/logger"
	"callsubs-backend/pkg/metrics"
	"callsubs-backend/pkg/payment"
	"callsubs-backend/pkg/push"
	"callsubs-backend/pkg/resilience"
	"callsubs-backend/pkg/video"
)

// sweepTimeout bounds one pass so a hung dependency cannot stall the ticker
const sweepTimeout = 2 * time.Minute

func main() {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := env.LoadDotEnv(); err != nil {
		log.Printf("Failed to read .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,

		Service:     "expiry-worker",
		Environment: cfg.Server.Environment,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	appMetrics := metrics.NewMetrics("expiry-worker")

	// 1. Connect to Postgres and Redis
	db, err := database.ConnectWithRetry(ctx, cfg.Database, 5)
	if err != nil {
		logger.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer db.Close()

	redisDB, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisDB.Close()
	redisDB.StartHealthCheck(ctx, constants.HealthCheckPeriod)

	// 2. Vendor clients used when a sweep ends a call
	var payments payment.Provider = payment.NewMockProvider(cfg.Server.AppURL)
	if cfg.Stripe.Provider == "stripe" {
		payments = payment.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret,
			func(operation string, d time.Duration, err error) {
				appMetrics.RecordVendorRequest("stripe", operation, d, err)
			})
	}

	var rooms video.Client = video.NewMockClient("https://callsubs.daily.co")
	if cfg.Daily.Provider == "daily" {
		rooms = video.NewDailyClient(cfg.Daily.BaseURL, cfg.Daily.APIKey, resilience.NewBreaker("daily", resilience.DefaultOptions()))
	}

	var sender email.Sender = &email.MockSender{}
	if cfg.Email.Provider == "resend" {
		sender = email.NewResendSender(cfg.Email.APIKey, cfg.Email.From,
			func(operation string, d time.Duration, err error) {
				appMetrics.RecordVendorRequest("resend", operation, d, err)
			})
	}

	pushProvider, err := push.NewProvider(ctx, cfg.Push)
	if err != nil {
		logger.Fatal("Failed to initialize push provider", zap.Error(err))
	}

	// 3. Call service
	userRepo := postgres.NewUserRepository(db.Pool)
	notifier := callService.NewNotifier(
		email.NewService(sender),
		push.NewService(pushProvider, redisrepo.NewPushTokenRepository(redisDB.Client)),
		userRepo,
		appMetrics,
		cfg.Server.AppURL,
	)
	callSvc := callService.NewService(
		postgres.NewCallRepository(db.Pool),
		postgres.NewStreamerRepository(db.Pool),
		userRepo,
		postgres.NewCallerStatsRepository(db.Pool),
		redisrepo.NewCallEventRepository(redisDB.Client),
		redisrepo.NewWebhookRepository(redisDB.Client),
		payments,
		rooms,
		notifier,
		audit.NewAuditLogger(redisDB.Client),
		appMetrics,
		callService.Config{
			RequestTTL:         cfg.Calls.RequestTTL,
			PaymentWindow:      cfg.Calls.PaymentWindow,
			CompletionGrace:    cfg.Calls.CompletionGrace,
			SweepBatchSize:     cfg.Calls.SweepBatchSize,
			WebhookDedupeTTL:   cfg.Calls.WebhookDedupeTTL,
			PlatformFeePercent: cfg.Stripe.PlatformFeePercent,
			AppURL:             cfg.Server.AppURL,
		},
	)

	// 4. Health and metrics endpoint
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.Recovery(logger.Log))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "expiry-worker",
			"time":    time.Now().UTC(),
		})
	})
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	port := env.GetInt("WORKER_PORT", 9091)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start metrics server", zap.Error(err))
		}
	}()

	// 5. Sweep loop
	done := make(chan struct{})
	go func() {
		defer close(done)
		runSweeps(ctx, callSvc, cfg.Calls.SweepInterval)
	}()

	logger.Info("Expiry worker started",
		zap.Duration("interval", cfg.Calls.SweepInterval),
		zap.Int("batch_size", cfg.Calls.SweepBatchSize),
		zap.Int("port", port))

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down expiry worker...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("Sweep still running at shutdown deadline")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server forced to shutdown", zap.Error(err))
	}

	logger.Info("Expiry worker exited")
}

// runSweeps runs one pass immediately and then on every tick until ctx is done
func runSweeps(ctx context.Context, svc *callService.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
		if _, err := svc.ExpireStale(sweepCtx); err != nil && ctx.Err() == nil {
			logger.Error("Expiry sweep failed", zap.Error(err))
		}
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
