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

	internaldb "callsubs-backend/internal/database"
	"callsubs-backend/internal/domain"
	analyticsHandler "callsubs-backend/internal/handler/http/analytics"
	authHandler "callsubs-backend/internal/handler/http/auth"
	callHandler "callsubs-backend/internal/handler/http/call"
	paymentHandler "callsubs-backend/internal/handler/http/payment"
	pushHandler "callsubs-backend/internal/handler/http/push"
	streamerHandler "callsubs-backend/internal/handler/http/streamer"
	wsHandler "callsubs-backend/internal/handler/ws"
	"callsubs-backend/internal/middleware"
	"callsubs-backend/internal/repository/postgres"
	redisrepo "callsubs-backend/internal/repository/redis"
	analyticsService "callsubs-backend/internal/service/analytics"
	authService "callsubs-backend/internal/service/auth"
	callService "callsubs-backend/internal/service/call"
	"callsubs-backend/internal/service/storage"
	streamerService "callsubs-backend/internal/service/streamer"
	"callsubs-backend/pkg/audit"
	"callsubs-backend/pkg/cache"
	"callsubs-backend/pkg/config"
	"callsubs-backend/pkg/constants"
	"callsubs-backend/pkg/database"
	"callsubs-backend/pkg/email"
	"callsubs-backend/pkg/env"
	"callsubs-backend/pkg/jwt"
	"callsubs-backend/pkg/logger"
	"callsubs-backend/pkg/metrics"
	"callsubs-backend/pkg/payment"
	"callsubs-backend/pkg/push"
	"callsubs-backend/pkg/resilience"
	"callsubs-backend/pkg/twitch"
	"callsubs-backend/pkg/video"
)

const (
	profileCacheTTL  = 30 * time.Second
	profileCacheSize = 5000
	dbPoolThreshold  = 0.9
	minioRegion      = "us-east-1"
)

func main() {
	// Initialize context
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := env.LoadDotEnv(); err != nil {
		log.Printf("Failed to read .env: %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,

		Service:     cfg.Server.ServiceName,
		Environment: cfg.Server.Environment,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := middleware.RegisterValidators(); err != nil {
		logger.Fatal("Failed to register validators", zap.Error(err))
	}

	// 1. Setup JWT Manager and metrics
	jwtManager := jwt.NewJWTManager(
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)
	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)

	// 2. Connect to Postgres
	db, err := database.ConnectWithRetry(ctx, cfg.Database, 5)
	if err != nil {
		logger.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := internaldb.EnsureSchema(ctx, db.Pool); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
		logger.Info("Database schema applied")
	}

	// 3. Connect to Redis
	redisDB, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisDB.Close()
	redisDB.StartHealthCheck(ctx, constants.HealthCheckPeriod)

	// 4. Initialize vendor clients
	vendorObserver := func(vendor string) func(string, time.Duration, error) {
		return func(operation string, duration time.Duration, err error) {
			appMetrics.RecordVendorRequest(vendor, operation, duration, err)
		}
	}

	var payments payment.Provider
	switch cfg.Stripe.Provider {
	case "stripe":
		payments = payment.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, vendorObserver("stripe"))
	default:
		logger.Warn("Using mock payment provider")
		payments = payment.NewMockProvider(cfg.Server.AppURL)
	}

	var rooms video.Client
	switch cfg.Daily.Provider {
	case "daily":
		rooms = video.NewDailyClient(cfg.Daily.BaseURL, cfg.Daily.APIKey, resilience.NewBreaker("daily", resilience.DefaultOptions()))
	default:
		logger.Warn("Using mock video provider")
		rooms = video.NewMockClient("https://callsubs.daily.co")
	}

	var oauth twitch.Provider
	switch cfg.Twitch.Provider {
	case "twitch":
		oauth = twitch.NewOAuthProvider(cfg.Twitch.ClientID, cfg.Twitch.ClientSecret, cfg.Twitch.RedirectURL)
	default:
		logger.Warn("Using mock Twitch provider")
		oauth = &twitch.MockProvider{RedirectURL: cfg.Twitch.RedirectURL}
	}

	var sender email.Sender
	switch cfg.Email.Provider {
	case "resend":
		sender = email.NewResendSender(cfg.Email.APIKey, cfg.Email.From, vendorObserver("resend"))
	default:
		sender = &email.MockSender{}
	}
	emailSvc := email.NewService(sender)

	pushProvider, err := push.NewProvider(ctx, cfg.Push)
	if err != nil {
		logger.Fatal("Failed to initialize push provider", zap.Error(err))
	}

	// Exports are returned inline when MinIO is not configured
	var exportStore analyticsService.ExportStore
	if cfg.MinIO.Endpoint != "" {
		minioClient, err := storage.NewMinioClient(cfg.MinIO, minioRegion, resilience.NewBreaker("minio", resilience.DefaultOptions()))
		if err != nil {
			logger.Fatal("Failed to create MinIO client", zap.Error(err))
		}
		if err := minioClient.EnsureBucket(ctx); err != nil {
			logger.Fatal("Failed to prepare export bucket", zap.Error(err))
		}
		exportStore = minioClient
	}

	// 5. Initialize Repositories
	userRepo := postgres.NewUserRepository(db.Pool)
	streamerRepo := postgres.NewStreamerRepository(db.Pool)
	callRepo := postgres.NewCallRepository(db.Pool)
	statsRepo := postgres.NewCallerStatsRepository(db.Pool)
	analyticsRepo := postgres.NewAnalyticsRepository(db.Pool)
	sessionRepo := redisrepo.NewSessionRepository(redisDB.Client)
	pushTokenRepo := redisrepo.NewPushTokenRepository(redisDB.Client)
	presenceRepo := redisrepo.NewPresenceRepository(redisDB, constants.PresenceTTL)
	webhookRepo := redisrepo.NewWebhookRepository(redisDB.Client)
	callEventRepo := redisrepo.NewCallEventRepository(redisDB.Client)
	auditLogger := audit.NewAuditLogger(redisDB.Client)

	// 6. Initialize Services
	pushSvc := push.NewService(pushProvider, pushTokenRepo)
	authSvc := authService.NewService(userRepo, sessionRepo, oauth, jwtManager, auditLogger, cfg.Server.AppURL)

	profiles := cache.NewMemoryCache[*domain.PublicProfile](profileCacheTTL, profileCacheSize)
	stopCleanup := profiles.StartCleanup(time.Minute)
	defer stopCleanup()

	streamerSvc := streamerService.NewService(
		streamerRepo,
		userRepo,
		statsRepo,
		callRepo,
		presenceRepo,
		payments,
		auditLogger,
		profiles,
		streamerService.Config{Currency: cfg.Stripe.Currency, AppURL: cfg.Server.AppURL},
	)

	notifier := callService.NewNotifier(emailSvc, pushSvc, userRepo, appMetrics, cfg.Server.AppURL)
	callSvc := callService.NewService(
		callRepo,
		streamerRepo,
		userRepo,
		statsRepo,
		callEventRepo,
		webhookRepo,
		payments,
		rooms,
		notifier,
		auditLogger,
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

	analyticsSvc := analyticsService.NewService(analyticsRepo, streamerRepo, exportStore, cfg.Stripe.PlatformFeePercent)

	// 7. Initialize Handlers
	authHdlr := authHandler.NewHandler(authSvc)
	streamerHdlr := streamerHandler.NewHandler(streamerSvc)
	callHdlr := callHandler.NewHandler(callSvc)
	paymentHdlr := paymentHandler.NewHandler(callSvc)
	analyticsHdlr := analyticsHandler.NewHandler(analyticsSvc)
	pushHdlr := pushHandler.NewHandler(pushSvc)

	hub := wsHandler.NewHub(callEventRepo, appMetrics, cfg.Server.AllowedOrigins, 0)
	eventsHdlr := wsHandler.NewEventsHandler(hub, callSvc, streamerSvc, presenceRepo)

	// 8. Setup Gin Router
	router := gin.New()

	router.Use(middleware.Recovery(logger.Log))
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger.Log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": cfg.Server.ServiceName,
			"time":    time.Now().UTC(),
		})
	})
	router.GET("/ready", func(c *gin.Context) {
		checks := gin.H{"postgres": "ok", "redis": "ok"}
		status := http.StatusOK
		if err := db.Ping(c.Request.Context()); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := redisDB.Client.Ping(c.Request.Context()).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, checks)
	})

	// Metrics endpoint (for Prometheus scraping)
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	limiter := middleware.NewRateLimiter(redisDB, appMetrics)
	rules := middleware.NewRateLimitRules(cfg.Server.RateLimit, cfg.Server.RateWindow)
	authRequired := middleware.AuthMiddleware(jwtManager, authSvc)

	poolUsage := func() (int32, int32) {
		stat := db.Pool.Stat()
		return stat.AcquiredConns(), stat.MaxConns()
	}

	// API version 1 routes
	v1 := router.Group("/v1")

	// Event streams outlive the request timeout
	streams := v1.Group("", authRequired)
	{
		streams.GET("/calls/:id/events", eventsHdlr.CallEvents)
		streams.GET("/streamers/me/events", eventsHdlr.Dashboard)
	}

	api := v1.Group("",
		middleware.Timeout(cfg.Server.RequestTimeout, appMetrics),
		middleware.DBPoolGuard(poolUsage, dbPoolThreshold),
	)
	{
		api.GET("/time", callHdlr.ServerTime)

		// Stripe retries on non-2xx, signature is checked by the service
		api.POST("/payments/webhook", paymentHdlr.Webhook)

		// Auth routes (public, no authentication required)
		auth := api.Group("/auth", limiter.Limit(rules.Auth))
		{
			auth.GET("/twitch/login", authHdlr.Login)
			auth.GET("/twitch/callback", authHdlr.Callback)
			auth.POST("/refresh", authHdlr.Refresh)
			auth.POST("/logout", authRequired, authHdlr.Logout)
		}

		// Public streamer directory
		public := api.Group("/streamers", limiter.Limit(rules.Default))
		{
			public.GET("", streamerHdlr.List)
			public.GET("/:slug", streamerHdlr.PublicProfile)
		}

		protected := api.Group("", authRequired, limiter.Limit(rules.Default))
		{
			users := protected.Group("/users/me")
			{
				users.GET("", authHdlr.Me)
				users.GET("/calls", callHdlr.ListMine)
			}

			streamers := protected.Group("/streamers")
			{
				streamers.POST("", streamerHdlr.Become)
				streamers.POST("/:slug/calls", limiter.Limit(rules.CallRequest), callHdlr.Request)

				me := streamers.Group("/me")
				me.GET("", streamerHdlr.Me)
				me.PUT("/settings", streamerHdlr.UpdateSettings)
				me.POST("/availability", streamerHdlr.SetAvailability)
				me.POST("/stripe/onboard", streamerHdlr.StartOnboarding)
				me.GET("/stripe/status", streamerHdlr.StripeStatus)
				me.POST("/callers/:viewer_id/block", streamerHdlr.BlockCaller)
				me.POST("/callers/:viewer_id/unblock", streamerHdlr.UnblockCaller)
				me.GET("/calls", callHdlr.ListIncoming)
				me.GET("/calls/export", limiter.Limit(rules.Export), analyticsHdlr.Export)
				me.GET("/analytics", analyticsHdlr.Get)
			}

			calls := protected.Group("/calls")
			{
				calls.GET("/:id", callHdlr.Get)
				calls.GET("/:id/timeline", callHdlr.Timeline)

				actions := calls.Group("", limiter.Limit(rules.CallAction))
				actions.POST("/:id/accept", callHdlr.Accept)
				actions.POST("/:id/reject", callHdlr.Reject)
				actions.POST("/:id/cancel", callHdlr.Cancel)
				actions.POST("/:id/complete", callHdlr.Complete)
				actions.POST("/:id/token", callHdlr.JoinToken)
			}

			pushTokens := protected.Group("/push/tokens")
			{
				pushTokens.POST("", pushHdlr.RegisterToken)
				pushTokens.DELETE("", pushHdlr.UnregisterToken)
			}
		}
	}

	// 9. Start server in goroutine
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("API service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("environment", cfg.Server.Environment),
			zap.String("payment_provider", cfg.Stripe.Provider),
			zap.String("video_provider", cfg.Daily.Provider),
			zap.Bool("exports_to_minio", exportStore != nil))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 10. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
