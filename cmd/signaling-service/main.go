package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wavelink-backend/internal/broker"
	"wavelink-backend/internal/config"
	intDatabase "wavelink-backend/internal/database"
	callHandler "wavelink-backend/internal/handler/http/call"
	presenceHandler "wavelink-backend/internal/handler/http/presence"
	profileHandler "wavelink-backend/internal/handler/http/profile"
	pushHandler "wavelink-backend/internal/handler/http/push"
	signalHandler "wavelink-backend/internal/handler/http/signal"
	wsHandler "wavelink-backend/internal/handler/ws"
	"wavelink-backend/internal/middleware"
	"wavelink-backend/internal/repository/cockroach"
	redisRepo "wavelink-backend/internal/repository/redis"
	historyService "wavelink-backend/internal/service/history"
	notifyService "wavelink-backend/internal/service/notify"
	profileService "wavelink-backend/internal/service/profile"
	relayService "wavelink-backend/internal/service/relay"
	pkgDatabase "wavelink-backend/pkg/database"
	"wavelink-backend/pkg/jwt"
	"wavelink-backend/pkg/logger"
	"wavelink-backend/pkg/metrics"
	"wavelink-backend/pkg/push"
)

func main() {
	ctx := context.Background()

	// 1. Configuration and logging
	cfg := config.Load()
	logger.InitDefault()
	defer logger.Sync()

	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET environment variable is required")
	}
	if len(cfg.JWTSecret) < 32 {
		logger.Fatal("JWT_SECRET must be at least 32 characters")
	}
	jwtManager := jwt.NewJWTManager(cfg.JWTSecret, 15*time.Minute)

	// 2. Connect to CockroachDB with exponential backoff retry
	dbConfig := &pkgDatabase.CockroachConfig{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	db, err := connectWithRetry(ctx, dbConfig, 5)
	if err != nil {
		logger.Fatal("failed to connect to CockroachDB", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to CockroachDB")

	callRepo := cockroach.NewCallRepository(db.Pool)
	membershipRepo := cockroach.NewMembershipRepository(db.Pool)
	userRepo := cockroach.NewUserRepository(db.Pool)

	// 3. Redis with degraded mode support
	redisDB, err := intDatabase.NewRedisDB(&intDatabase.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       0,
		PoolSize: 10,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		logger.Fatal("failed to create Redis client", zap.Error(err))
	}
	defer redisDB.Close()

	redisDB.StartHealthCheck(ctx, 10*time.Second)
	logger.Info("connected to Redis", zap.String("host", cfg.RedisHost))

	messageBroker := broker.NewRedisBroker(redisDB)
	presenceRepo := redisRepo.NewPresenceRepository(redisDB)
	pushTokenRepo := redisRepo.NewPushTokenRepository(redisDB)

	// 4. Push providers (FCM / APNs, whichever is configured)
	pushSvc := push.NewServiceFromEnv(ctx)

	// 5. Avatar storage
	var objectStorage profileService.ObjectStorage
	if minioClient, err := profileService.NewObjectStorage(
		cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOUseSSL); err != nil {
		// Profiles still resolve without avatars.
		logger.Warn("MinIO unavailable, avatar URLs disabled", zap.Error(err))
	} else {
		objectStorage = minioClient
	}

	// 6. Metrics
	appMetrics := metrics.NewMetrics("signaling-service")
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	// 7. Services
	profileSvc := profileService.NewService(userRepo, objectStorage, cfg.MinIOBucket)
	defer profileSvc.Close()
	relaySvc := relayService.NewService(membershipRepo, messageBroker, appMetrics)
	notifySvc := notifyService.NewService(messageBroker, profileSvc, presenceRepo, pushTokenRepo, pushSvc, appMetrics)
	historySvc := historyService.NewService(callRepo, membershipRepo, appMetrics)

	// 8. Handlers and the delivery hub
	signalHdlr := signalHandler.NewHandler(relaySvc)
	callHdlr := callHandler.NewHandler(historySvc, notifySvc)
	presenceHdlr := presenceHandler.NewHandler(presenceRepo)
	pushHdlr := pushHandler.NewHandler(pushTokenRepo)
	profileHdlr := profileHandler.NewHandler(profileSvc)

	channelPolicy := wsHandler.NewChannelPolicy(membershipRepo)
	hub := wsHandler.NewHub(messageBroker, channelPolicy, appMetrics, cfg.MaxWSConnections)

	// 9. Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(prometheusMiddleware.Handler())

	router.GET("/health", middleware.HealthCheck("signaling-service"))
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	relayLimiter := middleware.NewRateLimiter(redisDB, cfg.RelayRateLimit, cfg.RelayRateWindow)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	{
		v1.POST("/signal", relayLimiter.Middleware(), signalHdlr.Relay)

		v1.POST("/calls", callHdlr.Start)
		v1.GET("/calls", callHdlr.List)
		v1.POST("/calls/decline", callHdlr.Decline)
		v1.POST("/calls/cancel", callHdlr.Cancel)
		v1.GET("/calls/:id", callHdlr.Get)
		v1.POST("/calls/:id/outcome", callHdlr.RecordOutcome)
		v1.POST("/calls/:id/join", callHdlr.Join)
		v1.POST("/calls/:id/leave", callHdlr.Leave)
		v1.POST("/calls/:id/invite", callHdlr.Invite)

		v1.POST("/presence/heartbeat", presenceHdlr.Heartbeat)
		v1.DELETE("/presence", presenceHdlr.Offline)

		v1.POST("/push/tokens", pushHdlr.Register)
		v1.DELETE("/push/tokens", pushHdlr.Unregister)

		v1.GET("/users/:id/profile", profileHdlr.Get)

		v1.GET("/ws", hub.ServeWS)
	}

	// 10. Serve with graceful shutdown
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		logger.Info("signaling service starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}

// connectWithRetry dials CockroachDB with exponential backoff. The first
// attempt is immediate; later ones back off up to 30s.
func connectWithRetry(ctx context.Context, cfg *pkgDatabase.CockroachConfig, maxRetries int) (*pkgDatabase.CockroachDB, error) {
	baseDelay := 1 * time.Second
	maxDelay := 30 * time.Second

	db, err := pkgDatabase.NewCockroachDB(ctx, cfg)
	if err == nil {
		return db, nil
	}

	for attempt := 2; attempt <= maxRetries; attempt++ {
		delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt-1)))
		if delay > maxDelay {
			delay = maxDelay
		}
		logger.Warn("CockroachDB connection failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		time.Sleep(delay)

		db, err = pkgDatabase.NewCockroachDB(ctx, cfg)
		if err == nil {
			return db, nil
		}
	}
	return nil, err
}
