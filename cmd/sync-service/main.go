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
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"sif-backend/internal/config"
	"sif-backend/internal/database"
	notificationHandler "sif-backend/internal/handler/http/notification"
	pushHandler "sif-backend/internal/handler/http/push"
	sessionHandler "sif-backend/internal/handler/http/session"
	settingsHandler "sif-backend/internal/handler/http/settings"
	"sif-backend/internal/middleware"
	fsrepo "sif-backend/internal/repository/firestore"
	redisrepo "sif-backend/internal/repository/redis"
	notificationService "sif-backend/internal/service/notification"
	pushService "sif-backend/internal/service/push"
	"sif-backend/internal/service/session"
	settingsService "sif-backend/internal/service/settings"
	"sif-backend/pkg/cache"
	"sif-backend/pkg/constants"
	"sif-backend/pkg/jwt"
	"sif-backend/pkg/logger"
	"sif-backend/pkg/metrics"
	"sif-backend/pkg/push"
	"sif-backend/pkg/resilience"
)

// settingsRepo adapts the Firestore repository to the settings service
// contract, narrowing the concrete subscription to the interface.
type settingsRepo struct {
	*fsrepo.SettingsRepository
}

func (r settingsRepo) Listen(ctx context.Context, uid string) (settingsService.Subscription, error) {
	return r.SettingsRepository.Listen(ctx, uid)
}

// notificationRepo does the same for the notification service
type notificationRepo struct {
	*fsrepo.NotificationRepository
}

func (r notificationRepo) Subscribe(ctx context.Context, uid string, limit int) (notificationService.Subscription, error) {
	return r.NotificationRepository.Subscribe(ctx, uid, limit)
}

func main() {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()

	if err := logger.Init(&logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.IsProduction() {
		if cfg.JWTSecret == "" || cfg.JWTSecret == "secret" {
			log.Fatal("JWT_SECRET environment variable is required in production")
		}
		if cfg.FirebaseProjectID == "" {
			log.Fatal("FIREBASE_PROJECT_ID environment variable is required in production")
		}
	}

	jwtManager := jwt.NewJWTManager(cfg.JWTSecret, cfg.AccessTokenExpiry, cfg.RefreshTokenExpiry)

	// Remote document store
	fsClient, err := fsrepo.NewClient(ctx, &fsrepo.Config{
		ProjectID:       cfg.FirebaseProjectID,
		CredentialsPath: cfg.FirebaseCredentialsPath,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Firestore: %v", err)
	}
	defer fsClient.Close()

	// Device-local store
	redisDB, err := database.NewRedisDB(&database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
		Timeout:  cfg.RedisTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisDB.Close()
	redisDB.StartHealthCheck(ctx, 30*time.Second)

	// Push transport
	provider, err := push.NewProvider()
	if err != nil {
		log.Fatalf("Failed to initialize push provider: %v", err)
	}

	m := metrics.NewMetrics("sync-service")

	// Repositories
	notifRepo := fsrepo.NewNotificationRepository(fsClient)
	setRepo := fsrepo.NewSettingsRepository(fsClient)
	tokenRepo := fsrepo.NewTokenRepository(fsClient)
	offlineRepo := redisrepo.NewOfflineSettingsRepository(redisDB)
	mirrorRepo := redisrepo.NewPushMirrorRepository(redisDB)

	registrar := pushService.NewRegistrar(tokenRepo, mirrorRepo, m)

	// Each authenticated user gets session-scoped stores with their own
	// remote subscriptions; the manager opens them on first request. The
	// manager runs on the process context so listeners survive request
	// cancellation.
	sessions := session.NewManager(ctx, session.Deps{
		SettingsRepo:     settingsRepo{setRepo},
		Offline:          offlineRepo,
		Cache:            cache.NewSettingsCache(constants.SettingsCacheTTL, constants.SettingsCacheMaxEntries),
		Migrator:         settingsService.NewMigrator(),
		NotificationRepo: notificationRepo{notifRepo},
		Tokens:           tokenRepo,
		Badges:           mirrorRepo,
		Provider:         provider,
		Breaker:          resilience.NewPushResilience(),
		Permissions:      registrar,
		Metrics:          m,
	})

	// Handlers
	notifHdlr := notificationHandler.NewHandler(sessions)
	setHdlr := settingsHandler.NewHandler(sessions)
	pushHdlr := pushHandler.NewHandler(registrar)
	sessHdlr := sessionHandler.NewHandler(sessions)

	// Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.HealthCheck("sync-service"))
	router.Use(middleware.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.NewPrometheusMiddleware(m).Handler())
	router.Use(middleware.Timeout(constants.DefaultTimeout))

	router.GET("/metrics", middleware.MetricsHandler(m))

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	{
		notifications := v1.Group("/notifications")
		{
			notifications.GET("", notifHdlr.List)
			notifications.GET("/count", notifHdlr.Count)
			notifications.POST("", notifHdlr.Create)
			notifications.POST("/ingest", notifHdlr.Ingest)
			notifications.POST("/read-all", notifHdlr.MarkAllRead)
			notifications.POST("/:id/read", notifHdlr.MarkRead)
			notifications.DELETE("/:id", notifHdlr.Delete)
		}

		settings := v1.Group("/settings")
		{
			settings.GET("", setHdlr.Get)
			settings.PUT("", setHdlr.Save)
			settings.PATCH("/:section", setHdlr.UpdateSection)
			settings.POST("/reset", setHdlr.Reset)
		}

		pushRoutes := v1.Group("/push")
		{
			pushRoutes.POST("/permission", pushHdlr.RecordPermission)
			pushRoutes.POST("/token", pushHdlr.RegisterToken)
			pushRoutes.DELETE("/token", pushHdlr.UnregisterToken)
		}

		sessionRoutes := v1.Group("/session")
		{
			sessionRoutes.POST("/foreground", sessHdlr.Foreground)
			sessionRoutes.DELETE("", sessHdlr.Close)
		}
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Sync service starting", zap.Int("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down sync service")
	sessions.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Sync service exited")
}
