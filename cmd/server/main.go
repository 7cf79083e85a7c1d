// Package main runs the rental-management API server with realtime access updates and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rentflow/backend/config"
	"github.com/rentflow/backend/internal/access"
	"github.com/rentflow/backend/internal/auth"
	"github.com/rentflow/backend/internal/billing"
	"github.com/rentflow/backend/internal/middleware"
	"github.com/rentflow/backend/internal/models"
	"github.com/rentflow/backend/internal/realtime"
	"github.com/rentflow/backend/pkg/database"
	"github.com/rentflow/backend/pkg/queue"
	"github.com/rentflow/backend/pkg/redis"
	"github.com/rentflow/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Access
	authRepo := auth.NewRepository(pool)
	subRepo := access.NewRepository(pool)
	masterAdmins := access.NewMasterAdminPolicy(cfg.Access.MasterAdminEmails...)
	accessSvc := access.NewService(subRepo, authRepo, access.NewRedisCache(rdb.Client, cfg.Access.CacheTTL),
		access.Policies{masterAdmins},
		access.ServiceConfig{
			FetchTimeout:       cfg.Access.FetchTimeout,
			BreakerFailures:    cfg.Access.BreakerFailures,
			BreakerOpenTimeout: cfg.Access.BreakerOpenTimeout,
		}, logger)
	dispatcher := access.NewDispatcher(accessSvc, logger)
	accessHandler := access.NewHandler(accessSvc, dispatcher, jobQueue)

	// Realtime
	pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, pubsub, pubsub)
	dispatcher.OnAuthStateChange(hub.AccessListener())

	// Auth
	authHandler := auth.NewHandler(authRepo, jwtService, dispatcher, logger)
	authHandler.ReserveEmails(masterAdmins.Reserved)

	// Billing
	billingRepo := billing.NewRepository(pool)
	checkoutSvc := billing.NewService(billingRepo, cfg.Billing.FetchTimeout, logger)
	billingHandler := billing.NewHandler(checkoutSvc, billingRepo)
	billingWebhook := billing.NewWebhookHandler(billingRepo, subRepo, jobQueue, cfg.Billing.WebhookSecret, logger)
	if cfg.Billing.WebhookSecret == "" {
		logger.Warn("BILLING_WEBHOOK_SECRET not set; webhook signatures are not verified")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Plans and quotes are public so the pricing page works signed out.
	router.GET("/plans", billingHandler.ListPlans)
	router.POST("/checkout/quote", billingHandler.Quote)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService.TokenClaims))
	{
		api.POST("/auth/refresh", authHandler.Refresh)
		api.POST("/auth/logout", authHandler.Logout)
		api.GET("/me", authHandler.Me)
		api.GET("/me/access", accessHandler.Get)
		api.POST("/me/access/refresh", accessHandler.Refresh)
		api.POST("/checkout/coupons/validate", billingHandler.ValidateCoupon)

		api.POST("/admin/users/:id/access/refresh", middleware.RequireRole(string(models.RoleAdmin)), accessHandler.AdminRefresh)

		// Dashboard-class routes
		app := api.Group("/app")
		app.GET("/session", access.RequireActiveSubscription(accessSvc), accessHandler.Session)
		app.GET("/session/verify", access.RequireFreshActiveSubscription(accessSvc), accessHandler.Session)
	}

	// Webhooks (no JWT; HMAC signature checked in handler)
	router.POST("/webhooks/billing", billingWebhook.Handle)

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, dispatcher, accessSvc, jwtService.TokenClaims, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
