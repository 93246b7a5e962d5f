package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/arteai/publish-engine/environments"
	"github.com/arteai/publish-engine/handlers"
	"github.com/arteai/publish-engine/internal/adapters"
	"github.com/arteai/publish-engine/internal/executor"
	"github.com/arteai/publish-engine/internal/monitor"
	"github.com/arteai/publish-engine/internal/repository"
	"github.com/arteai/publish-engine/internal/resilience"
	"github.com/arteai/publish-engine/internal/scheduler"
	"github.com/arteai/publish-engine/internal/service"
	"github.com/arteai/publish-engine/pkg/database"
	"github.com/arteai/publish-engine/pkg/logger"
	"github.com/arteai/publish-engine/pkg/redis"
	"github.com/arteai/publish-engine/pkg/validator"
	"github.com/arteai/publish-engine/pkg/whatsapp"
	"github.com/arteai/publish-engine/routes"

	_ "github.com/arteai/publish-engine/docs" // swagger docs
)

// @title Arte AI Publish Engine API
// @version 1.0
// @description Scheduled multi-platform publishing engine for Arte AI
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email suporte@arteai.com.br

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @schemes http https
func main() {
	logger.Init()

	// Load config
	cfg := environments.Load()

	// Hard-fail if required secrets are missing
	if cfg.Auth.PostsAPIKey == "" {
		logger.Fatalf("POSTS_API_KEY is required but not set")
	}
	if cfg.Auth.SchedulerAPIKey == "" {
		logger.Fatalf("SCHEDULER_API_KEY is required but not set")
	}

	logger.Infof("Starting Arte AI Publish Engine...")

	// Init DB
	db, err := database.NewMySQLDB(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed data
	if os.Getenv("SEED_DATA") == "true" {
		if err := database.SeedTestData(db); err != nil {
			logger.Warnf("Failed to seed test data: %v", err)
		}
	}

	// Init redis
	var redisClient *redis.Client
	redisClient, err = redis.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Warnf("Redis not available, caching disabled: %v", err)
		redisClient = nil
	}

	// WhatsApp Business client, shared by the approval flow and the
	// whatsapp publish adapter
	waClient := whatsapp.NewClient(cfg.WhatsApp)
	if waClient.Configured() {
		logger.Infof("WhatsApp Business configured for phone number %s", cfg.WhatsApp.PhoneNumberID)
	} else {
		logger.Warnf("WhatsApp Business not configured, approval flow disabled")
	}

	// Platform adapters
	registry := adapters.NewRegistry(
		adapters.NewFacebookAdapter(cfg.Platforms, cfg.Executor.PublishTimeout),
		adapters.NewInstagramAdapter(cfg.Platforms, cfg.Executor.PublishTimeout),
		adapters.NewTikTokAdapter(cfg.Platforms, cfg.Executor.PublishTimeout),
		adapters.NewWhatsAppAdapter(waClient, cfg.WhatsApp.ReviewerPhone),
	)

	// Initialize repositories
	postRepo := repository.NewPostRepository(db, cfg.StorageRetry)
	approvalRepo := repository.NewApprovalRepository(db, cfg.StorageRetry)

	// Recover targets stranded by an unclean shutdown
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if requeued, err := postRepo.RequeueStuck(bootCtx); err != nil {
		logger.Errorf("Failed to requeue stuck targets: %v", err)
	} else if requeued > 0 {
		logger.Warnf("Requeued %d targets left over from previous run", requeued)
	}
	bootCancel()

	// Initialize service
	var publications service.PublicationReader
	if redisClient != nil {
		publications = redisClient
	}

	postService := service.NewPostService(
		postRepo,
		approvalRepo,
		waClient,
		publications,
		cfg.WhatsApp.ReviewerPhone,
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Execution pipeline: breaker registry, monitor, worker pool
	breakers := resilience.NewBreakerRegistry(cfg.Breaker)
	mon := monitor.NewMonitor()

	var cache executor.PublicationCache
	if redisClient != nil {
		cache = redisClient
	}

	exec := executor.NewExecutor(postRepo, registry, breakers, mon, cache, cfg.Executor, cfg.PlatformRetry)
	exec.Start(ctx)

	// Initialize scheduler
	sched := scheduler.NewScheduler(postRepo, approvalRepo, exec, cfg.Scheduler)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redisClient)
	postHandler := handlers.NewPostHandler(postService)
	webhookHandler := handlers.NewWebhookHandler(postService, cfg.WhatsApp.VerifyToken)
	schedulerHandler := handlers.NewSchedulerHandler(sched, ctx)
	executionHandler := handlers.NewExecutionHandler(mon, breakers)

	// Auto-start scheduler
	if os.Getenv("AUTO_START_SCHEDULER") != "false" {
		logger.Infof("Auto-starting scheduler...")
		if err := sched.Start(ctx); err != nil {
			logger.Warnf("Failed to auto-start scheduler: %v", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			"x-api-key",
		},
	}))

	// Setup routes
	routes.RegisterRoutes(e, healthHandler, postHandler, webhookHandler, schedulerHandler, executionHandler, cfg)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Infof("Server starting on http://localhost%s", addr)
		logger.Infof("Swagger docs available at http://localhost%s/swagger/index.html", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down gracefully...")

	// Stop scheduler first so no new targets are claimed
	if sched.IsRunning() {
		logger.Infof("Stopping scheduler...")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()

		done := make(chan error, 1)
		go func() {
			done <- sched.Stop()
		}()

		select {
		case err := <-done:
			if err != nil {
				logger.Errorf("Error stopping scheduler: %v", err)
			} else {
				logger.Infof("Scheduler stopped successfully")
			}
		case <-stopCtx.Done():
			logger.Warnf("Scheduler stop timeout, forcing shutdown")
		}
	}

	// Drain the executor so in-flight publishes finish
	logger.Infof("Stopping executor...")
	exec.Stop()

	// Cancel context to signal remaining goroutines to stop
	cancel()

	// Shutdown HTTP server (with timeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Infof("Shutting down HTTP server...")
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	} else {
		logger.Infof("HTTP server stopped successfully")
	}

	// Close database connection
	logger.Infof("Closing database connection...")
	if err := db.Close(); err != nil {
		logger.Errorf("Error closing database: %v", err)
	}

	// Close Redis connection
	if redisClient != nil {
		logger.Infof("Closing Redis connection...")
		if err := redisClient.Close(); err != nil {
			logger.Errorf("Error closing Redis: %v", err)
		}
	}

	logger.Infof("Graceful shutdown completed")
}
