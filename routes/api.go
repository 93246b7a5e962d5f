package routes

import (
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/arteai/publish-engine/environments"
	"github.com/arteai/publish-engine/handlers"
	"github.com/arteai/publish-engine/internal/middlewares"
)

// RegisterRoutes registers all API routes with middleware
func RegisterRoutes(
	e *echo.Echo,
	healthHandler *handlers.HealthHandler,
	postHandler *handlers.PostHandler,
	webhookHandler *handlers.WebhookHandler,
	schedulerHandler *handlers.SchedulerHandler,
	executionHandler *handlers.ExecutionHandler,
	cfg *environments.Config,
) {
	e.GET("/health", healthHandler.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// WhatsApp callbacks are verified by token, not API key. The
	// provider is configured with /webhook; the /webhook/whatsapp alias
	// stays for subscriptions created before the rename.
	e.GET("/webhook", webhookHandler.Verify)
	e.POST("/webhook", webhookHandler.Receive)
	e.GET("/webhook/whatsapp", webhookHandler.Verify)
	e.POST("/webhook/whatsapp", webhookHandler.Receive)

	// API v1 base group
	v1 := e.Group("/api/v1")

	// Post routes with their own API key
	posts := v1.Group("/posts", middlewares.APIKeyAuth(cfg.Auth.PostsAPIKey))

	posts.GET("", postHandler.GetPosts)
	posts.POST("", postHandler.CreatePost)
	posts.GET("/stats", postHandler.GetStats)
	posts.GET("/cached", postHandler.GetCachedPublications)
	posts.GET("/:id", postHandler.GetPost)
	posts.POST("/:id/cancel", postHandler.CancelPost)

	posts.POST("/targets/replay", postHandler.ReplayAllFailedTargets)
	posts.POST("/targets/:id/replay", postHandler.ReplayFailedTarget)
	posts.POST("/targets/:id/approval", postHandler.RequestApproval)

	// Scheduler and execution routes with the operational API key
	schedulerGroup := v1.Group("/scheduler", middlewares.APIKeyAuth(cfg.Auth.SchedulerAPIKey))

	schedulerGroup.POST("/start", schedulerHandler.StartScheduler)
	schedulerGroup.POST("/stop", schedulerHandler.StopScheduler)
	schedulerGroup.GET("/status", schedulerHandler.GetSchedulerStatus)

	executions := v1.Group("/executions", middlewares.APIKeyAuth(cfg.Auth.SchedulerAPIKey))

	executions.GET("/history", executionHandler.GetHistory)
	executions.GET("/stats", executionHandler.GetExecutionStats)
	executions.GET("/breakers", executionHandler.GetBreakers)
}
