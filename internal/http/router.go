package http

import (
	"time"

	"github.com/campaign-hub/backend/internal/config"
	"github.com/campaign-hub/backend/internal/http/handlers"
	"github.com/campaign-hub/backend/internal/middleware"
	"github.com/campaign-hub/backend/internal/rbac"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	dispatchHandler *handlers.DispatchHandler,
	webhookHandler *handlers.WebhookHandler,
	dashboardHandler *handlers.DashboardHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")

	// Scheduler trigger (external cron, shared secret)
	internal := api.Group("/internal", middleware.SchedulerSecretMiddleware(cfg.CronSecret))
	internal.Post("/dispatch/run", dispatchHandler.RunScheduler)
	internal.Get("/dispatch/run", dispatchHandler.RunScheduler)

	// Provider callbacks
	api.Post("/webhooks/delivery-status", webhookHandler.DeliveryStatus)

	// Rate-limited dashboard endpoints
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	view := middleware.RequirePermission(rbac.PermViewDispatch)
	protected.Get("/usage", middleware.RequirePermission(rbac.PermViewUsage), dashboardHandler.GetUsage)
	protected.Get("/notifications", view, dashboardHandler.ListNotifications)
	protected.Get("/posts", view, dashboardHandler.ListPosts)
	protected.Get("/posts/:id", view, dashboardHandler.GetPost)
	protected.Get("/posts/:id/history", view, dashboardHandler.GetPostHistory)
	protected.Get("/campaigns/:id/transactions", view, dashboardHandler.ListTransactions)

	protected.Post("/posts/:id/send", middleware.RequirePermission(rbac.PermSendPost), dispatchHandler.SendPost)
	protected.Post("/posts/:id/requeue", middleware.RequirePermission(rbac.PermRequeuePost), dispatchHandler.RequeuePost)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
