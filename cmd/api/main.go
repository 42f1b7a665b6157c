package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/campaign-hub/backend/internal/channels"
	"github.com/campaign-hub/backend/internal/config"
	"github.com/campaign-hub/backend/internal/db"
	"github.com/campaign-hub/backend/internal/events"
	apphttp "github.com/campaign-hub/backend/internal/http"
	"github.com/campaign-hub/backend/internal/http/handlers"
	"github.com/campaign-hub/backend/internal/repositories"
	"github.com/campaign-hub/backend/internal/services"
	"github.com/campaign-hub/backend/migrations"
	"github.com/gofiber/fiber/v2"
	twclient "github.com/twilio/twilio-go/client"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	postRepo := repositories.NewPostRepo(pool)
	campaignRepo := repositories.NewCampaignRepo(pool)
	credentialRepo := repositories.NewCredentialRepo(pool)
	usageRepo := repositories.NewUsageRepo(pool)
	transactionRepo := repositories.NewTransactionRepo(pool)
	notificationRepo := repositories.NewNotificationRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Channel adapters
	registry, err := channels.NewRegistryFromConfig(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to configure channel adapters", zap.Error(err))
	}

	// Services
	quota := services.NewQuotaGuard(usageRepo, rdb, cfg, log)
	fanout := services.NewFanout(quota, cfg, log)
	recorder := services.NewOutcomeRecorder(notificationRepo, auditRepo, publisher, log)
	dispatcher := services.NewDispatcher(postRepo, campaignRepo, credentialRepo, transactionRepo, registry, fanout, recorder, cfg, log)
	scheduler := services.NewScheduler(postRepo, dispatcher, quota, cfg, log)
	webhooks := services.NewDeliveryWebhookService(quota, log)
	dashboard := services.NewDashboardService(postRepo, notificationRepo, transactionRepo, auditRepo, quota, log)

	var validator handlers.SignatureValidator
	if cfg.TwilioValidateWebhooks {
		v := twclient.NewRequestValidator(cfg.TwilioAuthToken)
		validator = &v
	}

	// Handlers
	dispatchHandler := handlers.NewDispatchHandler(scheduler, dispatcher, dashboard, log)
	webhookHandler := handlers.NewWebhookHandler(webhooks, validator, cfg.PublicBaseURL, log)
	dashboardHandler := handlers.NewDashboardHandler(dashboard, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to subscribe to dispatch events", zap.Error(err))
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, dispatchHandler, webhookHandler, dashboardHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
