package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campaign-hub/backend/internal/channels"
	"github.com/campaign-hub/backend/internal/config"
	"github.com/campaign-hub/backend/internal/db"
	"github.com/campaign-hub/backend/internal/events"
	"github.com/campaign-hub/backend/internal/repositories"
	"github.com/campaign-hub/backend/internal/services"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	postRepo := repositories.NewPostRepo(pool)
	campaignRepo := repositories.NewCampaignRepo(pool)
	credentialRepo := repositories.NewCredentialRepo(pool)
	usageRepo := repositories.NewUsageRepo(pool)
	transactionRepo := repositories.NewTransactionRepo(pool)
	notificationRepo := repositories.NewNotificationRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	registry, err := channels.NewRegistryFromConfig(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to configure channel adapters", zap.Error(err))
	}

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	quota := services.NewQuotaGuard(usageRepo, rdb, cfg, log)
	fanout := services.NewFanout(quota, cfg, log)
	recorder := services.NewOutcomeRecorder(notificationRepo, auditRepo, publisher, log)
	dispatcher := services.NewDispatcher(postRepo, campaignRepo, credentialRepo, transactionRepo, registry, fanout, recorder, cfg, log)
	scheduler := services.NewScheduler(postRepo, dispatcher, quota, cfg, log)

	clog := cronLogger{log.Named("cron").Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	if _, err := c.AddFunc(cfg.DispatchCron, func() { runTick(ctx, scheduler, log) }); err != nil {
		log.Fatal("invalid DISPATCH_CRON", zap.String("spec", cfg.DispatchCron), zap.Error(err))
	}
	if _, err := c.AddFunc(cfg.ReservationSweepCron, func() { runSweep(ctx, scheduler, log) }); err != nil {
		log.Fatal("invalid RESERVATION_SWEEP_CRON", zap.String("spec", cfg.ReservationSweepCron), zap.Error(err))
	}

	c.Start()
	log.Info("worker started",
		zap.String("dispatch_cron", cfg.DispatchCron),
		zap.String("sweep_cron", cfg.ReservationSweepCron),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down worker")
	// Let a running tick finish before the pools close.
	<-c.Stop().Done()
	cancel()
}

func runTick(ctx context.Context, scheduler *services.Scheduler, log *zap.Logger) {
	summary, err := scheduler.Tick(ctx)
	if err != nil {
		log.Error("scheduler tick failed", zap.Error(err))
		return
	}
	if summary.Total > 0 {
		log.Info("scheduler tick finished",
			zap.Int("total", summary.Total),
			zap.Int("processed", summary.Processed),
			zap.Int("failed", summary.Failed),
			zap.Int("skipped", summary.Skipped),
		)
	}
}

func runSweep(ctx context.Context, scheduler *services.Scheduler, log *zap.Logger) {
	n, err := scheduler.SweepReservations(ctx)
	if err != nil {
		log.Error("reservation sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("expired stale reservations", zap.Int64("count", n))
	}
}

// cronLogger routes cron's key/value logs through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
