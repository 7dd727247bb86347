package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/internal/cron"
	"github.com/BenTyson/evercraft-sub001/internal/ledger"
	"github.com/BenTyson/evercraft-sub001/internal/notifications"
	"github.com/BenTyson/evercraft-sub001/internal/payouts"
	"github.com/BenTyson/evercraft-sub001/internal/shops"
	"github.com/BenTyson/evercraft-sub001/internal/transfers"
	"github.com/BenTyson/evercraft-sub001/pkg/config"
	"github.com/BenTyson/evercraft-sub001/pkg/db"
	"github.com/BenTyson/evercraft-sub001/pkg/instance"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	"github.com/BenTyson/evercraft-sub001/pkg/metrics"
	"github.com/BenTyson/evercraft-sub001/pkg/migrate"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox"
	"github.com/BenTyson/evercraft-sub001/pkg/redis"
	"github.com/BenTyson/evercraft-sub001/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient, stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+lockEnv(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Tick:     cfg.Cron.Tick,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, stripeClient *stripe.Client) (*cron.Registry, error) {
	conn := dbClient.DB()
	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)
	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, logg)
	shopRepo := shops.NewRepository(conn)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	payoutParams := payouts.Params{
		TxRunner:      dbClient,
		Repository:    payouts.NewRepository(conn),
		Shops:         shopRepo,
		Ledger:        ledgerSvc,
		Outbox:        outboxSvc,
		Metrics:       settlementMetrics,
		Logger:        logg,
		MinimumAmount: cfg.Payouts.Minimum(),
		SubmitTimeout: cfg.Settlement.TransferTimeout,
	}
	if cfg.Payouts.SubmitToRail {
		payoutParams.Rail = stripeClient
	}
	payoutSvc, err := payouts.NewService(payoutParams)
	if err != nil {
		return nil, fmt.Errorf("payout service: %w", err)
	}

	transferRepo := transfers.NewRepository(conn)
	dispatcher, err := transfers.NewDispatcher(transfers.Params{
		Config:     cfg.Settlement,
		TxRunner:   dbClient,
		Repository: transferRepo,
		Shops:      shopRepo,
		Rail:       stripeClient,
		Outbox:     outboxSvc,
		Metrics:    settlementMetrics,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("transfer dispatcher: %w", err)
	}

	payoutJob, err := cron.NewPayoutBatchJob(cron.PayoutBatchJobParams{
		Logger:       logg,
		Payouts:      payoutSvc,
		PeriodDays:   cfg.Payouts.PeriodDays,
		SubmitToRail: cfg.Payouts.SubmitToRail,
	})
	if err != nil {
		return nil, err
	}

	retryJob, err := cron.NewTransferRetryJob(cron.TransferRetryJobParams{
		Logger:     logg,
		Repository: transferRepo,
		Dispatcher: dispatcher,
		Backoff:    cfg.Cron.TransferRetryBackoff,
	})
	if err != nil {
		return nil, err
	}

	purgeOutbox := func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
		return outboxRepo.DeletePublishedBefore(ctx, tx, cutoff, cfg.Outbox.MaxAttempts)
	}
	outboxJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:          "outbox-retention",
		Logger:        logg,
		DB:            dbClient,
		Purge:         purgeOutbox,
		RetentionDays: cfg.Eventing.OutboxRetentionDays,
	})
	if err != nil {
		return nil, err
	}

	notificationRepo := notifications.NewRepository(conn)
	purgeNotifications := func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
		return notificationRepo.WithTx(tx).DeleteReadBefore(ctx, cutoff)
	}
	notificationJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:          "notification-retention",
		Logger:        logg,
		DB:            dbClient,
		Purge:         purgeNotifications,
		RetentionDays: cfg.Cron.NotificationRetentionDays,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	schedule := []struct {
		job   cron.Job
		every time.Duration
	}{
		{payoutJob, cfg.Cron.PayoutBatchEvery},
		{retryJob, cfg.Cron.TransferRetryEvery},
		{outboxJob, cfg.Cron.RetentionEvery},
		{notificationJob, cfg.Cron.RetentionEvery},
	}
	for _, entry := range schedule {
		if err := registry.Register(entry.job, entry.every); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func lockEnv(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
