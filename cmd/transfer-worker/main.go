package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/BenTyson/evercraft-sub001/internal/shops"
	"github.com/BenTyson/evercraft-sub001/internal/transfers"
	"github.com/BenTyson/evercraft-sub001/internal/worker"
	"github.com/BenTyson/evercraft-sub001/pkg/config"
	"github.com/BenTyson/evercraft-sub001/pkg/db"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	"github.com/BenTyson/evercraft-sub001/pkg/instance"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	"github.com/BenTyson/evercraft-sub001/pkg/metrics"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/consumer"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/idempotency"
	"github.com/BenTyson/evercraft-sub001/pkg/pubsub"
	"github.com/BenTyson/evercraft-sub001/pkg/redis"
	"github.com/BenTyson/evercraft-sub001/pkg/stripe"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "transfer-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "transfer-worker"

	logg = logger.New(logger.Options{
		ServiceName: "transfer-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	requireResource(ctx, logg, "stripe", err)

	subscription := pubsubClient.TransfersSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "transfers subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	conn := dbClient.DB()
	dispatcher, err := transfers.NewDispatcher(transfers.Params{
		Config:     cfg.Settlement,
		TxRunner:   dbClient,
		Repository: transfers.NewRepository(conn),
		Shops:      shops.NewRepository(conn),
		Rail:       stripeClient,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), logg),
		Metrics:    metrics.NewSettlementMetrics(prometheus.DefaultRegisterer),
		Logger:     logg,
	})
	requireResource(ctx, logg, "transfer dispatcher", err)

	handler, err := transfers.NewHandler(dispatcher, logg)
	requireResource(ctx, logg, "transfer handler", err)

	transferConsumer, err := consumer.NewService(consumer.Params{
		Name:         transfers.ConsumerName,
		Subscription: subscription,
		Handler:      handler,
		Idempotency:  manager,
		EventTypes:   []enums.OutboxEventType{enums.EventTransferRequested},
		Logger:       logg,
	})
	requireResource(ctx, logg, "transfer consumer", err)

	runner, err := worker.NewRunner(worker.Params{
		Name:   "transfer-worker",
		Logger: logg,
		Checks: []worker.Check{
			{Name: "db", Ping: dbClient.Ping},
			{Name: "redis", Ping: redisClient.Ping},
			{Name: "pubsub", Ping: pubsubClient.Ping},
		},
		Consumers: map[string]worker.Consumer{
			transfers.ConsumerName: transferConsumer,
		},
	})
	requireResource(ctx, logg, "worker runner", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
	})
	logg.Info(runCtx, "transfer worker ready")

	if err := runner.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "transfer worker failed", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "transfer worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
