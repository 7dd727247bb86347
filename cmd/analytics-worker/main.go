package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/BenTyson/evercraft-sub001/internal/analytics/router"
	"github.com/BenTyson/evercraft-sub001/internal/analytics/writer"
	"github.com/BenTyson/evercraft-sub001/internal/worker"
	"github.com/BenTyson/evercraft-sub001/pkg/bigquery"
	"github.com/BenTyson/evercraft-sub001/pkg/config"
	"github.com/BenTyson/evercraft-sub001/pkg/instance"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/consumer"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/idempotency"
	"github.com/BenTyson/evercraft-sub001/pkg/pubsub"
	"github.com/BenTyson/evercraft-sub001/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "analytics-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "analytics-worker"

	logg = logger.New(logger.Options{
		ServiceName: "analytics-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

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

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "analytics subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	factWriter, err := writer.New(bqClient, writer.Config{Table: bqClient.SettlementsTable()})
	requireResource(ctx, logg, "settlement fact writer", err)

	routingHandler, err := router.NewRouter(factWriter, logg, nil)
	requireResource(ctx, logg, "analytics router", err)

	analyticsConsumer, err := consumer.NewService(consumer.Params{
		Name:         router.ConsumerName,
		Subscription: subscription,
		Handler:      routingHandler,
		Idempotency:  manager,
		EventTypes:   routingHandler.HandledEvents(),
		Logger:       logg,
	})
	requireResource(ctx, logg, "analytics consumer", err)

	runner, err := worker.NewRunner(worker.Params{
		Name:   "analytics-worker",
		Logger: logg,
		Checks: []worker.Check{
			{Name: "redis", Ping: redisClient.Ping},
			{Name: "pubsub", Ping: pubsubClient.Ping},
			{Name: "bigquery", Ping: bqClient.Ping},
		},
		Consumers: map[string]worker.Consumer{
			router.ConsumerName: analyticsConsumer,
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
	logg.Info(runCtx, "analytics worker ready")

	if err := runner.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "analytics worker failed", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
