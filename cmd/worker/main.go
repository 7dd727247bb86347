package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/BenTyson/evercraft-sub001/internal/notifications"
	"github.com/BenTyson/evercraft-sub001/internal/shops"
	"github.com/BenTyson/evercraft-sub001/internal/worker"
	"github.com/BenTyson/evercraft-sub001/pkg/config"
	"github.com/BenTyson/evercraft-sub001/pkg/db"
	"github.com/BenTyson/evercraft-sub001/pkg/instance"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/consumer"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/idempotency"
	"github.com/BenTyson/evercraft-sub001/pkg/pubsub"
	"github.com/BenTyson/evercraft-sub001/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
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

	subscription := pubsubClient.NotificationSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "notification subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	var sender notifications.Sender
	if strings.TrimSpace(cfg.Email.ResendAPIKey) != "" {
		resendSender, err := notifications.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.From)
		requireResource(ctx, logg, "resend sender", err)
		sender = resendSender
	} else {
		logg.Warn(ctx, "resend api key not set, order emails will only be logged")
		sender = notifications.NewLogSender(logg)
	}

	conn := dbClient.DB()
	handler, err := notifications.NewHandler(notifications.NewRepository(conn), shops.NewRepository(conn), sender, logg)
	requireResource(ctx, logg, "notification handler", err)

	notificationConsumer, err := consumer.NewService(consumer.Params{
		Name:         notifications.ConsumerName,
		Subscription: subscription,
		Handler:      handler,
		Idempotency:  manager,
		EventTypes:   notifications.HandledEvents,
		Logger:       logg,
	})
	requireResource(ctx, logg, "notification consumer", err)

	runner, err := worker.NewRunner(worker.Params{
		Name:   "worker",
		Logger: logg,
		Checks: []worker.Check{
			{Name: "db", Ping: dbClient.Ping},
			{Name: "redis", Ping: redisClient.Ping},
			{Name: "pubsub", Ping: pubsubClient.Ping},
		},
		Consumers: map[string]worker.Consumer{
			notifications.ConsumerName: notificationConsumer,
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
	logg.Info(runCtx, "notification worker ready")

	if err := runner.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "notification worker failed", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "notification worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
