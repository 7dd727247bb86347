package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/BenTyson/evercraft-sub001/api/controllers"
	"github.com/BenTyson/evercraft-sub001/api/routes"
	"github.com/BenTyson/evercraft-sub001/internal/fees"
	"github.com/BenTyson/evercraft-sub001/internal/inventory"
	"github.com/BenTyson/evercraft-sub001/internal/ledger"
	"github.com/BenTyson/evercraft-sub001/internal/notifications"
	"github.com/BenTyson/evercraft-sub001/internal/payouts"
	"github.com/BenTyson/evercraft-sub001/internal/reports"
	"github.com/BenTyson/evercraft-sub001/internal/settlement"
	"github.com/BenTyson/evercraft-sub001/internal/shops"
	"github.com/BenTyson/evercraft-sub001/internal/transfers"
	stripewebhook "github.com/BenTyson/evercraft-sub001/internal/webhooks/stripe"
	"github.com/BenTyson/evercraft-sub001/pkg/config"
	"github.com/BenTyson/evercraft-sub001/pkg/db"
	"github.com/BenTyson/evercraft-sub001/pkg/instance"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	"github.com/BenTyson/evercraft-sub001/pkg/metrics"
	"github.com/BenTyson/evercraft-sub001/pkg/migrate"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/idempotency"
	"github.com/BenTyson/evercraft-sub001/pkg/redis"
	"github.com/BenTyson/evercraft-sub001/pkg/stripe"
)

const (
	shutdownTimeout    = 15 * time.Second
	webhookDedupeTTL   = 72 * time.Hour
	webhookDedupeScope = "stripe-webhook"
	readHeaderTimeout  = 10 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	conn := dbClient.DB()
	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)
	shopRepo := shops.NewRepository(conn)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	splitter, err := fees.NewSplitterFromConfig(cfg.Settlement)
	if err != nil {
		logg.Error(context.Background(), "failed to create fee splitter", err)
		os.Exit(1)
	}

	inventoryGuard, err := inventory.NewGuard(inventory.NewRepository(conn))
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory guard", err)
		os.Exit(1)
	}

	settlementSvc, err := settlement.NewService(settlement.Params{
		TxRunner:             dbClient,
		Repository:           settlement.NewRepository(conn),
		Shops:                shopRepo,
		Inventory:            inventoryGuard,
		Splitter:             splitter,
		Ledger:               ledgerSvc,
		Payments:             stripeClient,
		Outbox:               outboxSvc,
		Metrics:              settlementMetrics,
		Logger:               logg,
		PaymentLookupTimeout: cfg.Settlement.PaymentLookupTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
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
		logg.Error(context.Background(), "failed to create payout service", err)
		os.Exit(1)
	}

	reportsSvc, err := reports.NewService(reports.NewRepository(conn), ledgerSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create reports service", err)
		os.Exit(1)
	}

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(conn))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	dispatcher, err := transfers.NewDispatcher(transfers.Params{
		Config:     cfg.Settlement,
		TxRunner:   dbClient,
		Repository: transfers.NewRepository(conn),
		Shops:      shopRepo,
		Rail:       stripeClient,
		Outbox:     outboxSvc,
		Metrics:    settlementMetrics,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create transfer dispatcher", err)
		os.Exit(1)
	}

	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Payouts:   payoutSvc,
		Transfers: dispatcher,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	dedupe, err := idempotency.NewManager(redisClient, webhookDedupeTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}
	webhookGuard, err := dedupe.Scoped(webhookDedupeScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.ID(),
	})

	checks := []controllers.ReadinessCheck{
		{Name: "db", Ping: dbClient.Ping},
		{Name: "redis", Ping: redisClient.Ping},
	}
	handler := routes.NewRouter(routes.Params{
		Config:          cfg,
		Logger:          logg,
		ReadinessChecks: checks,
		Store:           redisClient,
		Shops:           shopRepo,
		Settlement:      settlementSvc,
		Reports:         reportsSvc,
		Payouts:         payoutSvc,
		Notifications:   notificationsSvc,
		StripeWebhooks:  webhookSvc,
		StripeSigner:    stripeClient,
		StripeGuard:     webhookGuard,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	logg.Info(ctx, "starting api server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
