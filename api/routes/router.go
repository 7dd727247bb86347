package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BenTyson/evercraft-sub001/api/controllers"
	webhookcontrollers "github.com/BenTyson/evercraft-sub001/api/controllers/webhooks"
	"github.com/BenTyson/evercraft-sub001/api/middleware"
	"github.com/BenTyson/evercraft-sub001/internal/notifications"
	"github.com/BenTyson/evercraft-sub001/internal/payouts"
	"github.com/BenTyson/evercraft-sub001/internal/reports"
	"github.com/BenTyson/evercraft-sub001/internal/settlement"
	"github.com/BenTyson/evercraft-sub001/pkg/config"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	pkgredis "github.com/BenTyson/evercraft-sub001/pkg/redis"
)

// EdgeStore backs idempotency replay and rate limiting.
type EdgeStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(policy, subject string) string
}

type webhookSigner interface {
	SigningSecret() string
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// Params carries every dependency the API surface needs.
type Params struct {
	Config          *config.Config
	Logger          *logger.Logger
	ReadinessChecks []controllers.ReadinessCheck
	Store           EdgeStore
	Shops           middleware.ShopOwnershipChecker
	Settlement      settlement.Service
	Reports         reports.Service
	Payouts         payouts.Service
	Notifications   notifications.Service
	StripeWebhooks  webhookcontrollers.StripeWebhookService
	StripeSigner    webhookSigner
	StripeGuard     webhookGuard
	MetricsHandler  http.Handler
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	apiPolicy := middleware.NewRateLimitPolicy("api", cfg.HTTP.RateLimitWindow, cfg.HTTP.RateLimitIP, cfg.HTTP.RateLimitUser)
	webhookPolicy := middleware.NewRateLimitPolicy("webhooks", cfg.HTTP.RateLimitWindow, cfg.HTTP.WebhookIPLimit, 0)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.ReadinessChecks, logg))
	})

	metrics := p.MetricsHandler
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, p.Store, logg))
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhooks, p.StripeSigner, p.StripeGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(apiPolicy, p.Store, logg))
		r.Use(middleware.Idempotency(p.Store, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/settle", controllers.SettleOrder(p.Settlement, logg))
			r.Get("/{orderId}", controllers.GetOrder(p.Settlement, logg))
		})

		r.Route("/shops/{shopId}", func(r chi.Router) {
			r.Use(middleware.ShopAccess(p.Shops, logg))
			r.Get("/financials", controllers.ShopFinancials(p.Reports, logg))
			r.Get("/tax-summary", controllers.ShopTaxSummary(p.Reports, logg))
			r.Get("/transactions", controllers.ListShopTransactions(p.Reports, logg))
			r.Get("/transactions/export", controllers.ExportShopTransactions(p.Reports, logg))
			r.Get("/payouts", controllers.ListShopPayouts(p.Payouts, logg))
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(p.Notifications, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
			r.Route("/shops/{shopId}/payouts", func(r chi.Router) {
				r.Get("/", controllers.ListShopPayouts(p.Payouts, logg))
				r.Post("/", controllers.CreateShopPayout(p.Payouts, cfg.Payouts.PeriodDays, logg))
			})
			r.Post("/payouts/{payoutId}/submit", controllers.SubmitPayout(p.Payouts, logg))
			r.Post("/payouts/{payoutId}/reconcile", controllers.ReconcilePayout(p.Payouts, logg))
			r.Post("/nonprofits/{nonprofitId}/payouts", controllers.CreateNonprofitPayout(p.Payouts, logg))
		})
	})

	return r
}
