package config

// EnvPrefix is empty because every envconfig tag carries its full name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "EVERCRAFT_APP_ENV"
	EnvPort     = "EVERCRAFT_APP_PORT"
	EnvLogLevel = "EVERCRAFT_LOG_LEVEL"

	EnvDBDSN  = "EVERCRAFT_DB_DSN"
	EnvDBHost = "EVERCRAFT_DB_HOST"
	EnvDBUser = "EVERCRAFT_DB_USER"
	EnvDBName = "EVERCRAFT_DB_NAME"

	EnvRedisURL = "EVERCRAFT_REDIS_URL"

	EnvHTTPCORSOrigins   = "EVERCRAFT_HTTP_CORS_ORIGINS"
	EnvHTTPRateLimitUser = "EVERCRAFT_HTTP_RATE_LIMIT_USER"

	EnvJWTSecret = "EVERCRAFT_JWT_SECRET"
	EnvJWTIssuer = "EVERCRAFT_JWT_ISSUER"

	EnvGCPProjectID = "EVERCRAFT_GCP_PROJECT_ID"

	EnvPubSubTransfersSub     = "EVERCRAFT_PUBSUB_TRANSFERS_SUBSCRIPTION"
	EnvPubSubNotificationSub  = "EVERCRAFT_PUBSUB_NOTIFICATION_SUBSCRIPTION"
	EnvPubSubAnalyticsSub     = "EVERCRAFT_PUBSUB_ANALYTICS_SUBSCRIPTION"
	EnvPlatformFeeRate        = "EVERCRAFT_PLATFORM_FEE_RATE"
	EnvAutoTransfersEnabled   = "EVERCRAFT_AUTO_TRANSFERS_ENABLED"
	EnvPayoutMinimumAmount    = "EVERCRAFT_PAYOUT_MINIMUM_AMOUNT"
	EnvStripeWebhookSecretKey = "EVERCRAFT_STRIPE_WEBHOOK_SECRET"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
