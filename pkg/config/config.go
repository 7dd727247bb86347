package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	HTTP         HTTPConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Stripe       StripeConfig
	Email        EmailConfig
	Outbox       OutboxConfig
	Settlement   SettlementConfig
	Payouts      PayoutsConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"EVERCRAFT_APP_ENV" required:"true"`
	Port         string `envconfig:"EVERCRAFT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"EVERCRAFT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"EVERCRAFT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"EVERCRAFT_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"EVERCRAFT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"EVERCRAFT_DB_DSN"`
	Driver string `envconfig:"EVERCRAFT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"EVERCRAFT_DB_HOST"`
	Port     int    `envconfig:"EVERCRAFT_DB_PORT" default:"5432"`
	User     string `envconfig:"EVERCRAFT_DB_USER"`
	Password string `envconfig:"EVERCRAFT_DB_PASSWORD"`
	Name     string `envconfig:"EVERCRAFT_DB_NAME"`
	SSLMode  string `envconfig:"EVERCRAFT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EVERCRAFT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EVERCRAFT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EVERCRAFT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EVERCRAFT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"EVERCRAFT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"EVERCRAFT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EVERCRAFT_REDIS_ADDR"`
	Password     string        `envconfig:"EVERCRAFT_REDIS_PASSWORD"`
	DB           int           `envconfig:"EVERCRAFT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EVERCRAFT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EVERCRAFT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EVERCRAFT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EVERCRAFT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EVERCRAFT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// HTTPConfig holds the API edge settings: allowed browser origins and the
// fixed-window rate limits applied per client IP and per authenticated user.
type HTTPConfig struct {
	CORSOrigins     []string      `envconfig:"EVERCRAFT_HTTP_CORS_ORIGINS" default:"http://localhost:3000"`
	RateLimitWindow time.Duration `envconfig:"EVERCRAFT_HTTP_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitIP     int           `envconfig:"EVERCRAFT_HTTP_RATE_LIMIT_IP" default:"120"`
	RateLimitUser   int           `envconfig:"EVERCRAFT_HTTP_RATE_LIMIT_USER" default:"60"`
	WebhookIPLimit  int           `envconfig:"EVERCRAFT_HTTP_WEBHOOK_IP_LIMIT" default:"600"`
}

// JWTConfig verifies access tokens minted by the identity service.
type JWTConfig struct {
	Secret string `envconfig:"EVERCRAFT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"EVERCRAFT_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"EVERCRAFT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"EVERCRAFT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	OutboxRetentionDays  int           `envconfig:"EVERCRAFT_EVENTING_OUTBOX_RETENTION_DAYS" default:"30"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"EVERCRAFT_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"EVERCRAFT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"EVERCRAFT_GOOGLE_APPLICATION_CREDENTIALS"`
}

// PubSubConfig names the two topics the outbox publishes to. The notification
// and analytics subscriptions both hang off the settlement topic.
type PubSubConfig struct {
	TransfersTopic           string `envconfig:"EVERCRAFT_PUBSUB_TRANSFERS_TOPIC" default:"ec-transfer-events"`
	TransfersSubscription    string `envconfig:"EVERCRAFT_PUBSUB_TRANSFERS_SUBSCRIPTION" required:"true"`
	SettlementTopic          string `envconfig:"EVERCRAFT_PUBSUB_SETTLEMENT_TOPIC" default:"ec-settlement-events"`
	NotificationSubscription string `envconfig:"EVERCRAFT_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
	AnalyticsSubscription    string `envconfig:"EVERCRAFT_PUBSUB_ANALYTICS_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"EVERCRAFT_BIGQUERY_DATASET" default:"evercraft"`
	SettlementsTable string `envconfig:"EVERCRAFT_BIGQUERY_SETTLEMENTS_TABLE" default:"settlement_facts"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"EVERCRAFT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"EVERCRAFT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"EVERCRAFT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"EVERCRAFT_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"EVERCRAFT_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"EVERCRAFT_STRIPE_ENV" default:"test"`
	Currency      string `envconfig:"EVERCRAFT_STRIPE_CURRENCY" default:"usd"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type EmailConfig struct {
	ResendAPIKey string `envconfig:"EVERCRAFT_RESEND_API_KEY"`
	From         string `envconfig:"EVERCRAFT_EMAIL_FROM" default:"orders@evercraft.local"`
}

// SettlementConfig carries the money-movement knobs threaded into the fee
// splitter and the transfer dispatcher.
type SettlementConfig struct {
	PlatformFeeRate       string        `envconfig:"EVERCRAFT_PLATFORM_FEE_RATE" default:"0.065"`
	AutoTransfersEnabled  bool          `envconfig:"EVERCRAFT_AUTO_TRANSFERS_ENABLED" default:"true"`
	TransferTimeout       time.Duration `envconfig:"EVERCRAFT_TRANSFER_TIMEOUT" default:"10s"`
	PaymentLookupTimeout  time.Duration `envconfig:"EVERCRAFT_PAYMENT_LOOKUP_TIMEOUT" default:"10s"`
	AccountStatusCacheTTL time.Duration `envconfig:"EVERCRAFT_ACCOUNT_STATUS_CACHE_TTL" default:"5m"`
	TransferMaxAttempts   int           `envconfig:"EVERCRAFT_TRANSFER_MAX_ATTEMPTS" default:"5"`
}

// FeeRate parses PlatformFeeRate. Load rejects malformed values, so callers
// holding a loaded Config can ignore the error.
func (s SettlementConfig) FeeRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(s.PlatformFeeRate))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", EnvPlatformFeeRate, s.PlatformFeeRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s must be in [0,1), got %s", EnvPlatformFeeRate, rate)
	}
	return rate, nil
}

func (s SettlementConfig) validate() error {
	_, err := s.FeeRate()
	return err
}

type PayoutsConfig struct {
	PeriodDays    int    `envconfig:"EVERCRAFT_PAYOUT_PERIOD_DAYS" default:"7"`
	MinimumAmount string `envconfig:"EVERCRAFT_PAYOUT_MINIMUM_AMOUNT" default:"1.00"`
	SubmitToRail  bool   `envconfig:"EVERCRAFT_PAYOUT_SUBMIT_TO_RAIL" default:"true"`
}

// Minimum returns the smallest batch amount worth paying out.
func (p PayoutsConfig) Minimum() decimal.Decimal {
	amount, err := decimal.NewFromString(strings.TrimSpace(p.MinimumAmount))
	if err != nil || amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

// CronConfig schedules the cron-worker jobs. Each job runs at most once per
// interval across all instances.
type CronConfig struct {
	Tick                      time.Duration `envconfig:"EVERCRAFT_CRON_TICK" default:"1m"`
	PayoutBatchEvery          time.Duration `envconfig:"EVERCRAFT_CRON_PAYOUT_BATCH_EVERY" default:"24h"`
	TransferRetryEvery        time.Duration `envconfig:"EVERCRAFT_CRON_TRANSFER_RETRY_EVERY" default:"10m"`
	TransferRetryBackoff      time.Duration `envconfig:"EVERCRAFT_CRON_TRANSFER_RETRY_BACKOFF" default:"15m"`
	RetentionEvery            time.Duration `envconfig:"EVERCRAFT_CRON_RETENTION_EVERY" default:"24h"`
	NotificationRetentionDays int           `envconfig:"EVERCRAFT_CRON_NOTIFICATION_RETENTION_DAYS" default:"90"`
}
