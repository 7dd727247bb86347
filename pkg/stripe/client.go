package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/BenTyson/evercraft-sub001/pkg/config"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	defaultCurrency = "usd"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client wraps Stripe's API client plus env-specific metadata.
type Client struct {
	api           *stripe.Client
	environment   string
	signingSecret string
	currency      string
}

// AccountStatus is the subset of a connected account the dispatcher cares about.
type AccountStatus struct {
	AccountID      string
	PayoutsEnabled bool
	ChargesEnabled bool
}

// TransferRequest moves funds from the platform balance to a connected account.
type TransferRequest struct {
	Destination    string
	Amount         decimal.Decimal
	TransferGroup  string
	IdempotencyKey string
	Metadata       map[string]string
}

// PayoutRequest asks a connected account to pay out its balance to the bank.
type PayoutRequest struct {
	AccountID      string
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{
		api:           stripe.NewClient(apiKey),
		environment:   env,
		signingSecret: strings.TrimSpace(cfg.WebhookSecret),
		currency:      currency,
	}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// PaymentStatus returns the processor status of a payment intent.
func (c *Client) PaymentStatus(ctx context.Context, paymentIntentID string) (string, error) {
	if c == nil || c.api == nil {
		return "", errors.New("stripe client not initialized")
	}
	intent, err := c.api.V1PaymentIntents.Retrieve(ctx, paymentIntentID, nil)
	if err != nil {
		return "", fmt.Errorf("retrieve payment intent: %w", err)
	}
	return string(intent.Status), nil
}

// AccountStatus fetches the payout capability of a connected account.
func (c *Client) AccountStatus(ctx context.Context, accountID string) (AccountStatus, error) {
	if c == nil || c.api == nil {
		return AccountStatus{}, errors.New("stripe client not initialized")
	}
	account, err := c.api.V1Accounts.GetByID(ctx, accountID, nil)
	if err != nil {
		return AccountStatus{}, fmt.Errorf("retrieve account: %w", err)
	}
	return AccountStatus{
		AccountID:      account.ID,
		PayoutsEnabled: account.PayoutsEnabled,
		ChargesEnabled: account.ChargesEnabled,
	}, nil
}

// CreateTransfer submits a transfer and returns its Stripe id. Amounts are
// rounded to cents here and nowhere else.
func (c *Client) CreateTransfer(ctx context.Context, req TransferRequest) (string, error) {
	if c == nil || c.api == nil {
		return "", errors.New("stripe client not initialized")
	}
	cents := ToCents(req.Amount)
	if cents <= 0 {
		return "", fmt.Errorf("transfer amount must be positive, got %s", req.Amount)
	}
	params := &stripe.TransferCreateParams{
		Amount:      stripe.Int64(cents),
		Currency:    stripe.String(c.currency),
		Destination: stripe.String(req.Destination),
		Metadata:    req.Metadata,
	}
	if req.TransferGroup != "" {
		params.TransferGroup = stripe.String(req.TransferGroup)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	transfer, err := c.api.V1Transfers.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create transfer: %w", err)
	}
	return transfer.ID, nil
}

// CreatePayout asks the connected account to pay out to its external account.
func (c *Client) CreatePayout(ctx context.Context, req PayoutRequest) (string, error) {
	if c == nil || c.api == nil {
		return "", errors.New("stripe client not initialized")
	}
	cents := ToCents(req.Amount)
	if cents <= 0 {
		return "", fmt.Errorf("payout amount must be positive, got %s", req.Amount)
	}
	params := &stripe.PayoutCreateParams{
		Amount:   stripe.Int64(cents),
		Currency: stripe.String(c.currency),
		Metadata: req.Metadata,
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.SetStripeAccount(req.AccountID)
	payout, err := c.api.V1Payouts.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create payout: %w", err)
	}
	return payout.ID, nil
}

// ToCents converts a decimal amount to the processor's minor units.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

// IsSucceeded reports whether a payment intent status is terminal success.
func IsSucceeded(status string) bool {
	return status == string(stripe.PaymentIntentStatusSucceeded)
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
