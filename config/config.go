package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port        string `env:"PORT" envDefault:"8090"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Redis configuration
	RedisURL string `env:"REDIS_URL" envDefault:"localhost:6379"`

	// PubNub configuration
	PubNubPublishKey   string `env:"PUBNUB_PUBLISH_KEY"`
	PubNubSubscribeKey string `env:"PUBNUB_SUBSCRIBE_KEY"`
	PubNubSecretKey    string `env:"PUBNUB_SECRET_KEY"`
	PubNubUserID       string `env:"PUBNUB_USER_ID" envDefault:"ticketing-server"`

	// Secrets, read once at start and passed to the vault and reconciler.
	TokenSecret   string `env:"TOKEN_SECRET"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`

	// Paystack configuration
	PaystackBaseURL     string        `env:"PAYSTACK_BASE_URL" envDefault:"https://api.paystack.co"`
	PaystackSecretKey   string        `env:"PAYSTACK_SECRET_KEY"`
	PaystackCallbackURL string        `env:"PAYSTACK_CALLBACK_URL"`
	ProviderTimeout     time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"25s"`

	// Payment configuration
	PaymentRefPrefix     string `env:"PAYMENT_REF_PREFIX" envDefault:"EL"`
	AmountToleranceMinor int64  `env:"AMOUNT_TOLERANCE_MINOR" envDefault:"100"`
	CoinValueMinor       int64  `env:"COIN_VALUE_MINOR" envDefault:"100"`

	// Membership configuration
	MembershipBonusCoinsPerMonth int64            `env:"MEMBERSHIP_BONUS_COINS_PER_MONTH" envDefault:"100"`
	MembershipTierPrices         map[string]int64 `env:"MEMBERSHIP_TIER_PRICES" envDefault:"basic:100000,pro:250000,enterprise:500000"`

	// Timeout configuration
	TokenTTL            time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	PurchaseDedupWindow time.Duration `env:"PURCHASE_DEDUP_WINDOW" envDefault:"10s"`

	// Rate limiting
	CheckinRateLimit  int64 `env:"CHECKIN_RATE_LIMIT" envDefault:"120"`
	PurchaseRateLimit int64 `env:"PURCHASE_RATE_LIMIT" envDefault:"20"`

	// Monitoring
	EnableMetrics bool `env:"ENABLE_METRICS" envDefault:"true"`
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Environment != "development" {
		if c.TokenSecret == "" {
			return fmt.Errorf("config: TOKEN_SECRET is required")
		}
		if c.WebhookSecret == "" && c.PaystackSecretKey == "" {
			return fmt.Errorf("config: WEBHOOK_SECRET or PAYSTACK_SECRET_KEY is required")
		}
	}
	if c.CoinValueMinor <= 0 {
		return fmt.Errorf("config: COIN_VALUE_MINOR must be positive")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("config: PROVIDER_TIMEOUT must be positive")
	}
	return nil
}

// WebhookKey returns the secret used to verify inbound webhooks. Paystack signs
// webhooks with the account secret key when no dedicated secret is configured.
func (c *Config) WebhookKey() string {
	if c.WebhookSecret != "" {
		return c.WebhookSecret
	}
	return c.PaystackSecretKey
}
