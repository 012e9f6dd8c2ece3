package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "EL", cfg.PaymentRefPrefix)
	assert.Equal(t, int64(100), cfg.AmountToleranceMinor)
	assert.Equal(t, int64(100), cfg.CoinValueMinor)
	assert.Equal(t, 25*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, map[string]int64{"basic": 100000, "pro": 250000, "enterprise": 500000}, cfg.MembershipTierPrices)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("PROVIDER_TIMEOUT", "5s")
	t.Setenv("MEMBERSHIP_TIER_PRICES", "basic:90000")
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test_1")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, map[string]int64{"basic": 90000}, cfg.MembershipTierPrices)
	assert.Equal(t, "sk_test_1", cfg.WebhookKey())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "production without token secret",
			cfg:     Config{Environment: "production", CoinValueMinor: 100, ProviderTimeout: time.Second},
			wantErr: "TOKEN_SECRET",
		},
		{
			name:    "production without webhook secret",
			cfg:     Config{Environment: "production", TokenSecret: "s", CoinValueMinor: 100, ProviderTimeout: time.Second},
			wantErr: "WEBHOOK_SECRET",
		},
		{
			name:    "zero coin value",
			cfg:     Config{Environment: "development", ProviderTimeout: time.Second},
			wantErr: "COIN_VALUE_MINOR",
		},
		{
			name: "production ready",
			cfg: Config{Environment: "production", TokenSecret: "s", PaystackSecretKey: "sk",
				CoinValueMinor: 100, ProviderTimeout: time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWebhookKey_PrefersDedicatedSecret(t *testing.T) {
	cfg := Config{WebhookSecret: "whsec", PaystackSecretKey: "sk"}
	assert.Equal(t, "whsec", cfg.WebhookKey())
}
