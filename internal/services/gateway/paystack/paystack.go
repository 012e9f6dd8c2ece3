// Package paystack is the Paystack REST client behind gateway.Provider.
package paystack

import (
	"net/http"
	"strings"
	"time"

	"fanzone-tickets/internal/services/gateway"
	"fanzone-tickets/utils"
)

const Name = "paystack"

var _ gateway.Provider = (*paystack)(nil)

type (
	Config struct {
		BaseURL   string
		SecretKey string

		// WebhookSecret signs inbound webhooks. Paystack uses the secret key
		// when it is empty.
		WebhookSecret string

		// Timeout bounds every outbound call.
		Timeout time.Duration
	}

	paystack struct {
		baseURL       string
		secretKey     string
		webhookSecret string
		timeout       time.Duration

		// hc is the http client.
		hc *http.Client

		// cb stops calling Paystack while it keeps failing.
		cb *utils.CircuitBreaker
	}
)

// New creates a Paystack client. hc may be nil.
func New(cfg *Config, hc *http.Client) gateway.Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	webhookSecret := cfg.WebhookSecret
	if webhookSecret == "" {
		webhookSecret = cfg.SecretKey
	}

	return &paystack{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:     cfg.SecretKey,
		webhookSecret: webhookSecret,
		timeout:       timeout,
		hc:            hc,
		cb:            utils.NewCircuitBreaker(Name),
	}
}

func (p *paystack) Name() string { return Name }
