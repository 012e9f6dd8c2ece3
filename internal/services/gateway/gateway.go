// Package gateway defines the payment provider contract used by the payment
// and reconciliation services.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// ChargeSuccess is the only webhook event type that moves money.
const ChargeSuccess = "charge.success"

// InitRequest asks the provider to open a hosted checkout.
type InitRequest struct {
	Email       string
	AmountMinor int64
	Reference   string
	CallbackURL string
	Metadata    map[string]any
}

type Checkout struct {
	Reference        string
	AuthorizationURL string
	AccessCode       string
}

// Charge is the provider's view of a transaction.
type Charge struct {
	Reference   string
	Status      string
	AmountMinor int64
	Currency    string
	PaidAt      time.Time
	ProviderID  int64
	Raw         json.RawMessage
}

func (c *Charge) Succeeded() bool {
	return c.Status == "success"
}

// WebhookEvent is a verified, decoded provider notification.
type WebhookEvent struct {
	Type   string
	Charge *Charge
}

// Provider is implemented by every payment gateway client.
type Provider interface {
	Name() string

	// Initialize creates a checkout for req.Reference.
	Initialize(ctx context.Context, req *InitRequest) (*Checkout, error)

	// Verify fetches the authoritative state of a reference.
	Verify(ctx context.Context, reference string) (*Charge, error)

	// ParseWebhook authenticates and decodes an inbound notification. It
	// returns status.ErrBadSignature when the signature does not match.
	ParseWebhook(header http.Header, body []byte) (*WebhookEvent, error)
}

// Registry holds the configured providers. The first registered provider is
// the primary one.
type Registry struct {
	providers map[string]Provider
	primary   string
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
	if r.primary == "" {
		r.primary = p.Name()
	}
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("gateway: provider %q not registered", name)
	}
	return p, nil
}

func (r *Registry) Primary() (Provider, error) {
	if r.primary == "" {
		return nil, fmt.Errorf("gateway: no provider registered")
	}
	return r.providers[r.primary], nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SignHMACSHA512 returns the hex HMAC-SHA512 of body.
func SignHMACSHA512(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSHA512 compares signature with the expected hex HMAC-SHA512 of
// body in constant time.
func VerifyHMACSHA512(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}
