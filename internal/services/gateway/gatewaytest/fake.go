// Package gatewaytest provides an in-memory gateway.Provider.
package gatewaytest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"fanzone-tickets/internal/services/gateway"
	"fanzone-tickets/internal/status"
)

const Secret = "whsec_test"

// Provider records initialized checkouts and answers Verify from charges set
// by the test.
type Provider struct {
	mu          sync.Mutex
	charges     map[string]*gateway.Charge
	Initialized []*gateway.InitRequest

	// InitErr and VerifyErr, when set, are returned by the matching call.
	InitErr   error
	VerifyErr error
}

var _ gateway.Provider = (*Provider)(nil)

func New() *Provider {
	return &Provider{charges: make(map[string]*gateway.Charge)}
}

func (p *Provider) Name() string { return "paystack" }

func (p *Provider) Initialize(ctx context.Context, req *gateway.InitRequest) (*gateway.Checkout, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.InitErr != nil {
		return nil, p.InitErr
	}
	p.Initialized = append(p.Initialized, req)
	return &gateway.Checkout{
		Reference:        req.Reference,
		AuthorizationURL: "https://checkout.test/" + req.Reference,
		AccessCode:       req.Reference,
	}, nil
}

// SetCharge registers the provider-side state of a reference.
func (p *Provider) SetCharge(ref, chargeStatus string, amountMinor int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	raw, _ := json.Marshal(map[string]any{"reference": ref, "status": chargeStatus, "amount": amountMinor})
	p.charges[ref] = &gateway.Charge{
		Reference:   ref,
		Status:      chargeStatus,
		AmountMinor: amountMinor,
		Currency:    "NGN",
		PaidAt:      time.Now().UTC(),
		Raw:         raw,
	}
}

func (p *Provider) Verify(ctx context.Context, reference string) (*gateway.Charge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.VerifyErr != nil {
		return nil, p.VerifyErr
	}
	c, ok := p.charges[reference]
	if !ok {
		return nil, fmt.Errorf("fake verify %s: %w", reference, status.ErrFailedPayment)
	}
	cp := *c
	return &cp, nil
}

func (p *Provider) ParseWebhook(header http.Header, body []byte) (*gateway.WebhookEvent, error) {
	if !gateway.VerifyHMACSHA512(Secret, body, header.Get("x-paystack-signature")) {
		return nil, status.ErrBadSignature
	}
	var wb struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
			Status    string `json:"status"`
			Amount    int64  `json:"amount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &wb); err != nil {
		return nil, status.ErrInvalidRequest
	}
	ev := &gateway.WebhookEvent{Type: wb.Event}
	if wb.Event == gateway.ChargeSuccess {
		ev.Charge = &gateway.Charge{
			Reference:   wb.Data.Reference,
			Status:      wb.Data.Status,
			AmountMinor: wb.Data.Amount,
			PaidAt:      time.Now().UTC(),
			Raw:         body,
		}
	}
	return ev, nil
}

// Webhook returns a signed charge.success body and its headers.
func Webhook(ref, chargeStatus string, amountMinor int64) (http.Header, []byte) {
	body, _ := json.Marshal(map[string]any{
		"event": gateway.ChargeSuccess,
		"data": map[string]any{
			"reference": ref,
			"status":    chargeStatus,
			"amount":    amountMinor,
		},
	})
	h := http.Header{}
	h.Set("x-paystack-signature", gateway.SignHMACSHA512(Secret, body))
	return h, body
}
