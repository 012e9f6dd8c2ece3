package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"fanzone-tickets/internal/services/gateway"
	"fanzone-tickets/internal/status"
	"fanzone-tickets/monitoring"
	"fanzone-tickets/utils"
)

type (
	initializeReq struct {
		Email       string         `json:"email"`
		Amount      int64          `json:"amount"`
		Reference   string         `json:"reference"`
		CallbackURL string         `json:"callback_url,omitempty"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}

	initializeReply struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AuthorizationURL string `json:"authorization_url"`
			AccessCode       string `json:"access_code"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}

	// transaction is the subset of a Paystack transaction the core reads.
	transaction struct {
		ID        int64  `json:"id"`
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		PaidAt    string `json:"paid_at"`
	}

	verifyReply struct {
		Status  bool            `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}

	webhookBody struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
)

// Initialize opens a hosted checkout for req.Reference.
func (p *paystack) Initialize(ctx context.Context, req *gateway.InitRequest) (*gateway.Checkout, error) {
	b, err := json.Marshal(initializeReq{
		Email:       req.Email,
		Amount:      req.AmountMinor,
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("paystack initialize: json.Marshal: %w", err)
	}

	var reply initializeReply
	if err := p.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", b, &reply); err != nil {
		return nil, err
	}
	if !reply.Status {
		return nil, fmt.Errorf("paystack initialize: %s: %w", reply.Message, status.ErrProviderUnavailable)
	}

	ref := reply.Data.Reference
	if ref == "" {
		ref = req.Reference
	}
	return &gateway.Checkout{
		Reference:        ref,
		AuthorizationURL: reply.Data.AuthorizationURL,
		AccessCode:       reply.Data.AccessCode,
	}, nil
}

// Verify asks Paystack for the state of reference.
func (p *paystack) Verify(ctx context.Context, reference string) (*gateway.Charge, error) {
	if reference == "" {
		return nil, status.ErrInvalidRequest
	}

	var reply verifyReply
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := p.do(ctx, "verify", http.MethodGet, path, nil, &reply); err != nil {
		return nil, err
	}
	if !reply.Status {
		return nil, fmt.Errorf("paystack verify: %s: %w", reply.Message, status.ErrFailedPayment)
	}

	return decodeCharge(reply.Data)
}

// ParseWebhook checks x-paystack-signature against the raw body before
// decoding it.
func (p *paystack) ParseWebhook(header http.Header, body []byte) (*gateway.WebhookEvent, error) {
	if !gateway.VerifyHMACSHA512(p.webhookSecret, body, header.Get("x-paystack-signature")) {
		return nil, status.ErrBadSignature
	}

	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return nil, fmt.Errorf("paystack webhook: %w: %v", status.ErrInvalidRequest, err)
	}

	ev := &gateway.WebhookEvent{Type: wb.Event}
	if wb.Event != gateway.ChargeSuccess {
		return ev, nil
	}

	charge, err := decodeCharge(wb.Data)
	if err != nil {
		return nil, err
	}
	ev.Charge = charge
	return ev, nil
}

func decodeCharge(data json.RawMessage) (*gateway.Charge, error) {
	var tx transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("paystack: decode transaction: %w: %v", status.ErrInvalidRequest, err)
	}
	if tx.Reference == "" {
		return nil, fmt.Errorf("paystack: transaction without reference: %w", status.ErrInvalidRequest)
	}

	charge := &gateway.Charge{
		Reference:   tx.Reference,
		Status:      tx.Status,
		AmountMinor: tx.Amount,
		Currency:    tx.Currency,
		ProviderID:  tx.ID,
		Raw:         data,
	}
	if tx.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, tx.PaidAt); err == nil {
			charge.PaidAt = t.UTC()
		}
	}
	return charge, nil
}

// do performs one JSON call through the circuit breaker and decodes the reply
// into out. Deadline errors surface as status.ErrProviderTimeout.
func (p *paystack) do(ctx context.Context, op, method, path string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	result := "ok"
	defer func() {
		monitoring.TrackProviderRequest(Name, op, result, time.Since(start))
	}()

	_, err := p.cb.Execute(ctx, func() (any, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, rd)
		if err != nil {
			return nil, fmt.Errorf("paystack %s: http.NewRequestWithContext: %w", op, err)
		}
		p.setHeaders(req)

		resp, err := p.hc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("paystack %s: hc.Do: %w", op, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			rbody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("paystack %s: resp.StatusCode: %d, resp.Body: %s", op, resp.StatusCode, rbody)
		}

		// 4xx replies carry a JSON envelope with status=false and a message.
		dec := json.NewDecoder(resp.Body)
		if err := dec.Decode(out); err != nil {
			return nil, fmt.Errorf("paystack %s: json.Decode (status %d): %w", op, resp.StatusCode, err)
		}
		return nil, nil
	})

	switch {
	case err == nil:
		return nil
	case isTimeout(err):
		result = "timeout"
		return fmt.Errorf("paystack %s: %w", op, status.ErrProviderTimeout)
	case errors.Is(err, utils.ErrOpenState), errors.Is(err, utils.ErrTooManyRequests):
		result = "circuit_open"
		return fmt.Errorf("paystack %s: %v: %w", op, err, status.ErrProviderUnavailable)
	default:
		result = "error"
		return fmt.Errorf("%v: %w", err, status.ErrProviderUnavailable)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
