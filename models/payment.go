package models

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/tools/types"
)

const (
	PaymentContextTicket     = "ticket"
	PaymentContextMembership = "membership"
	PaymentContextCoins      = "coins"

	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// PaymentIntent is the internal record of an expected or completed charge.
// ProviderRef is globally unique and acts as the idempotency key.
type PaymentIntent struct {
	ID            string         `db:"id" json:"id"`
	UserID        string         `db:"user_id" json:"user_id"`
	Context       string         `db:"context" json:"context"` // ticket, membership, coins
	ContextRef    string         `db:"context_ref" json:"context_ref"`
	Provider      string         `db:"provider" json:"provider"`
	ProviderRef   string         `db:"provider_ref" json:"reference"`
	AmountMinor   int64          `db:"amount_minor" json:"-"`
	Status        string         `db:"status" json:"status"` // pending, paid, failed
	Metadata      types.JSONRaw  `db:"metadata" json:"metadata"`
	ProviderData  types.JSONRaw  `db:"provider_data" json:"-"`
	FailureReason string         `db:"failure_reason" json:"failure_reason,omitempty"`
	PaidAt        types.DateTime `db:"paid_at" json:"paid_at"`
	Created       types.DateTime `db:"created" json:"created"`
}

// IntentMetadata is the purchase detail captured when the intent is created.
type IntentMetadata struct {
	Email    string `json:"email,omitempty"`
	Plan     string `json:"plan,omitempty"`
	Interval string `json:"interval,omitempty"`
	Coins    int64  `json:"coins,omitempty"`
}

func (p *PaymentIntent) DecodeMetadata() (IntentMetadata, error) {
	var m IntentMetadata
	if len(p.Metadata) == 0 {
		return m, nil
	}
	err := json.Unmarshal(p.Metadata, &m)
	return m, err
}

// AwaitingCharge reports whether a successful charge may still be applied.
// An intent that failed before any charge was recorded stays open, since the
// customer can complete the checkout after a provider timeout.
func (p *PaymentIntent) AwaitingCharge() bool {
	switch p.Status {
	case PaymentStatusPending:
		return true
	case PaymentStatusFailed:
		return p.PaidAt.IsZero()
	}
	return false
}
