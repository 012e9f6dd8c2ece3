package models

import (
	"github.com/pocketbase/pocketbase/tools/types"
)

const (
	TicketStatusUnused    = "unused"
	TicketStatusAdmitted  = "admitted"
	TicketStatusExpired   = "expired"
	TicketStatusCancelled = "cancelled"
)

// Ticket never holds the raw admission token, only its keyed hash.
type Ticket struct {
	ID              string         `db:"id" json:"id"`
	EventID         string         `db:"event_id" json:"event_id"`
	UserID          string         `db:"user_id" json:"user_id"`
	PaymentIntentID string         `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	PaidCoins       int64          `db:"paid_coins" json:"paid_coins,omitempty"`
	TokenHash       string         `db:"token_hash" json:"-"`
	TokenPrefix     string         `db:"token_prefix" json:"-"`
	TokenExpiresAt  types.DateTime `db:"token_expires_at" json:"token_expires_at"`
	Status          string         `db:"status" json:"status"` // unused, admitted, expired, cancelled
	AdmittedAt      types.DateTime `db:"admitted_at" json:"admitted_at"`
	Created         types.DateTime `db:"created" json:"created"`
}
