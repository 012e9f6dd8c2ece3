package models

import (
	"github.com/pocketbase/pocketbase/tools/types"
)

const (
	MembershipActive  = "active"
	MembershipExpired = "expired"
)

type Membership struct {
	UserID               string         `db:"user_id" json:"user_id"`
	TierCode             string         `db:"tier_code" json:"tier_code"`
	StartedAt            types.DateTime `db:"started_at" json:"started_at"`
	ExpiresAt            types.DateTime `db:"expires_at" json:"expires_at"`
	Status               string         `db:"status" json:"status"`
	TotalMonthsPurchased int            `db:"total_months_purchased" json:"total_months_purchased"`
	LastPaymentRef       string         `db:"last_payment_ref" json:"-"`
}
