package models

import (
	"github.com/pocketbase/pocketbase/tools/types"
)

const (
	WalletCredit = "credit"
	WalletDebit  = "debit"

	ReasonTicketPurchase  = "ticket_purchase"
	ReasonCoinPurchase    = "coin_purchase"
	ReasonMembershipBonus = "membership_bonus"
	ReasonRefund          = "refund"

	WalletTxCompleted = "completed"
)

// WalletAccount caches the balance backed by the wallet_transactions ledger.
type WalletAccount struct {
	UserID  string         `db:"user_id" json:"user_id"`
	Balance int64          `db:"balance" json:"balance"`
	Updated types.DateTime `db:"updated" json:"updated"`
}

type WalletTransaction struct {
	ID      string         `db:"id" json:"id"`
	UserID  string         `db:"user_id" json:"user_id"`
	Amount  int64          `db:"amount" json:"amount"`
	Type    string         `db:"type" json:"type"` // credit, debit
	Reason  string         `db:"reason" json:"reason"`
	RefID   string         `db:"ref_id" json:"ref_id"`
	Status  string         `db:"status" json:"status"`
	Created types.DateTime `db:"created" json:"created"`
}
