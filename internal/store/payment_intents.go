package store

import (
	"context"
	"fmt"

	"fanzone-tickets/internal/status"
	"fanzone-tickets/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/tools/types"
)

func InsertIntent(ctx context.Context, db dbx.Builder, p *models.PaymentIntent) error {
	metadata := p.Metadata
	if len(metadata) == 0 {
		metadata = types.JSONRaw("{}")
	}
	_, err := db.Insert("payment_intents", dbx.Params{
		"id":           p.ID,
		"user_id":      p.UserID,
		"context":      p.Context,
		"context_ref":  p.ContextRef,
		"provider":     p.Provider,
		"provider_ref": p.ProviderRef,
		"amount_minor": p.AmountMinor,
		"status":       p.Status,
		"metadata":     string(metadata),
		"created":      p.Created,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("insert intent: %w", err)
	}
	return nil
}

func FindIntentByRef(ctx context.Context, db dbx.Builder, ref string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := db.Select("*").
		From("payment_intents").
		Where(dbx.HashExp{"provider_ref": ref}).
		WithContext(ctx).
		One(&intent)
	if isNoRows(err) {
		return nil, status.ErrIntentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find intent: %w", err)
	}
	return &intent, nil
}

// MarkIntentPaid is the idempotency gate: only one caller can move an intent
// awaiting its charge to paid. That is a pending intent, or a failed one with
// no recorded charge. It reports false otherwise.
func MarkIntentPaid(ctx context.Context, db dbx.Builder, id string, providerData []byte, paidAt types.DateTime) (bool, error) {
	if len(providerData) == 0 {
		providerData = []byte("{}")
	}
	res, err := db.NewQuery(`
		UPDATE payment_intents
		SET status = {:paid}, provider_data = {:data}, paid_at = {:paidAt}, failure_reason = ''
		WHERE id = {:id}
			AND (status = {:pending} OR (status = {:failed} AND paid_at = ''))
	`).Bind(dbx.Params{
		"id":      id,
		"paid":    models.PaymentStatusPaid,
		"pending": models.PaymentStatusPending,
		"failed":  models.PaymentStatusFailed,
		"data":    string(providerData),
		"paidAt":  paidAt,
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("mark intent paid: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return false, fmt.Errorf("mark intent paid: %w", err)
	}
	return n == 1, nil
}

// MarkIntentFailed moves an intent in one of the from states to failed.
func MarkIntentFailed(ctx context.Context, db dbx.Builder, id, reason string, from ...string) (bool, error) {
	if len(from) == 0 {
		from = []string{models.PaymentStatusPending}
	}
	in := make([]any, len(from))
	for i, s := range from {
		in[i] = s
	}
	res, err := db.Update("payment_intents",
		dbx.Params{"status": models.PaymentStatusFailed, "failure_reason": reason},
		dbx.And(dbx.HashExp{"id": id}, dbx.In("status", in...)),
	).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("mark intent failed: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return false, fmt.Errorf("mark intent failed: %w", err)
	}
	return n == 1, nil
}

// ReopenFailedIntent returns a charged but failed intent to paid for an operator
// retry. Intents that failed before any charge stay failed.
func ReopenFailedIntent(ctx context.Context, db dbx.Builder, id string) (bool, error) {
	res, err := db.Update("payment_intents",
		dbx.Params{"status": models.PaymentStatusPaid, "failure_reason": ""},
		dbx.And(
			dbx.HashExp{"id": id, "status": models.PaymentStatusFailed},
			dbx.NewExp("paid_at != ''"),
		),
	).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("reopen intent: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return false, fmt.Errorf("reopen intent: %w", err)
	}
	return n == 1, nil
}
