package store

import (
	"context"
	"fmt"

	"fanzone-tickets/models"

	"github.com/pocketbase/dbx"
)

// FindMembership returns nil without error when the user has no membership row.
func FindMembership(ctx context.Context, db dbx.Builder, userID string) (*models.Membership, error) {
	var m models.Membership
	err := db.Select("*").
		From("memberships").
		Where(dbx.HashExp{"user_id": userID}).
		WithContext(ctx).
		One(&m)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find membership: %w", err)
	}
	return &m, nil
}

func UpsertMembership(ctx context.Context, db dbx.Builder, m *models.Membership) error {
	_, err := db.NewQuery(`
		INSERT INTO memberships (user_id, tier_code, started_at, expires_at, status, total_months_purchased, last_payment_ref)
		VALUES ({:user}, {:tier}, {:started}, {:expires}, {:status}, {:months}, {:ref})
		ON CONFLICT (user_id) DO UPDATE SET
			tier_code = excluded.tier_code,
			started_at = excluded.started_at,
			expires_at = excluded.expires_at,
			status = excluded.status,
			total_months_purchased = excluded.total_months_purchased,
			last_payment_ref = excluded.last_payment_ref
	`).Bind(dbx.Params{
		"user":    m.UserID,
		"tier":    m.TierCode,
		"started": m.StartedAt,
		"expires": m.ExpiresAt,
		"status":  m.Status,
		"months":  m.TotalMonthsPurchased,
		"ref":     m.LastPaymentRef,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}
