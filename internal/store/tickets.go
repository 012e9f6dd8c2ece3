package store

import (
	"context"
	"fmt"

	"fanzone-tickets/internal/status"
	"fanzone-tickets/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/tools/types"
)

func InsertTicket(ctx context.Context, db dbx.Builder, t *models.Ticket) error {
	_, err := db.Insert("tickets", dbx.Params{
		"id":                t.ID,
		"event_id":          t.EventID,
		"user_id":           t.UserID,
		"payment_intent_id": t.PaymentIntentID,
		"paid_coins":        t.PaidCoins,
		"token_hash":        t.TokenHash,
		"token_prefix":      t.TokenPrefix,
		"token_expires_at":  t.TokenExpiresAt,
		"status":            t.Status,
		"admitted_at":       t.AdmittedAt,
		"created":           t.Created,
	}).WithContext(ctx).Execute()
	if isUniqueViolation(err) {
		return status.ErrDuplicateTicket
	}
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func FindTicket(ctx context.Context, db dbx.Builder, id string) (*models.Ticket, error) {
	return findTicketBy(ctx, db, dbx.HashExp{"id": id})
}

func FindTicketByIntent(ctx context.Context, db dbx.Builder, intentID string) (*models.Ticket, error) {
	return findTicketBy(ctx, db, dbx.HashExp{"payment_intent_id": intentID})
}

func findTicketBy(ctx context.Context, db dbx.Builder, where dbx.Expression) (*models.Ticket, error) {
	var t models.Ticket
	err := db.Select("*").
		From("tickets").
		Where(where).
		WithContext(ctx).
		One(&t)
	if isNoRows(err) {
		return nil, status.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find ticket: %w", err)
	}
	return &t, nil
}

func HasUnusedTicket(ctx context.Context, db dbx.Builder, userID, eventID string) (bool, error) {
	var n int
	err := db.Select("count(*)").
		From("tickets").
		Where(dbx.HashExp{
			"user_id":  userID,
			"event_id": eventID,
			"status":   models.TicketStatusUnused,
		}).
		WithContext(ctx).
		Row(&n)
	if err != nil {
		return false, fmt.Errorf("has unused ticket: %w", err)
	}
	return n > 0, nil
}

// TicketsByTokenPrefix returns the hashed-token candidates sharing a prefix.
func TicketsByTokenPrefix(ctx context.Context, db dbx.Builder, prefix string) ([]*models.Ticket, error) {
	tickets := []*models.Ticket{}
	err := db.Select("*").
		From("tickets").
		Where(dbx.HashExp{"token_prefix": prefix}).
		AndWhere(dbx.NewExp("token_hash != ''")).
		WithContext(ctx).
		All(&tickets)
	if err != nil {
		return nil, fmt.Errorf("tickets by prefix: %w", err)
	}
	return tickets, nil
}

func TicketsForUser(ctx context.Context, db dbx.Builder, userID string) ([]*models.Ticket, error) {
	tickets := []*models.Ticket{}
	err := db.Select("*").
		From("tickets").
		Where(dbx.HashExp{"user_id": userID}).
		OrderBy("created DESC").
		WithContext(ctx).
		All(&tickets)
	if err != nil {
		return nil, fmt.Errorf("tickets for user: %w", err)
	}
	return tickets, nil
}

func CountTicketsForEvent(ctx context.Context, db dbx.Builder, eventID string) (int, error) {
	var n int
	err := db.Select("count(*)").
		From("tickets").
		Where(dbx.HashExp{"event_id": eventID}).
		WithContext(ctx).
		Row(&n)
	if err != nil {
		return 0, fmt.Errorf("count tickets: %w", err)
	}
	return n, nil
}

// AdmitTicket performs the single unused -> admitted transition.
func AdmitTicket(ctx context.Context, db dbx.Builder, id string, at types.DateTime) (bool, error) {
	res, err := db.Update("tickets",
		dbx.Params{"status": models.TicketStatusAdmitted, "admitted_at": at},
		dbx.HashExp{"id": id, "status": models.TicketStatusUnused},
	).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("admit ticket: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return false, fmt.Errorf("admit ticket: %w", err)
	}
	return n == 1, nil
}

// RotateTicketToken replaces the token of an unused ticket owned by userID.
func RotateTicketToken(ctx context.Context, db dbx.Builder, id, userID, hash, prefix string, expiresAt types.DateTime) (bool, error) {
	res, err := db.Update("tickets",
		dbx.Params{
			"token_hash":       hash,
			"token_prefix":     prefix,
			"token_expires_at": expiresAt,
		},
		dbx.HashExp{"id": id, "user_id": userID, "status": models.TicketStatusUnused},
	).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("rotate ticket token: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return false, fmt.Errorf("rotate ticket token: %w", err)
	}
	return n == 1, nil
}

// CancelUnusedTicket moves an unused ticket to a terminal failure state.
func CancelUnusedTicket(ctx context.Context, db dbx.Builder, id, newStatus string) (bool, error) {
	res, err := db.Update("tickets",
		dbx.Params{"status": newStatus},
		dbx.HashExp{"id": id, "status": models.TicketStatusUnused},
	).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("cancel ticket: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return false, fmt.Errorf("cancel ticket: %w", err)
	}
	return n == 1, nil
}
