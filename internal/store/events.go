package store

import (
	"context"
	"fmt"

	"fanzone-tickets/internal/status"
	"fanzone-tickets/models"

	"github.com/pocketbase/dbx"
)

func FindEvent(ctx context.Context, db dbx.Builder, id string) (*models.Event, error) {
	var event models.Event
	err := db.Select("*").
		From("ticket_events").
		Where(dbx.HashExp{"id": id}).
		WithContext(ctx).
		One(&event)
	if isNoRows(err) {
		return nil, status.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}
	return &event, nil
}

func InsertEvent(ctx context.Context, db dbx.Builder, e *models.Event) error {
	_, err := db.Insert("ticket_events", dbx.Params{
		"id":                   e.ID,
		"title":                e.Title,
		"venue":                e.Venue,
		"event_date":           e.EventDate,
		"status":               e.Status,
		"ticket_price_minor":   e.TicketPriceMinor,
		"capacity":             e.Capacity,
		"current_reservations": e.CurrentReservations,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ClaimSeat increments current_reservations only while the event is active and
// below capacity. It reports false when no slot was claimed.
func ClaimSeat(ctx context.Context, db dbx.Builder, eventID string) (bool, error) {
	res, err := db.NewQuery(`
		UPDATE ticket_events
		SET current_reservations = current_reservations + 1
		WHERE id = {:id}
			AND status = {:active}
			AND current_reservations < capacity
	`).Bind(dbx.Params{
		"id":     eventID,
		"active": models.EventStatusActive,
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("claim seat: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return false, fmt.Errorf("claim seat: %w", err)
	}
	return n == 1, nil
}

func SetEventStatus(ctx context.Context, db dbx.Builder, eventID, eventStatus string) error {
	_, err := db.Update("ticket_events",
		dbx.Params{"status": eventStatus},
		dbx.HashExp{"id": eventID},
	).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("set event status: %w", err)
	}
	return nil
}

func ActiveEvents(ctx context.Context, db dbx.Builder) ([]*models.Event, error) {
	events := []*models.Event{}
	err := db.Select("*").
		From("ticket_events").
		Where(dbx.HashExp{"status": models.EventStatusActive}).
		OrderBy("event_date ASC").
		WithContext(ctx).
		All(&events)
	if err != nil {
		return nil, fmt.Errorf("active events: %w", err)
	}
	return events, nil
}
