package models

import (
	"github.com/pocketbase/pocketbase/tools/types"
)

const (
	EventStatusActive    = "active"
	EventStatusClosed    = "closed"
	EventStatusCancelled = "cancelled"
)

type Event struct {
	ID                  string         `db:"id" json:"id"`
	Title               string         `db:"title" json:"title"`
	Venue               string         `db:"venue" json:"venue"`
	EventDate           types.DateTime `db:"event_date" json:"event_date"`
	Status              string         `db:"status" json:"status"` // active, closed, cancelled
	TicketPriceMinor    int64          `db:"ticket_price_minor" json:"-"`
	Capacity            int            `db:"capacity" json:"capacity"`
	CurrentReservations int            `db:"current_reservations" json:"current_reservations"`
}

func (e *Event) IsActive() bool {
	return e.Status == EventStatusActive
}

func (e *Event) SoldOut() bool {
	return e.CurrentReservations >= e.Capacity
}
