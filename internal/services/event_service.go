package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fanzone-tickets/internal/status"
	"fanzone-tickets/internal/store"
	"fanzone-tickets/models"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/samber/lo"
)

var eventStatuses = []string{
	models.EventStatusActive,
	models.EventStatusClosed,
	models.EventStatusCancelled,
}

type NewEvent struct {
	Title            string
	Venue            string
	EventDate        types.DateTime
	TicketPriceMinor int64
	Capacity         int
}

// EventService manages the events tickets are sold for.
type EventService struct {
	store  *store.Store
	logger *slog.Logger
}

func NewEventService(st *store.Store, logger *slog.Logger) *EventService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventService{store: st, logger: logger}
}

// Create opens a new active event with no reservations.
func (s *EventService) Create(ctx context.Context, in NewEvent) (*models.Event, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("event: title is required: %w", status.ErrInvalidRequest)
	}
	if in.Capacity <= 0 {
		return nil, fmt.Errorf("event: capacity must be positive: %w", status.ErrInvalidRequest)
	}
	if in.TicketPriceMinor <= 0 {
		return nil, fmt.Errorf("event: ticket price must be positive: %w", status.ErrInvalidRequest)
	}

	event := &models.Event{
		ID:               uuid.NewString(),
		Title:            title,
		Venue:            strings.TrimSpace(in.Venue),
		EventDate:        in.EventDate,
		Status:           models.EventStatusActive,
		TicketPriceMinor: in.TicketPriceMinor,
		Capacity:         in.Capacity,
	}
	if err := store.InsertEvent(ctx, s.store.DB(), event); err != nil {
		return nil, err
	}

	s.logger.Info("event created", "event_id", event.ID, "capacity", event.Capacity, "price_minor", event.TicketPriceMinor)
	return event, nil
}

func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	return store.FindEvent(ctx, s.store.DB(), id)
}

// ActiveEvents lists the events currently on sale.
func (s *EventService) ActiveEvents(ctx context.Context) ([]*models.Event, error) {
	return s.store.ActiveEvents(ctx)
}

// SetStatus opens or closes sales and admission for an event. Cancelled
// events stay cancelled.
func (s *EventService) SetStatus(ctx context.Context, id, eventStatus string) (*models.Event, error) {
	if !lo.Contains(eventStatuses, eventStatus) {
		return nil, fmt.Errorf("event: unknown status %q: %w", eventStatus, status.ErrInvalidRequest)
	}

	var event *models.Event
	err := s.store.RunInTx(ctx, func(tx dbx.Builder) error {
		var err error
		event, err = store.FindEvent(ctx, tx, id)
		if err != nil {
			return err
		}
		if event.Status == eventStatus {
			return nil
		}
		if event.Status == models.EventStatusCancelled {
			return status.ErrEventCancelled
		}
		if err := store.SetEventStatus(ctx, tx, id, eventStatus); err != nil {
			return err
		}
		event.Status = eventStatus
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("event status changed", "event_id", id, "status", eventStatus)
	return event, nil
}
