package handlers

import (
	"log/slog"
	"net/http"

	"fanzone-tickets/internal/services"
	"fanzone-tickets/models"
	"fanzone-tickets/utils"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"
)

type EventHandler struct {
	events  *services.EventService
	tickets *services.TicketService
	logger  *slog.Logger
}

func NewEventHandler(events *services.EventService, tickets *services.TicketService, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, tickets: tickets, logger: defaultLogger(logger)}
}

// EventView is an event with its prices in major units and coins.
type EventView struct {
	*models.Event
	Price    decimal.Decimal `json:"price"`
	CoinCost int64           `json:"coinCost"`
}

type CreateEventRequest struct {
	Title     string          `json:"title"`
	Venue     string          `json:"venue"`
	EventDate string          `json:"eventDate"`
	Price     decimal.Decimal `json:"price"`
	Capacity  int             `json:"capacity"`
}

type EventStatusRequest struct {
	Status string `json:"status"`
}

func (h *EventHandler) view(event *models.Event) EventView {
	return EventView{
		Event:    event,
		Price:    utils.ToMajor(event.TicketPriceMinor),
		CoinCost: h.tickets.CoinCost(event),
	}
}

// List returns the events on sale.
func (h *EventHandler) List(e *core.RequestEvent) error {
	events, err := h.events.ActiveEvents(e.Request.Context())
	if err != nil {
		return apiError(h.logger, err)
	}

	views := make([]EventView, 0, len(events))
	for _, event := range events {
		views = append(views, h.view(event))
	}
	return e.JSON(http.StatusOK, map[string]any{"events": views})
}

func (h *EventHandler) Get(e *core.RequestEvent) error {
	event, err := h.events.Get(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return apiError(h.logger, err)
	}
	return e.JSON(http.StatusOK, h.view(event))
}

// Create opens a new event. The price is given in major units.
func (h *EventHandler) Create(e *core.RequestEvent) error {
	var req CreateEventRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", nil)
	}

	date, err := types.ParseDateTime(req.EventDate)
	if err != nil {
		return apis.NewBadRequestError("eventDate must be a date time", nil)
	}

	event, err := h.events.Create(e.Request.Context(), services.NewEvent{
		Title:            req.Title,
		Venue:            req.Venue,
		EventDate:        date,
		TicketPriceMinor: utils.ToMinor(req.Price),
		Capacity:         req.Capacity,
	})
	if err != nil {
		return apiError(h.logger, err)
	}

	h.logger.Info("event created by admin", "event_id", event.ID, "admin_id", authID(e))
	return e.JSON(http.StatusCreated, h.view(event))
}

// SetStatus closes, reopens or cancels an event.
func (h *EventHandler) SetStatus(e *core.RequestEvent) error {
	var req EventStatusRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", nil)
	}

	event, err := h.events.SetStatus(e.Request.Context(), e.Request.PathValue("id"), req.Status)
	if err != nil {
		return apiError(h.logger, err)
	}

	h.logger.Info("event status set by admin", "event_id", event.ID, "status", event.Status, "admin_id", authID(e))
	return e.JSON(http.StatusOK, h.view(event))
}
