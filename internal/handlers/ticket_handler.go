package handlers

import (
	"log/slog"
	"net/http"

	"fanzone-tickets/internal/services"
	"fanzone-tickets/internal/status"
	"fanzone-tickets/models"
	"fanzone-tickets/utils"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

const (
	MethodCoin     = "coin"
	MethodPaystack = "paystack"
)

type TicketHandler struct {
	tickets    *services.TicketService
	payments   *services.PaymentService
	reconciler *services.Reconciler
	guard      *services.PurchaseGuard
	logger     *slog.Logger
}

func NewTicketHandler(
	tickets *services.TicketService,
	payments *services.PaymentService,
	reconciler *services.Reconciler,
	guard *services.PurchaseGuard,
	logger *slog.Logger,
) *TicketHandler {
	return &TicketHandler{
		tickets:    tickets,
		payments:   payments,
		reconciler: reconciler,
		guard:      guard,
		logger:     defaultLogger(logger),
	}
}

type PurchaseRequest struct {
	EventID          string `json:"eventId"`
	Method           string `json:"method"`
	PaymentReference string `json:"paymentReference"`
}

// Purchase handles the three purchase paths: coins, opening a card checkout,
// and completing a card checkout by reference.
func (h *TicketHandler) Purchase(e *core.RequestEvent) error {
	p, err := principal(e)
	if err != nil {
		return err
	}

	var req PurchaseRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", nil)
	}
	if req.EventID == "" && req.PaymentReference == "" {
		return apis.NewBadRequestError("eventId is required", nil)
	}

	ctx := e.Request.Context()

	switch req.Method {
	case MethodCoin:
		if err := h.guard.Acquire(ctx, p.ID, req.EventID); err != nil {
			return apiError(h.logger, err)
		}
		issued, err := h.tickets.PurchaseWithCoins(ctx, p.ID, req.EventID)
		if err != nil {
			h.guard.Release(ctx, p.ID, req.EventID)
			return apiError(h.logger, err)
		}
		return e.JSON(http.StatusOK, issued)

	case MethodPaystack:
		if req.PaymentReference != "" {
			return h.completeCheckout(e, p.ID, req.PaymentReference)
		}
		if err := h.guard.Acquire(ctx, p.ID, req.EventID); err != nil {
			return apiError(h.logger, err)
		}
		checkout, err := h.payments.InitializeTicket(ctx, p.ID, p.Email, req.EventID)
		if err != nil {
			h.guard.Release(ctx, p.ID, req.EventID)
			return apiError(h.logger, err)
		}
		return e.JSON(http.StatusOK, map[string]any{
			"reference":        checkout.Reference,
			"authorizationUrl": checkout.AuthorizationURL,
			"amount":           utils.ToMajor(checkout.AmountMinor),
		})
	}

	return apis.NewBadRequestError("method must be coin or paystack", nil)
}

// completeCheckout verifies a card payment with the provider. When the ticket
// was already issued by the webhook, a fresh token is generated for the owner
// because the original one is never stored.
func (h *TicketHandler) completeCheckout(e *core.RequestEvent, userID, reference string) error {
	ctx := e.Request.Context()

	out, err := h.reconciler.VerifyReference(ctx, userID, reference)
	if err != nil {
		return apiError(h.logger, err)
	}
	if out.Context != models.PaymentContextTicket || out.Ticket == nil {
		return apiError(h.logger, status.ErrIntentContextInvalid)
	}

	issued := out.Ticket
	if issued.Token == "" {
		issued, err = h.tickets.ReissueToken(ctx, userID, issued.Ticket.ID)
		if err != nil {
			return apiError(h.logger, err)
		}
	}
	return e.JSON(http.StatusOK, issued)
}

func (h *TicketHandler) List(e *core.RequestEvent) error {
	p, err := principal(e)
	if err != nil {
		return err
	}

	tickets, err := h.tickets.ListForUser(e.Request.Context(), p.ID)
	if err != nil {
		return apiError(h.logger, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"tickets": tickets})
}

// ReissueToken rotates the admission token of the caller's unused ticket.
func (h *TicketHandler) ReissueToken(e *core.RequestEvent) error {
	p, err := principal(e)
	if err != nil {
		return err
	}

	issued, err := h.tickets.ReissueToken(e.Request.Context(), p.ID, e.Request.PathValue("id"))
	if err != nil {
		return apiError(h.logger, err)
	}
	return e.JSON(http.StatusOK, issued)
}
