package handlers

import (
	"log/slog"
	"net/http"

	"fanzone-tickets/internal/services"
	"fanzone-tickets/models"
	"fanzone-tickets/utils"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type PaymentHandler struct {
	payments   *services.PaymentService
	reconciler *services.Reconciler
	tickets    *services.TicketService
	logger     *slog.Logger
}

func NewPaymentHandler(payments *services.PaymentService, reconciler *services.Reconciler, tickets *services.TicketService, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments:   payments,
		reconciler: reconciler,
		tickets:    tickets,
		logger:     defaultLogger(logger),
	}
}

type InitializeRequest struct {
	Context  string `json:"context"`
	Plan     string `json:"plan"`
	Interval string `json:"interval"`
	Coins    int64  `json:"coins"`
}

// Initialize opens a checkout for a membership or a coin bundle. Ticket
// checkouts go through the purchase endpoint.
func (h *PaymentHandler) Initialize(e *core.RequestEvent) error {
	p, err := principal(e)
	if err != nil {
		return err
	}

	var req InitializeRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", nil)
	}

	ctx := e.Request.Context()

	var checkout *services.Checkout
	switch req.Context {
	case models.PaymentContextMembership:
		checkout, err = h.payments.InitializeMembership(ctx, p.ID, p.Email, req.Plan, req.Interval)
	case models.PaymentContextCoins:
		checkout, err = h.payments.InitializeCoins(ctx, p.ID, p.Email, req.Coins)
	default:
		return apis.NewBadRequestError("context must be membership or coins", nil)
	}
	if err != nil {
		return apiError(h.logger, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"reference":        checkout.Reference,
		"authorizationUrl": checkout.AuthorizationURL,
		"amount":           utils.ToMajor(checkout.AmountMinor),
	})
}

type VerifyRequest struct {
	Reference string `json:"reference"`
}

func (h *PaymentHandler) Verify(e *core.RequestEvent) error {
	p, err := principal(e)
	if err != nil {
		return err
	}

	var req VerifyRequest
	if err := e.BindBody(&req); err != nil || req.Reference == "" {
		return apis.NewBadRequestError("reference is required", nil)
	}

	ctx := e.Request.Context()

	out, err := h.reconciler.VerifyReference(ctx, p.ID, req.Reference)
	if err != nil {
		return apiError(h.logger, err)
	}
	if out.Ticket != nil && out.Ticket.Token == "" {
		out.Ticket, err = h.tickets.ReissueToken(ctx, p.ID, out.Ticket.Ticket.ID)
		if err != nil {
			return apiError(h.logger, err)
		}
	}
	return e.JSON(http.StatusOK, out)
}
