package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"fanzone-tickets/internal/services"

	"github.com/pocketbase/pocketbase/core"
)

type AdminHandler struct {
	tickets    *services.TicketService
	reconciler *services.Reconciler
	admission  *services.AdmissionService
	logger     *slog.Logger
}

func NewAdminHandler(tickets *services.TicketService, reconciler *services.Reconciler, admission *services.AdmissionService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		tickets:    tickets,
		reconciler: reconciler,
		admission:  admission,
		logger:     defaultLogger(logger),
	}
}

type CancelRequest struct {
	Refund bool `json:"refund"`
}

// CancelTicket cancels an unused ticket. The seat is not returned to the
// event; coins are refunded when requested.
func (h *AdminHandler) CancelTicket(e *core.RequestEvent) error {
	var req CancelRequest
	if e.Request.ContentLength > 0 {
		if err := e.BindBody(&req); err != nil {
			req = CancelRequest{}
		}
	}

	ticket, err := h.tickets.Cancel(e.Request.Context(), e.Request.PathValue("id"), req.Refund)
	if err != nil {
		return apiError(h.logger, err)
	}

	h.logger.Info("ticket cancelled by admin", "ticket_id", ticket.ID, "refund", req.Refund, "admin_id", authID(e))
	return e.JSON(http.StatusOK, map[string]any{"ticket": ticket})
}

// RetryPayment re-runs fulfillment for a charged intent that failed.
func (h *AdminHandler) RetryPayment(e *core.RequestEvent) error {
	ref := e.Request.PathValue("reference")

	out, err := h.reconciler.Retry(e.Request.Context(), ref)
	if err != nil {
		return apiError(h.logger, err)
	}

	h.logger.Info("payment retried by admin", "reference", ref, "admin_id", authID(e))
	return e.JSON(http.StatusOK, out)
}

func (h *AdminHandler) ScanHistory(e *core.RequestEvent) error {
	limit, _ := strconv.ParseInt(e.Request.URL.Query().Get("limit"), 10, 64)

	logs, err := h.admission.ScanHistory(e.Request.Context(), e.Request.PathValue("id"), limit)
	if err != nil {
		return apiError(h.logger, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"scans": logs})
}

func authID(e *core.RequestEvent) string {
	if e.Auth == nil {
		return ""
	}
	return e.Auth.Id
}
