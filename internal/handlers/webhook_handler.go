package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"fanzone-tickets/internal/services"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	reconciler *services.Reconciler
	provider   string
	logger     *slog.Logger
}

func NewWebhookHandler(reconciler *services.Reconciler, provider string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, provider: provider, logger: defaultLogger(logger)}
}

// Receive verifies the signature over the raw body, so the body must not be
// bound or re-encoded before it reaches the reconciler.
func (h *WebhookHandler) Receive(e *core.RequestEvent) error {
	body, err := io.ReadAll(io.LimitReader(e.Request.Body, maxWebhookBody))
	if err != nil {
		return apis.NewBadRequestError("Invalid request body", nil)
	}

	out, err := h.reconciler.HandleWebhook(e.Request.Context(), h.provider, e.Request.Header, body)
	if err != nil {
		return apiError(h.logger, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"status":    out.Status,
		"reference": out.Reference,
	})
}
