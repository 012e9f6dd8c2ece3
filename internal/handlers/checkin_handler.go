package handlers

import (
	"log/slog"
	"net/http"

	"fanzone-tickets/internal/services"
	"fanzone-tickets/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

type CheckinHandler struct {
	admission *services.AdmissionService
	logger    *slog.Logger
}

func NewCheckinHandler(admission *services.AdmissionService, logger *slog.Logger) *CheckinHandler {
	return &CheckinHandler{admission: admission, logger: defaultLogger(logger)}
}

type CheckinRequest struct {
	Token             string `json:"token"`
	DeviceFingerprint string `json:"deviceFingerprint"`
	Gate              string `json:"gate"`
}

type CheckinResponse struct {
	Result     string         `json:"result"` // admit, reject
	Outcome    string         `json:"outcome"`
	Reason     string         `json:"reason,omitempty"`
	TicketID   string         `json:"ticketId,omitempty"`
	Event      *models.Event  `json:"event,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
	AdmittedAt types.DateTime `json:"admittedAt"`
}

// Checkin is called by gate devices. Role checks run in route middleware;
// every decision reached here is written to the scan log.
func (h *CheckinHandler) Checkin(e *core.RequestEvent) error {
	p, err := principal(e)
	if err != nil {
		return err
	}

	var req CheckinRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", nil)
	}

	res, err := h.admission.Scan(e.Request.Context(), services.ScanRequest{
		Token:             req.Token,
		OperatorID:        p.ID,
		DeviceFingerprint: req.DeviceFingerprint,
		LocationHint:      req.Gate,
	})
	if err != nil {
		return apiError(h.logger, err)
	}

	out := CheckinResponse{
		Result:     "reject",
		Outcome:    res.Result,
		Reason:     res.Reason,
		TicketID:   res.TicketID,
		Event:      res.Event,
		Warnings:   res.Warnings,
		AdmittedAt: res.AdmittedAt,
	}
	if res.Admitted() {
		out.Result = "admit"
	}
	return e.JSON(http.StatusOK, out)
}
