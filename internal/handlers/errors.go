package handlers

import (
	"log/slog"
	"net/http"

	"fanzone-tickets/internal/status"
	"fanzone-tickets/security"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// apiError converts a service error to the PocketBase error response. Server
// side failures are logged with their cause; the client only sees the
// classified message.
func apiError(logger *slog.Logger, err error) error {
	code := status.HTTPCode(err)
	switch {
	case code >= http.StatusInternalServerError:
		logger.Error("request failed", "error", err, "status", code)
	case status.KindOf(err) == status.KindIntegrity:
		logger.Warn("request rejected", "error", err, "status", code)
	}
	return apis.NewApiError(code, status.Message(err), nil)
}

func principal(e *core.RequestEvent) (*security.Principal, error) {
	p, err := security.CurrentPrincipal(e)
	if err != nil {
		return nil, apis.NewUnauthorizedError("The request requires a valid auth token.", nil)
	}
	return p, nil
}

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
