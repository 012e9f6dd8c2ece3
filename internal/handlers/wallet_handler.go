package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"fanzone-tickets/internal/services"

	"github.com/pocketbase/pocketbase/core"
)

type WalletHandler struct {
	wallet      *services.WalletService
	memberships *services.MembershipService
	logger      *slog.Logger
}

func NewWalletHandler(wallet *services.WalletService, memberships *services.MembershipService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{wallet: wallet, memberships: memberships, logger: defaultLogger(logger)}
}

// Get returns the caller's coin balance, recent movements and membership.
func (h *WalletHandler) Get(e *core.RequestEvent) error {
	p, err := principal(e)
	if err != nil {
		return err
	}
	ctx := e.Request.Context()

	balance, err := h.wallet.Balance(ctx, p.ID)
	if err != nil {
		return apiError(h.logger, err)
	}

	limit, _ := strconv.ParseInt(e.Request.URL.Query().Get("limit"), 10, 64)
	history, err := h.wallet.History(ctx, p.ID, limit)
	if err != nil {
		return apiError(h.logger, err)
	}

	membership, err := h.memberships.Get(ctx, p.ID)
	if err != nil {
		return apiError(h.logger, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"balance":      balance,
		"transactions": history,
		"membership":   membership,
	})
}
