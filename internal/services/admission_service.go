package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fanzone-tickets/internal/services/tokenvault"
	"fanzone-tickets/internal/status"
	"fanzone-tickets/internal/store"
	"fanzone-tickets/models"
	"fanzone-tickets/monitoring"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/tools/types"
)

type ScanRequest struct {
	Token             string
	OperatorID        string
	DeviceFingerprint string
	LocationHint      string
}

// ScanResult is the decision returned to the gate.
type ScanResult struct {
	Result     string         `json:"result"`
	Reason     string         `json:"reason,omitempty"`
	TicketID   string         `json:"ticketId,omitempty"`
	Event      *models.Event  `json:"event,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
	AdmittedAt types.DateTime `json:"admittedAt"`
	LogID      string         `json:"logId"`
}

func (r *ScanResult) Admitted() bool {
	return r.Result == models.ScanAdmitted
}

// AdmissionService runs the check-in state machine. Every decision is written
// to the scan log in the same transaction that admits the ticket.
type AdmissionService struct {
	store  *store.Store
	vault  *tokenvault.Vault
	logger *slog.Logger
}

func NewAdmissionService(st *store.Store, vault *tokenvault.Vault, logger *slog.Logger) *AdmissionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdmissionService{store: st, vault: vault, logger: logger}
}

// Scan validates a presented token and admits its ticket at most once.
// Requests without a token or operator are rejected without a log entry.
func (s *AdmissionService) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, fmt.Errorf("scan: empty token: %w", status.ErrInvalidRequest)
	}
	if req.OperatorID == "" {
		return nil, status.ErrForbidden
	}

	var res *ScanResult
	err := s.store.RunInTx(ctx, func(tx dbx.Builder) error {
		var ticket *models.Ticket
		var err error
		res, ticket, err = s.decide(ctx, tx, token)
		if err != nil {
			return err
		}

		entry := &models.ScanLog{
			ID:                uuid.NewString(),
			OperatorID:        req.OperatorID,
			Result:            res.Result,
			Reason:            res.Reason,
			DeviceFingerprint: req.DeviceFingerprint,
			LocationHint:      req.LocationHint,
			ScannedAt:         types.NowDateTime(),
		}
		if ticket != nil {
			entry.TicketID = &ticket.ID
			entry.EventID = ticket.EventID
		}
		res.LogID = entry.ID
		return store.InsertScanLog(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	monitoring.TrackScan(res.Result)
	s.logger.Info("ticket scanned",
		"result", res.Result, "reason", res.Reason, "ticket_id", res.TicketID, "operator_id", req.OperatorID)
	return res, nil
}

// decide resolves the token and applies the admission checks in order.
func (s *AdmissionService) decide(ctx context.Context, tx dbx.Builder, token string) (*ScanResult, *models.Ticket, error) {
	ticket, err := s.resolve(ctx, tx, token)
	if err != nil {
		return nil, nil, err
	}
	if ticket == nil {
		return &ScanResult{Result: models.ScanInvalid, Reason: "unknown token"}, nil, nil
	}

	res := &ScanResult{TicketID: ticket.ID}

	if s.vault.Expired(ticket.TokenExpiresAt.Time()) {
		res.Result, res.Reason = models.ScanInvalid, "token expired"
		return res, ticket, nil
	}

	event, err := store.FindEvent(ctx, tx, ticket.EventID)
	if err != nil && !errors.Is(err, status.ErrEventNotFound) {
		return nil, nil, err
	}
	if event == nil || !event.IsActive() {
		res.Result, res.Reason = models.ScanInvalid, "event not active"
		res.Event = event
		return res, ticket, nil
	}
	res.Event = event

	if ticket.Status != models.TicketStatusUnused {
		s.rejectUsed(res, ticket)
		return res, ticket, nil
	}

	now := types.NowDateTime()
	ok, err := store.AdmitTicket(ctx, tx, ticket.ID, now)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		fresh, err := store.FindTicket(ctx, tx, ticket.ID)
		if err != nil {
			return nil, nil, err
		}
		s.rejectUsed(res, fresh)
		return res, fresh, nil
	}

	res.Result = models.ScanAdmitted
	res.AdmittedAt = now
	return res, ticket, nil
}

func (s *AdmissionService) rejectUsed(res *ScanResult, ticket *models.Ticket) {
	if ticket.Status == models.TicketStatusAdmitted {
		res.Result = models.ScanDuplicate
		res.Reason = "already admitted"
		res.AdmittedAt = ticket.AdmittedAt
		res.Warnings = []string{fmt.Sprintf("ticket was admitted at %s", ticket.AdmittedAt.Time().Format(time.RFC3339))}
		return
	}
	res.Result = models.ScanInvalid
	res.Reason = "ticket " + ticket.Status
}

// resolve narrows candidates by the clear prefix and verifies each hash.
func (s *AdmissionService) resolve(ctx context.Context, tx dbx.Builder, token string) (*models.Ticket, error) {
	candidates, err := store.TicketsByTokenPrefix(ctx, tx, tokenvault.Prefix(token))
	if err != nil {
		return nil, err
	}
	for _, t := range candidates {
		if s.vault.Verify(token, t.TokenHash) {
			return t, nil
		}
	}
	return nil, nil
}

func (s *AdmissionService) ScanHistory(ctx context.Context, eventID string, limit int64) ([]*models.ScanLog, error) {
	if _, err := store.FindEvent(ctx, s.store.DB(), eventID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return store.ScanLogsForEvent(ctx, s.store.DB(), eventID, limit)
}
