package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fanzone-tickets/internal/services/tokenvault"
	"fanzone-tickets/internal/status"
	"fanzone-tickets/internal/store"
	"fanzone-tickets/models"
	"fanzone-tickets/monitoring"
	"fanzone-tickets/utils"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/tools/types"
)

// IssuedTicket pairs a ticket with its raw admission token. Token is empty
// when the ticket already existed and no new secret was generated.
type IssuedTicket struct {
	Ticket *models.Ticket `json:"ticket"`
	Token  string         `json:"qrToken,omitempty"`
}

type TicketService struct {
	store          *store.Store
	vault          *tokenvault.Vault
	wallet         *WalletService
	coinValueMinor int64
	logger         *slog.Logger
}

func NewTicketService(st *store.Store, vault *tokenvault.Vault, wallet *WalletService, coinValueMinor int64, logger *slog.Logger) *TicketService {
	if logger == nil {
		logger = slog.Default()
	}
	if coinValueMinor <= 0 {
		coinValueMinor = 100
	}
	return &TicketService{
		store:          st,
		vault:          vault,
		wallet:         wallet,
		coinValueMinor: coinValueMinor,
		logger:         logger,
	}
}

// CoinCost is the number of coins charged for one ticket to e, rounded up.
func (s *TicketService) CoinCost(e *models.Event) int64 {
	return utils.CeilDiv(e.TicketPriceMinor, s.coinValueMinor)
}

// CheckPurchasable runs the purchase preconditions without claiming anything:
// the event exists and is active, it is not sold out, and the user holds no
// unused ticket for it.
func (s *TicketService) CheckPurchasable(ctx context.Context, userID, eventID string) (*models.Event, error) {
	return s.checkPurchasable(ctx, s.store.DB(), userID, eventID)
}

func (s *TicketService) checkPurchasable(ctx context.Context, db dbx.Builder, userID, eventID string) (*models.Event, error) {
	event, err := store.FindEvent(ctx, db, eventID)
	if err != nil {
		return nil, err
	}
	if !event.IsActive() {
		return nil, status.ErrEventNotActive
	}
	if event.SoldOut() {
		return nil, status.ErrSoldOut
	}
	held, err := store.HasUnusedTicket(ctx, db, userID, eventID)
	if err != nil {
		return nil, err
	}
	if held {
		return nil, status.ErrDuplicateTicket
	}
	return event, nil
}

// PurchaseWithCoins claims a seat, debits the ticket's coin cost and issues
// the ticket in one transaction. Any failure leaves capacity and balance
// unchanged.
func (s *TicketService) PurchaseWithCoins(ctx context.Context, userID, eventID string) (*IssuedTicket, error) {
	var issued *IssuedTicket
	err := s.store.RunInTx(ctx, func(tx dbx.Builder) error {
		event, err := s.checkPurchasable(ctx, tx, userID, eventID)
		if err != nil {
			return err
		}
		if err := s.claimSeat(ctx, tx, eventID); err != nil {
			return err
		}

		ticketID := uuid.NewString()
		cost := s.CoinCost(event)
		if cost > 0 {
			if _, err := s.wallet.DebitTx(ctx, tx, userID, cost, models.ReasonTicketPurchase, ticketID); err != nil {
				return err
			}
		}

		issued, err = s.insertTicket(ctx, tx, &models.Ticket{
			ID:        ticketID,
			EventID:   eventID,
			UserID:    userID,
			PaidCoins: cost,
		})
		return err
	})
	if err != nil {
		monitoring.TrackPurchase("coin", purchaseResult(err))
		return nil, err
	}

	monitoring.TrackPurchase("coin", "issued")
	s.logger.Info("ticket purchased with coins",
		"ticket_id", issued.Ticket.ID, "event_id", eventID, "user_id", userID, "coins", issued.Ticket.PaidCoins)
	return issued, nil
}

// IssueForPayment issues the ticket paid for by intent. It is idempotent per
// intent: a second call returns the existing ticket without a token.
func (s *TicketService) IssueForPayment(ctx context.Context, intent *models.PaymentIntent) (*IssuedTicket, error) {
	var issued *IssuedTicket
	err := s.store.RunInTx(ctx, func(tx dbx.Builder) error {
		var err error
		issued, err = s.IssueForPaymentTx(ctx, tx, intent)
		return err
	})
	if err != nil {
		monitoring.TrackPurchase("paystack", purchaseResult(err))
		return nil, err
	}
	if issued.Token != "" {
		monitoring.TrackPurchase("paystack", "issued")
	}
	return issued, nil
}

func (s *TicketService) IssueForPaymentTx(ctx context.Context, tx dbx.Builder, intent *models.PaymentIntent) (*IssuedTicket, error) {
	if intent.Context != models.PaymentContextTicket || intent.ContextRef == "" {
		return nil, status.ErrIntentContextInvalid
	}

	existing, err := store.FindTicketByIntent(ctx, tx, intent.ID)
	if err == nil {
		return &IssuedTicket{Ticket: existing}, nil
	}
	if !errors.Is(err, status.ErrTicketNotFound) {
		return nil, err
	}

	if _, err := s.checkPurchasable(ctx, tx, intent.UserID, intent.ContextRef); err != nil {
		return nil, err
	}
	if err := s.claimSeat(ctx, tx, intent.ContextRef); err != nil {
		return nil, err
	}

	issued, err := s.insertTicket(ctx, tx, &models.Ticket{
		ID:              uuid.NewString(),
		EventID:         intent.ContextRef,
		UserID:          intent.UserID,
		PaymentIntentID: intent.ID,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket issued for payment",
		"ticket_id", issued.Ticket.ID, "event_id", intent.ContextRef, "user_id", intent.UserID, "reference", intent.ProviderRef)
	return issued, nil
}

// ReissueToken rotates the token of an unused ticket owned by userID and
// returns the new raw token. The previous token stops resolving.
func (s *TicketService) ReissueToken(ctx context.Context, userID, ticketID string) (*IssuedTicket, error) {
	var issued *IssuedTicket
	err := s.store.RunInTx(ctx, func(tx dbx.Builder) error {
		ticket, err := store.FindTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if ticket.UserID != userID {
			return status.ErrTicketNotFound
		}
		if ticket.Status != models.TicketStatusUnused {
			return status.ErrTicketNotUnused
		}

		tok, err := s.vault.Issue()
		if err != nil {
			return err
		}
		expiresAt, err := types.ParseDateTime(tok.ExpiresAt)
		if err != nil {
			return err
		}

		ok, err := store.RotateTicketToken(ctx, tx, ticket.ID, userID, tok.Hash, tok.Prefix, expiresAt)
		if err != nil {
			return err
		}
		if !ok {
			return status.ErrTicketNotUnused
		}

		ticket.TokenHash = tok.Hash
		ticket.TokenPrefix = tok.Prefix
		ticket.TokenExpiresAt = expiresAt
		issued = &IssuedTicket{Ticket: ticket, Token: tok.Raw}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket token reissued", "ticket_id", ticketID, "user_id", userID)
	return issued, nil
}

// Cancel moves an unused ticket to cancelled and optionally refunds the coins
// paid for it. The seat is not returned to the event.
func (s *TicketService) Cancel(ctx context.Context, ticketID string, refund bool) (*models.Ticket, error) {
	var ticket *models.Ticket
	err := s.store.RunInTx(ctx, func(tx dbx.Builder) error {
		var err error
		ticket, err = store.FindTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}

		ok, err := store.CancelUnusedTicket(ctx, tx, ticketID, models.TicketStatusCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return status.ErrTicketNotUnused
		}
		ticket.Status = models.TicketStatusCancelled

		if refund && ticket.PaidCoins > 0 {
			_, err := s.wallet.RefundTx(ctx, tx, ticket.UserID, ticket.PaidCoins, ticket.ID)
			if err != nil && !errors.Is(err, status.ErrAlreadyApplied) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket cancelled", "ticket_id", ticketID, "refund", refund)
	return ticket, nil
}

func (s *TicketService) ListForUser(ctx context.Context, userID string) ([]*models.Ticket, error) {
	return store.TicketsForUser(ctx, s.store.DB(), userID)
}

// claimSeat increments the reservation counter. A lost race is reported as
// sold out, or as not active when the event closed in between.
func (s *TicketService) claimSeat(ctx context.Context, tx dbx.Builder, eventID string) error {
	ok, err := store.ClaimSeat(ctx, tx, eventID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	event, err := store.FindEvent(ctx, tx, eventID)
	if err != nil {
		return err
	}
	if !event.IsActive() {
		return status.ErrEventNotActive
	}
	return status.ErrSoldOut
}

func (s *TicketService) insertTicket(ctx context.Context, tx dbx.Builder, t *models.Ticket) (*IssuedTicket, error) {
	tok, err := s.vault.Issue()
	if err != nil {
		return nil, err
	}
	expiresAt, err := types.ParseDateTime(tok.ExpiresAt)
	if err != nil {
		return nil, err
	}

	t.TokenHash = tok.Hash
	t.TokenPrefix = tok.Prefix
	t.TokenExpiresAt = expiresAt
	t.Status = models.TicketStatusUnused
	t.Created = types.NowDateTime()

	if err := store.InsertTicket(ctx, tx, t); err != nil {
		return nil, fmt.Errorf("issue ticket: %w", err)
	}
	return &IssuedTicket{Ticket: t, Token: tok.Raw}, nil
}

func purchaseResult(err error) string {
	switch {
	case errors.Is(err, status.ErrSoldOut):
		return "sold_out"
	case errors.Is(err, status.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, status.ErrDuplicateTicket):
		return "duplicate"
	case errors.Is(err, status.ErrEventNotActive), errors.Is(err, status.ErrEventNotFound):
		return "unavailable"
	}
	return "error"
}
