package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fanzone-tickets/internal/services/gateway"
	"fanzone-tickets/internal/status"
	"fanzone-tickets/internal/store"
	"fanzone-tickets/models"
	"fanzone-tickets/utils"

	"github.com/google/uuid"
	"github.com/pocketbase/pocketbase/tools/types"
)

type PaymentConfig struct {
	RefPrefix      string
	CallbackURL    string
	CoinValueMinor int64
}

// Checkout is returned to the client to complete a provider payment.
type Checkout struct {
	Reference        string                `json:"reference"`
	AuthorizationURL string                `json:"authorizationUrl"`
	AmountMinor      int64                 `json:"-"`
	Intent           *models.PaymentIntent `json:"-"`
}

// PaymentService creates pending payment intents and opens provider checkouts.
type PaymentService struct {
	store       *store.Store
	gateways    *gateway.Registry
	tickets     *TicketService
	memberships *MembershipService
	cfg         PaymentConfig
	now         func() time.Time
	logger      *slog.Logger
}

func NewPaymentService(st *store.Store, gateways *gateway.Registry, tickets *TicketService, memberships *MembershipService, cfg PaymentConfig, logger *slog.Logger) *PaymentService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RefPrefix == "" {
		cfg.RefPrefix = "EL"
	}
	if cfg.CoinValueMinor <= 0 {
		cfg.CoinValueMinor = 100
	}
	return &PaymentService{
		store:       st,
		gateways:    gateways,
		tickets:     tickets,
		memberships: memberships,
		cfg:         cfg,
		now:         time.Now,
		logger:      logger,
	}
}

// InitializeTicket opens a checkout for one ticket to eventID after the
// purchase preconditions pass. No seat is claimed until the charge succeeds.
func (s *PaymentService) InitializeTicket(ctx context.Context, userID, email, eventID string) (*Checkout, error) {
	event, err := s.tickets.CheckPurchasable(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if event.TicketPriceMinor <= 0 {
		return nil, fmt.Errorf("event %s has no card price: %w", eventID, status.ErrInvalidRequest)
	}

	return s.initialize(ctx, &models.PaymentIntent{
		UserID:      userID,
		Context:     models.PaymentContextTicket,
		ContextRef:  eventID,
		AmountMinor: event.TicketPriceMinor,
	}, models.IntentMetadata{Email: email})
}

func (s *PaymentService) InitializeMembership(ctx context.Context, userID, email, plan, interval string) (*Checkout, error) {
	amount, _, err := s.memberships.Quote(plan, interval)
	if err != nil {
		return nil, err
	}

	return s.initialize(ctx, &models.PaymentIntent{
		UserID:      userID,
		Context:     models.PaymentContextMembership,
		ContextRef:  plan,
		AmountMinor: amount,
	}, models.IntentMetadata{Email: email, Plan: plan, Interval: interval})
}

func (s *PaymentService) InitializeCoins(ctx context.Context, userID, email string, coins int64) (*Checkout, error) {
	if coins <= 0 {
		return nil, fmt.Errorf("coins must be positive: %w", status.ErrInvalidRequest)
	}

	return s.initialize(ctx, &models.PaymentIntent{
		UserID:      userID,
		Context:     models.PaymentContextCoins,
		AmountMinor: coins * s.cfg.CoinValueMinor,
	}, models.IntentMetadata{Email: email, Coins: coins})
}

// initialize stores the pending intent before calling the provider, so a
// webhook can never arrive for an unknown reference. A provider failure marks
// the intent failed.
func (s *PaymentService) initialize(ctx context.Context, intent *models.PaymentIntent, meta models.IntentMetadata) (*Checkout, error) {
	provider, err := s.gateways.Primary()
	if err != nil {
		return nil, err
	}

	ref, err := utils.PaymentReference(s.cfg.RefPrefix, s.now())
	if err != nil {
		return nil, err
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode intent metadata: %w", err)
	}

	intent.ID = uuid.NewString()
	intent.Provider = provider.Name()
	intent.ProviderRef = ref
	intent.Status = models.PaymentStatusPending
	intent.Metadata = types.JSONRaw(rawMeta)
	intent.Created = types.NowDateTime()

	if err := store.InsertIntent(ctx, s.store.DB(), intent); err != nil {
		return nil, err
	}

	checkout, err := provider.Initialize(ctx, &gateway.InitRequest{
		Email:       meta.Email,
		AmountMinor: intent.AmountMinor,
		Reference:   ref,
		CallbackURL: s.cfg.CallbackURL,
		Metadata: map[string]any{
			"user_id":     intent.UserID,
			"context":     intent.Context,
			"context_ref": intent.ContextRef,
		},
	})
	if err != nil {
		reason := "provider initialize failed"
		if errors.Is(err, status.ErrProviderTimeout) {
			reason = "provider timeout"
		}
		// the request context may already be done
		if _, ferr := store.MarkIntentFailed(context.WithoutCancel(ctx), s.store.DB(), intent.ID, reason); ferr != nil {
			s.logger.Error("failed to mark intent failed", "error", ferr, "reference", ref)
		}
		intent.Status = models.PaymentStatusFailed
		intent.FailureReason = reason
		s.logger.Warn("payment initialize failed", "error", err, "reference", ref, "context", intent.Context)
		return nil, err
	}

	s.logger.Info("payment initialized",
		"reference", ref, "user_id", intent.UserID, "context", intent.Context, "amount_minor", intent.AmountMinor)

	return &Checkout{
		Reference:        ref,
		AuthorizationURL: checkout.AuthorizationURL,
		AmountMinor:      intent.AmountMinor,
		Intent:           intent,
	}, nil
}
