package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fanzone-tickets/internal/services/gateway"
	"fanzone-tickets/internal/status"
	"fanzone-tickets/internal/store"
	"fanzone-tickets/models"
	"fanzone-tickets/monitoring"
	"fanzone-tickets/utils"

	"github.com/pocketbase/pocketbase/tools/types"
)

const (
	OutcomeProcessed        = "processed"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeIgnored          = "ignored"
)

const (
	sourceWebhook = "webhook"
	sourceClient  = "client"
	sourceRetry   = "retry"
)

// Outcome describes what a reconciliation did.
type Outcome struct {
	Status     string                `json:"status"`
	Reference  string                `json:"reference,omitempty"`
	Context    string                `json:"context,omitempty"`
	Ticket     *IssuedTicket         `json:"ticket,omitempty"`
	Membership *models.Membership    `json:"membership,omitempty"`
	Coins      int64                 `json:"coins,omitempty"`
	Intent     *models.PaymentIntent `json:"-"`
}

type ReconcilerConfig struct {
	AmountToleranceMinor int64
	CoinValueMinor       int64
}

// Reconciler turns confirmed provider charges into exactly-once effects.
// The pending -> paid transition of the intent is the idempotency gate.
type Reconciler struct {
	store       *store.Store
	gateways    *gateway.Registry
	tickets     *TicketService
	memberships *MembershipService
	wallet      *WalletService
	notifier    Notifier
	cfg         ReconcilerConfig
	logger      *slog.Logger
}

func NewReconciler(
	st *store.Store,
	gateways *gateway.Registry,
	tickets *TicketService,
	memberships *MembershipService,
	wallet *WalletService,
	notifier Notifier,
	cfg ReconcilerConfig,
	logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if cfg.CoinValueMinor <= 0 {
		cfg.CoinValueMinor = 100
	}
	return &Reconciler{
		store:       st,
		gateways:    gateways,
		tickets:     tickets,
		memberships: memberships,
		wallet:      wallet,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger,
	}
}

// HandleWebhook authenticates and applies a provider notification. Events
// other than a successful charge are acknowledged and ignored.
func (r *Reconciler) HandleWebhook(ctx context.Context, providerName string, header http.Header, body []byte) (*Outcome, error) {
	provider, err := r.gateways.Get(providerName)
	if err != nil {
		return nil, err
	}

	ev, err := provider.ParseWebhook(header, body)
	if err != nil {
		monitoring.TrackWebhook(sourceWebhook, "rejected")
		if errors.Is(err, status.ErrBadSignature) {
			r.logger.Warn("webhook signature mismatch", "provider", providerName)
		}
		return nil, err
	}

	if ev.Type != gateway.ChargeSuccess || ev.Charge == nil || !ev.Charge.Succeeded() {
		monitoring.TrackWebhook(sourceWebhook, OutcomeIgnored)
		r.logger.Info("webhook ignored", "provider", providerName, "event", ev.Type)
		return &Outcome{Status: OutcomeIgnored}, nil
	}

	return r.reconcile(ctx, ev.Charge, sourceWebhook)
}

// VerifyReference handles a reference reported by the client after checkout.
// The provider is asked for the charge state; the client is never trusted.
func (r *Reconciler) VerifyReference(ctx context.Context, userID, reference string) (*Outcome, error) {
	if reference == "" {
		return nil, status.ErrInvalidRequest
	}

	intent, err := store.FindIntentByRef(ctx, r.store.DB(), reference)
	if err != nil {
		return nil, err
	}
	if intent.UserID != userID {
		return nil, status.ErrIntentNotFound
	}
	if !intent.AwaitingCharge() {
		return r.alreadyProcessed(ctx, intent, sourceClient)
	}

	provider, err := r.gateways.Get(intent.Provider)
	if err != nil {
		return nil, err
	}
	charge, err := provider.Verify(ctx, reference)
	if err != nil {
		if errors.Is(err, status.ErrProviderTimeout) {
			r.logger.Warn("provider verify timed out", "reference", reference)
		}
		return nil, err
	}
	if !charge.Succeeded() {
		monitoring.TrackWebhook(sourceClient, "not_paid")
		return nil, fmt.Errorf("charge %s is %q: %w", reference, charge.Status, status.ErrFailedPayment)
	}

	return r.reconcile(ctx, charge, sourceClient)
}

// Retry re-runs the effects of a charged intent whose fulfillment failed.
// Every effect is idempotent, so partially applied work is not repeated.
func (r *Reconciler) Retry(ctx context.Context, reference string) (*Outcome, error) {
	intent, err := store.FindIntentByRef(ctx, r.store.DB(), reference)
	if err != nil {
		return nil, err
	}

	ok, err := store.ReopenFailedIntent(ctx, r.store.DB(), intent.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, status.ErrIntentNotRetryable
	}
	intent.Status = models.PaymentStatusPaid
	intent.FailureReason = ""

	r.logger.Info("retrying fulfillment", "reference", reference, "context", intent.Context)
	return r.dispatch(ctx, intent, intent.AmountMinor, sourceRetry)
}

func (r *Reconciler) reconcile(ctx context.Context, charge *gateway.Charge, source string) (*Outcome, error) {
	intent, err := store.FindIntentByRef(ctx, r.store.DB(), charge.Reference)
	if err != nil {
		monitoring.TrackWebhook(source, "unknown_reference")
		r.logger.Warn("charge for unknown reference", "reference", charge.Reference, "source", source)
		return nil, err
	}

	if !intent.AwaitingCharge() {
		return r.alreadyProcessed(ctx, intent, source)
	}

	if !utils.WithinTolerance(charge.AmountMinor, intent.AmountMinor, r.cfg.AmountToleranceMinor) {
		monitoring.TrackWebhook(source, "amount_mismatch")
		r.logger.Error("charged amount does not match intent",
			"reference", intent.ProviderRef, "expected_minor", intent.AmountMinor, "charged_minor", charge.AmountMinor)
		return nil, status.ErrAmountMismatch
	}

	paidAt := charge.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	paidAtDT, err := types.ParseDateTime(paidAt)
	if err != nil {
		return nil, err
	}

	ok, err := store.MarkIntentPaid(ctx, r.store.DB(), intent.ID, charge.Raw, paidAtDT)
	if err != nil {
		return nil, err
	}
	if !ok {
		// a concurrent delivery won the gate
		fresh, err := store.FindIntentByRef(ctx, r.store.DB(), intent.ProviderRef)
		if err != nil {
			return nil, err
		}
		return r.alreadyProcessed(ctx, fresh, source)
	}
	if intent.Status == models.PaymentStatusFailed {
		r.logger.Warn("charge received for failed intent",
			"reference", intent.ProviderRef, "failure_reason", intent.FailureReason, "source", source)
	}
	intent.Status = models.PaymentStatusPaid
	intent.PaidAt = paidAtDT
	intent.FailureReason = ""

	return r.dispatch(ctx, intent, charge.AmountMinor, source)
}

// dispatch applies the effect of a paid intent. A failure marks the intent
// failed; effects already committed are kept.
func (r *Reconciler) dispatch(ctx context.Context, intent *models.PaymentIntent, paidMinor int64, source string) (*Outcome, error) {
	out := &Outcome{
		Status:    OutcomeProcessed,
		Reference: intent.ProviderRef,
		Context:   intent.Context,
		Intent:    intent,
	}

	var err error
	switch intent.Context {
	case models.PaymentContextTicket:
		out.Ticket, err = r.tickets.IssueForPayment(ctx, intent)

	case models.PaymentContextMembership:
		out.Membership, err = r.memberships.Activate(ctx, intent, paidMinor)

	case models.PaymentContextCoins:
		out.Coins, err = r.creditCoins(ctx, intent)

	default:
		err = status.ErrIntentContextInvalid
	}

	if err != nil {
		r.fail(ctx, intent, err)
		monitoring.TrackWebhook(source, "fulfillment_failed")
		return nil, fmt.Errorf("fulfill %s: %w: %v", intent.ProviderRef, status.ErrFulfillmentFailed, err)
	}

	monitoring.TrackWebhook(source, OutcomeProcessed)
	r.logger.Info("payment reconciled", "reference", intent.ProviderRef, "context", intent.Context, "source", source)
	r.notify(ctx, intent, out)
	return out, nil
}

func (r *Reconciler) creditCoins(ctx context.Context, intent *models.PaymentIntent) (int64, error) {
	meta, err := intent.DecodeMetadata()
	if err != nil {
		return 0, fmt.Errorf("coins: decode metadata: %w", err)
	}
	coins := meta.Coins
	if coins <= 0 {
		coins = intent.AmountMinor / r.cfg.CoinValueMinor
	}

	_, err = r.wallet.Credit(ctx, intent.UserID, coins, models.ReasonCoinPurchase, intent.ProviderRef)
	if errors.Is(err, status.ErrAlreadyApplied) {
		return coins, nil
	}
	return coins, err
}

// fail records a charged-but-not-fulfilled intent for operator follow-up.
func (r *Reconciler) fail(ctx context.Context, intent *models.PaymentIntent, cause error) {
	reason := cause.Error()
	if len(reason) > 500 {
		reason = reason[:500]
	}

	ok, err := store.MarkIntentFailed(context.WithoutCancel(ctx), r.store.DB(), intent.ID, reason, models.PaymentStatusPaid)
	if err != nil {
		r.logger.Error("failed to mark intent failed", "error", err, "reference", intent.ProviderRef)
	}
	if ok {
		intent.Status = models.PaymentStatusFailed
		intent.FailureReason = reason
	}

	monitoring.TrackFulfillmentFailure(intent.Context)
	r.logger.Error("payment charged but not fulfilled",
		"alert", "charged_not_fulfilled",
		"error", cause,
		"reference", intent.ProviderRef,
		"context", intent.Context,
		"user_id", intent.UserID,
		"amount_minor", intent.AmountMinor,
	)
}

// alreadyProcessed answers a replay. For a client verifying its own ticket
// payment the existing ticket is returned so it can request a token.
func (r *Reconciler) alreadyProcessed(ctx context.Context, intent *models.PaymentIntent, source string) (*Outcome, error) {
	monitoring.TrackWebhook(source, OutcomeAlreadyProcessed)

	out := &Outcome{
		Status:    OutcomeAlreadyProcessed,
		Reference: intent.ProviderRef,
		Context:   intent.Context,
		Intent:    intent,
	}
	if source == sourceClient && intent.Context == models.PaymentContextTicket {
		if t, err := store.FindTicketByIntent(ctx, r.store.DB(), intent.ID); err == nil {
			out.Ticket = &IssuedTicket{Ticket: t}
		}
	}
	return out, nil
}

func (r *Reconciler) notify(ctx context.Context, intent *models.PaymentIntent, out *Outcome) {
	n := Notification{Reference: intent.ProviderRef}
	switch {
	case out.Ticket != nil:
		n.Type = NotifyTicketIssued
		n.TicketID = out.Ticket.Ticket.ID
		n.EventID = out.Ticket.Ticket.EventID
	case out.Membership != nil:
		n.Type = NotifyMembershipActivated
		n.TierCode = out.Membership.TierCode
	default:
		n.Type = NotifyCoinsCredited
		n.Coins = out.Coins
	}

	if err := r.notifier.Notify(ctx, intent.UserID, n); err != nil {
		r.logger.Warn("user notification failed", "error", err, "user_id", intent.UserID, "reference", intent.ProviderRef)
	}
}
