package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"fanzone-tickets/internal/services/gateway"
	"fanzone-tickets/internal/services/gateway/gatewaytest"
	"fanzone-tickets/internal/services/tokenvault"
	"fanzone-tickets/internal/store"
	"fanzone-tickets/internal/store/storetest"
	"fanzone-tickets/models"

	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type testEnv struct {
	store       *store.Store
	vault       *tokenvault.Vault
	provider    *gatewaytest.Provider
	wallet      *WalletService
	tickets     *TicketService
	memberships *MembershipService
	payments    *PaymentService
	reconciler  *Reconciler
	admission   *AdmissionService
	notifier    *recordingNotifier
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := storetest.New(t)
	vault, err := tokenvault.New("test-token-secret")
	require.NoError(t, err)

	logger := discardLogger()
	provider := gatewaytest.New()
	registry := gateway.NewRegistry()
	registry.Register(provider)

	wallet := NewWalletService(st, logger)
	tickets := NewTicketService(st, vault, wallet, 100, logger)
	memberships := NewMembershipService(st, wallet, MembershipConfig{
		TierPrices:           map[string]int64{"basic": 100000, "pro": 250000, "enterprise": 500000},
		BonusCoinsPerMonth:   100,
		AmountToleranceMinor: 100,
	}, logger)
	notifier := &recordingNotifier{}

	return &testEnv{
		store:       st,
		vault:       vault,
		provider:    provider,
		wallet:      wallet,
		tickets:     tickets,
		memberships: memberships,
		payments: NewPaymentService(st, registry, tickets, memberships, PaymentConfig{
			RefPrefix: "EL", CoinValueMinor: 100,
		}, logger),
		reconciler: NewReconciler(st, registry, tickets, memberships, wallet, notifier, ReconcilerConfig{
			AmountToleranceMinor: 100, CoinValueMinor: 100,
		}, logger),
		admission: NewAdmissionService(st, vault, logger),
		notifier:  notifier,
	}
}

func (e *testEnv) seedEvent(t *testing.T, id string, capacity int, priceMinor int64) {
	t.Helper()
	require.NoError(t, store.InsertEvent(context.Background(), e.store.DB(), &models.Event{
		ID:               id,
		Title:            "Fan Meetup " + id,
		Venue:            "Main Hall",
		Status:           models.EventStatusActive,
		TicketPriceMinor: priceMinor,
		Capacity:         capacity,
	}))
}

func (e *testEnv) fund(t *testing.T, userID string, coins int64) {
	t.Helper()
	_, err := e.wallet.Credit(context.Background(), userID, coins, models.ReasonCoinPurchase, "seed-"+userID)
	require.NoError(t, err)
}

func (e *testEnv) seedIntent(t *testing.T, intent *models.PaymentIntent) *models.PaymentIntent {
	t.Helper()
	if intent.Provider == "" {
		intent.Provider = "paystack"
	}
	if intent.Status == "" {
		intent.Status = models.PaymentStatusPending
	}
	require.NoError(t, store.InsertIntent(context.Background(), e.store.DB(), intent))
	return intent
}

func (e *testEnv) intent(t *testing.T, ref string) *models.PaymentIntent {
	t.Helper()
	intent, err := store.FindIntentByRef(context.Background(), e.store.DB(), ref)
	require.NoError(t, err)
	return intent
}
