package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"fanzone-tickets/internal/services"
	"fanzone-tickets/internal/services/gateway"
	"fanzone-tickets/internal/services/gateway/gatewaytest"
	"fanzone-tickets/internal/services/tokenvault"
	"fanzone-tickets/internal/store"
	"fanzone-tickets/internal/store/storetest"
	"fanzone-tickets/models"
	"fanzone-tickets/security"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *store.Store
	provider *gatewaytest.Provider
	wallet   *services.WalletService
	recon    *services.Reconciler
	webhook  *WebhookHandler
	tickets  *TicketHandler
	checkin  *CheckinHandler
	payments *PaymentHandler
	admin    *AdminHandler
	walletH  *WalletHandler
	events   *EventHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := storetest.New(t)
	vault, err := tokenvault.New("handler-test-secret")
	require.NoError(t, err)

	provider := gatewaytest.New()
	registry := gateway.NewRegistry()
	registry.Register(provider)

	wallet := services.NewWalletService(st, logger)
	tickets := services.NewTicketService(st, vault, wallet, 100, logger)
	memberships := services.NewMembershipService(st, wallet, services.MembershipConfig{
		TierPrices:           map[string]int64{"basic": 100000, "pro": 250000},
		BonusCoinsPerMonth:   100,
		AmountToleranceMinor: 100,
	}, logger)
	payments := services.NewPaymentService(st, registry, tickets, memberships, services.PaymentConfig{RefPrefix: "EL"}, logger)
	recon := services.NewReconciler(st, registry, tickets, memberships, wallet, nil, services.ReconcilerConfig{
		AmountToleranceMinor: 100,
	}, logger)
	admission := services.NewAdmissionService(st, vault, logger)

	require.NoError(t, store.InsertEvent(context.Background(), st.DB(), &models.Event{
		ID: "ev-1", Title: "Derby Night", Status: models.EventStatusActive, TicketPriceMinor: 500000, Capacity: 50,
	}))

	return &fixture{
		store:    st,
		provider: provider,
		wallet:   wallet,
		recon:    recon,
		webhook:  NewWebhookHandler(recon, "paystack", logger),
		tickets:  NewTicketHandler(tickets, payments, recon, nil, logger),
		checkin:  NewCheckinHandler(admission, logger),
		payments: NewPaymentHandler(payments, recon, tickets, logger),
		admin:    NewAdminHandler(tickets, recon, admission, logger),
		walletH:  NewWalletHandler(wallet, memberships, logger),
		events:   NewEventHandler(services.NewEventService(st, logger), tickets, logger),
	}
}

func authRecord(id, role string) *core.Record {
	users := core.NewAuthCollection("users")
	users.Fields.Add(&core.TextField{Name: "role"})

	rec := core.NewRecord(users)
	rec.Id = id
	rec.SetEmail(id + "@example.com")
	rec.Set("role", role)
	return rec
}

func newEvent(method, target string, body []byte, auth *core.Record) (*core.RequestEvent, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	e := &core.RequestEvent{}
	e.Request = httptest.NewRequest(method, target, bytes.NewReader(body))
	e.Request.Header.Set("Content-Type", "application/json")
	e.Response = rec
	e.Auth = auth
	return e, rec
}

func jsonBody(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func apiStatus(t *testing.T, err error) int {
	t.Helper()
	var apiErr *router.ApiError
	require.True(t, errors.As(err, &apiErr), "expected an api error, got %v", err)
	return apiErr.Status
}

func (f *fixture) seedTicketIntent(t *testing.T, ref string) {
	t.Helper()
	require.NoError(t, store.InsertIntent(context.Background(), f.store.DB(), &models.PaymentIntent{
		ID: "pi-" + ref, UserID: "u-1", Context: models.PaymentContextTicket, ContextRef: "ev-1",
		Provider: "paystack", ProviderRef: ref, AmountMinor: 500000, Status: models.PaymentStatusPending,
	}))
}

func TestWebhook(t *testing.T) {
	f := newFixture(t)
	f.seedTicketIntent(t, "EL-1700000000-AB12")

	header, body := gatewaytest.Webhook("EL-1700000000-AB12", "success", 500000)

	for _, want := range []string{services.OutcomeProcessed, services.OutcomeAlreadyProcessed} {
		e, rec := newEvent(http.MethodPost, "/webhook", body, nil)
		e.Request.Header.Set("x-paystack-signature", header.Get("x-paystack-signature"))

		require.NoError(t, f.webhook.Receive(e))
		assert.Equal(t, want, decode(t, rec)["status"])
	}

	n, err := store.CountTicketsForEvent(context.Background(), f.store.DB(), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWebhook_Errors(t *testing.T) {
	f := newFixture(t)
	f.seedTicketIntent(t, "EL-1700000000-AB12")

	t.Run("bad signature", func(t *testing.T) {
		_, body := gatewaytest.Webhook("EL-1700000000-AB12", "success", 500000)
		e, _ := newEvent(http.MethodPost, "/webhook", body, nil)
		e.Request.Header.Set("x-paystack-signature", "deadbeef")

		assert.Equal(t, http.StatusUnauthorized, apiStatus(t, f.webhook.Receive(e)))
	})

	t.Run("unknown reference", func(t *testing.T) {
		header, body := gatewaytest.Webhook("EL-1700000000-0000", "success", 500000)
		e, _ := newEvent(http.MethodPost, "/webhook", body, nil)
		e.Request.Header.Set("x-paystack-signature", header.Get("x-paystack-signature"))

		assert.Equal(t, http.StatusNotFound, apiStatus(t, f.webhook.Receive(e)))
	})

	t.Run("amount mismatch", func(t *testing.T) {
		header, body := gatewaytest.Webhook("EL-1700000000-AB12", "success", 100)
		e, _ := newEvent(http.MethodPost, "/webhook", body, nil)
		e.Request.Header.Set("x-paystack-signature", header.Get("x-paystack-signature"))

		assert.Equal(t, http.StatusBadRequest, apiStatus(t, f.webhook.Receive(e)))
	})
}

func TestPurchase_Coin(t *testing.T) {
	f := newFixture(t)
	_, err := f.wallet.Credit(context.Background(), "u-1", 10000, models.ReasonCoinPurchase, "seed")
	require.NoError(t, err)

	req := jsonBody(t, PurchaseRequest{EventID: "ev-1", Method: MethodCoin})

	e, rec := newEvent(http.MethodPost, "/tickets/purchase", req, authRecord("u-1", ""))
	require.NoError(t, f.tickets.Purchase(e))
	out := decode(t, rec)
	assert.NotEmpty(t, out["qrToken"])
	assert.NotNil(t, out["ticket"])

	e, _ = newEvent(http.MethodPost, "/tickets/purchase", req, authRecord("u-1", ""))
	assert.Equal(t, http.StatusConflict, apiStatus(t, f.tickets.Purchase(e)))

	balance, err := f.wallet.Balance(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance)
}

func TestPurchase_Validation(t *testing.T) {
	f := newFixture(t)

	e, _ := newEvent(http.MethodPost, "/tickets/purchase", jsonBody(t, PurchaseRequest{EventID: "ev-1", Method: MethodCoin}), nil)
	assert.Equal(t, http.StatusUnauthorized, apiStatus(t, f.tickets.Purchase(e)))

	e, _ = newEvent(http.MethodPost, "/tickets/purchase", jsonBody(t, PurchaseRequest{EventID: "ev-1", Method: "cash"}), authRecord("u-1", ""))
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, f.tickets.Purchase(e)))

	e, _ = newEvent(http.MethodPost, "/tickets/purchase", jsonBody(t, PurchaseRequest{EventID: "ev-1", Method: MethodCoin}), authRecord("u-1", ""))
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, f.tickets.Purchase(e)), "no wallet balance")
}

func TestPurchase_PaystackRoundTrip(t *testing.T) {
	f := newFixture(t)
	user := authRecord("u-1", "")

	e, rec := newEvent(http.MethodPost, "/tickets/purchase", jsonBody(t, PurchaseRequest{EventID: "ev-1", Method: MethodPaystack}), user)
	require.NoError(t, f.tickets.Purchase(e))
	checkout := decode(t, rec)
	assert.Equal(t, "5000", checkout["amount"])
	ref, _ := checkout["reference"].(string)
	require.NotEmpty(t, ref)

	// the webhook lands before the client returns from checkout
	header, body := gatewaytest.Webhook(ref, "success", 500000)
	_, err := f.recon.HandleWebhook(context.Background(), "paystack", header, body)
	require.NoError(t, err)

	e, rec = newEvent(http.MethodPost, "/tickets/purchase", jsonBody(t, PurchaseRequest{Method: MethodPaystack, PaymentReference: ref}), user)
	require.NoError(t, f.tickets.Purchase(e))
	out := decode(t, rec)
	assert.NotEmpty(t, out["qrToken"])

	e, _ = newEvent(http.MethodPost, "/tickets/purchase", jsonBody(t, PurchaseRequest{Method: MethodPaystack, PaymentReference: ref}), authRecord("u-2", ""))
	assert.Equal(t, http.StatusNotFound, apiStatus(t, f.tickets.Purchase(e)))
}

func TestCheckin(t *testing.T) {
	f := newFixture(t)
	_, err := f.wallet.Credit(context.Background(), "u-1", 10000, models.ReasonCoinPurchase, "seed")
	require.NoError(t, err)

	e, rec := newEvent(http.MethodPost, "/tickets/purchase", jsonBody(t, PurchaseRequest{EventID: "ev-1", Method: MethodCoin}), authRecord("u-1", ""))
	require.NoError(t, f.tickets.Purchase(e))
	token, _ := decode(t, rec)["qrToken"].(string)
	require.NotEmpty(t, token)

	scanner := authRecord("op-1", security.RoleScanner)
	req := jsonBody(t, CheckinRequest{Token: token, DeviceFingerprint: "gate-a-01", Gate: "A"})

	e, rec = newEvent(http.MethodPost, "/checkin", req, scanner)
	require.NoError(t, f.checkin.Checkin(e))
	out := decode(t, rec)
	assert.Equal(t, "admit", out["result"])
	assert.Equal(t, models.ScanAdmitted, out["outcome"])

	e, rec = newEvent(http.MethodPost, "/checkin", req, scanner)
	require.NoError(t, f.checkin.Checkin(e))
	out = decode(t, rec)
	assert.Equal(t, "reject", out["result"])
	assert.Equal(t, models.ScanDuplicate, out["outcome"])
	assert.NotEmpty(t, out["warnings"])

	e, _ = newEvent(http.MethodPost, "/checkin", jsonBody(t, CheckinRequest{}), scanner)
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, f.checkin.Checkin(e)))

	e, rec = newEvent(http.MethodGet, "/admin/events/ev-1/scans?limit=10", nil, authRecord("op-2", security.RoleAdmin))
	e.Request.SetPathValue("id", "ev-1")
	require.NoError(t, f.admin.ScanHistory(e))
	scans, _ := decode(t, rec)["scans"].([]any)
	assert.Len(t, scans, 2)
}

func TestPaymentsInitializeAndVerify(t *testing.T) {
	f := newFixture(t)
	user := authRecord("u-1", "")

	e, rec := newEvent(http.MethodPost, "/payments/initialize", jsonBody(t, InitializeRequest{Context: models.PaymentContextCoins, Coins: 25}), user)
	require.NoError(t, f.payments.Initialize(e))
	out := decode(t, rec)
	assert.Equal(t, "25", out["amount"])
	ref, _ := out["reference"].(string)

	f.provider.SetCharge(ref, "success", 2500)

	e, rec = newEvent(http.MethodPost, "/payments/verify", jsonBody(t, VerifyRequest{Reference: ref}), user)
	require.NoError(t, f.payments.Verify(e))
	assert.Equal(t, services.OutcomeProcessed, decode(t, rec)["status"])

	e, rec = newEvent(http.MethodGet, "/wallet", nil, user)
	require.NoError(t, f.walletH.Get(e))
	assert.Equal(t, float64(25), decode(t, rec)["balance"])

	e, _ = newEvent(http.MethodPost, "/payments/initialize", jsonBody(t, InitializeRequest{Context: "ticket"}), user)
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, f.payments.Initialize(e)))
}

func TestAdminRetryPayment(t *testing.T) {
	f := newFixture(t)

	e, _ := newEvent(http.MethodPost, "/admin/payments/EL-1-FFFF/retry", nil, authRecord("op-2", security.RoleAdmin))
	e.Request.SetPathValue("reference", "EL-1-FFFF")
	assert.Equal(t, http.StatusNotFound, apiStatus(t, f.admin.RetryPayment(e)))

	f.seedTicketIntent(t, "EL-1700000000-AB12")
	e, _ = newEvent(http.MethodPost, "/admin/payments/EL-1700000000-AB12/retry", nil, authRecord("op-2", security.RoleAdmin))
	e.Request.SetPathValue("reference", "EL-1700000000-AB12")
	assert.Equal(t, http.StatusConflict, apiStatus(t, f.admin.RetryPayment(e)), "pending intents are not retryable")
}

func TestEvents_CreateListAndClose(t *testing.T) {
	f := newFixture(t)
	admin := authRecord("op-2", security.RoleAdmin)

	e, rec := newEvent(http.MethodPost, "/admin/events", []byte(`{"title":"Cup Final","venue":"North Stand","eventDate":"2026-11-01T18:00:00Z","price":"2500.50","capacity":100}`), admin)
	require.NoError(t, f.events.Create(e))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "2500.5", created["price"])
	assert.Equal(t, float64(2501), created["coinCost"])

	event, err := store.FindEvent(context.Background(), f.store.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(250050), event.TicketPriceMinor)

	e, rec = newEvent(http.MethodGet, "/events", nil, nil)
	require.NoError(t, f.events.List(e))
	listed, _ := decode(t, rec)["events"].([]any)
	assert.Len(t, listed, 2)

	e, rec = newEvent(http.MethodPatch, "/admin/events/"+id, jsonBody(t, EventStatusRequest{Status: models.EventStatusClosed}), admin)
	e.Request.SetPathValue("id", id)
	require.NoError(t, f.events.SetStatus(e))
	assert.Equal(t, models.EventStatusClosed, decode(t, rec)["status"])

	e, rec = newEvent(http.MethodGet, "/events", nil, nil)
	require.NoError(t, f.events.List(e))
	listed, _ = decode(t, rec)["events"].([]any)
	assert.Len(t, listed, 1)

	e, _ = newEvent(http.MethodPost, "/tickets/purchase", jsonBody(t, PurchaseRequest{EventID: id, Method: MethodCoin}), authRecord("u-1", ""))
	assert.Equal(t, http.StatusConflict, apiStatus(t, f.tickets.Purchase(e)))
}

func TestEvents_Validation(t *testing.T) {
	f := newFixture(t)
	admin := authRecord("op-2", security.RoleAdmin)

	e, _ := newEvent(http.MethodPost, "/admin/events", []byte(`{"title":"Gig","price":"0","capacity":10}`), admin)
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, f.events.Create(e)))

	e, _ = newEvent(http.MethodPost, "/admin/events", []byte(`{"title":"Gig","eventDate":"soon","price":"10","capacity":10}`), admin)
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, f.events.Create(e)))

	e, _ = newEvent(http.MethodPatch, "/admin/events/missing", jsonBody(t, EventStatusRequest{Status: models.EventStatusClosed}), admin)
	e.Request.SetPathValue("id", "missing")
	assert.Equal(t, http.StatusNotFound, apiStatus(t, f.events.SetStatus(e)))
}
