package services

import (
	"context"
	"fmt"
	"testing"

	"fanzone-tickets/internal/status"
	"fanzone-tickets/internal/store"
	"fanzone-tickets/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeTicket(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEvent(t, "ev-1", 10, 500000)

	checkout, err := env.payments.InitializeTicket(ctx, "u-1", "fan@example.com", "ev-1")
	require.NoError(t, err)
	assert.Regexp(t, `^EL-\d+-[0-9A-F]{4}$`, checkout.Reference)
	assert.Equal(t, "https://checkout.test/"+checkout.Reference, checkout.AuthorizationURL)
	assert.Equal(t, int64(500000), checkout.AmountMinor)

	intent := env.intent(t, checkout.Reference)
	assert.Equal(t, models.PaymentStatusPending, intent.Status)
	assert.Equal(t, models.PaymentContextTicket, intent.Context)
	assert.Equal(t, "ev-1", intent.ContextRef)
	assert.Equal(t, "paystack", intent.Provider)

	require.Len(t, env.provider.Initialized, 1)
	req := env.provider.Initialized[0]
	assert.Equal(t, "fan@example.com", req.Email)
	assert.Equal(t, int64(500000), req.AmountMinor)

	event, err := store.FindEvent(ctx, env.store.DB(), "ev-1")
	require.NoError(t, err)
	assert.Zero(t, event.CurrentReservations, "no seat is claimed before payment")
}

func TestInitializeTicket_Preconditions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEvent(t, "free", 10, 0)
	env.seedEvent(t, "full", 1, 500)
	env.fund(t, "u-2", 10)
	_, err := env.tickets.PurchaseWithCoins(ctx, "u-2", "full")
	require.NoError(t, err)

	tests := []struct {
		name    string
		eventID string
		want    error
	}{
		{"missing event", "missing", status.ErrEventNotFound},
		{"sold out", "full", status.ErrSoldOut},
		{"no card price", "free", status.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.payments.InitializeTicket(ctx, "u-1", "fan@example.com", tt.eventID)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, env.provider.Initialized)
}

func TestInitializeMembership(t *testing.T) {
	env := newTestEnv(t)

	checkout, err := env.payments.InitializeMembership(context.Background(), "u-1", "fan@example.com", "pro", "quarterly")
	require.NoError(t, err)
	assert.Equal(t, int64(750000), checkout.AmountMinor)

	intent := env.intent(t, checkout.Reference)
	meta, err := intent.DecodeMetadata()
	require.NoError(t, err)
	assert.Equal(t, "pro", meta.Plan)
	assert.Equal(t, "quarterly", meta.Interval)

	_, err = env.payments.InitializeMembership(context.Background(), "u-1", "fan@example.com", "platinum", "monthly")
	assert.ErrorIs(t, err, status.ErrUnknownTierPlan)
}

func TestInitializeCoins(t *testing.T) {
	env := newTestEnv(t)

	checkout, err := env.payments.InitializeCoins(context.Background(), "u-1", "fan@example.com", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), checkout.AmountMinor)

	meta, err := env.intent(t, checkout.Reference).DecodeMetadata()
	require.NoError(t, err)
	assert.Equal(t, int64(50), meta.Coins)

	_, err = env.payments.InitializeCoins(context.Background(), "u-1", "fan@example.com", 0)
	assert.ErrorIs(t, err, status.ErrInvalidRequest)
}

func TestInitialize_ProviderFailureMarksIntentFailed(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"timeout", fmt.Errorf("paystack initialize: %w", status.ErrProviderTimeout), "provider timeout"},
		{"unavailable", fmt.Errorf("paystack initialize: %w", status.ErrProviderUnavailable), "provider initialize failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.provider.InitErr = tt.err

			_, err := env.payments.InitializeCoins(context.Background(), "u-1", "fan@example.com", 10)
			assert.ErrorIs(t, err, tt.err)

			var intents []*models.PaymentIntent
			require.NoError(t, env.store.DB().Select("*").From("payment_intents").All(&intents))
			require.Len(t, intents, 1)
			assert.Equal(t, models.PaymentStatusFailed, intents[0].Status)
			assert.Equal(t, tt.reason, intents[0].FailureReason)
		})
	}
}
