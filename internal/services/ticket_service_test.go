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
	"golang.org/x/sync/errgroup"
)

func TestPurchaseWithCoins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEvent(t, "ev-1", 10, 250) // 3 coins
	env.fund(t, "u-1", 10)

	issued, err := env.tickets.PurchaseWithCoins(ctx, "u-1", "ev-1")
	require.NoError(t, err)

	assert.NotEmpty(t, issued.Token)
	assert.Equal(t, models.TicketStatusUnused, issued.Ticket.Status)
	assert.Equal(t, int64(3), issued.Ticket.PaidCoins)
	assert.True(t, env.vault.Verify(issued.Token, issued.Ticket.TokenHash))
	assert.NotContains(t, issued.Ticket.TokenHash, issued.Token)

	balance, err := env.wallet.Balance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), balance)

	debit, err := store.FindWalletTransaction(ctx, env.store.DB(), "u-1", models.WalletDebit, models.ReasonTicketPurchase, issued.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), debit.Amount)

	event, err := store.FindEvent(ctx, env.store.DB(), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, 1, event.CurrentReservations)
}

func TestPurchaseWithCoins_Preconditions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedEvent(t, "ev-open", 5, 100)
	env.seedEvent(t, "ev-full", 0, 100)
	require.NoError(t, store.InsertEvent(ctx, env.store.DB(), &models.Event{
		ID: "ev-closed", Title: "Closed", Status: models.EventStatusClosed, Capacity: 5, TicketPriceMinor: 100,
	}))
	env.fund(t, "u-1", 100)

	_, err := env.tickets.PurchaseWithCoins(ctx, "u-1", "ev-open")
	require.NoError(t, err)

	tests := []struct {
		name    string
		eventID string
		want    error
	}{
		{"missing event", "ev-missing", status.ErrEventNotFound},
		{"closed event", "ev-closed", status.ErrEventNotActive},
		{"sold out", "ev-full", status.ErrSoldOut},
		{"already holds unused ticket", "ev-open", status.ErrDuplicateTicket},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.tickets.PurchaseWithCoins(ctx, "u-1", tt.eventID)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	balance, err := env.wallet.Balance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(99), balance)
}

func TestPurchaseWithCoins_InsufficientBalanceKeepsSeat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEvent(t, "ev-1", 1, 500)
	env.fund(t, "u-1", 4)

	_, err := env.tickets.PurchaseWithCoins(ctx, "u-1", "ev-1")
	assert.ErrorIs(t, err, status.ErrInsufficientBalance)

	event, err := store.FindEvent(ctx, env.store.DB(), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, 0, event.CurrentReservations)

	n, err := store.CountTicketsForEvent(ctx, env.store.DB(), "ev-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPurchaseWithCoins_LastSeatRace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEvent(t, "ev-1", 1, 500)
	env.fund(t, "u-a", 5)
	env.fund(t, "u-b", 5)

	users := []string{"u-a", "u-b"}
	errs := make([]error, len(users))

	var g errgroup.Group
	for i, u := range users {
		g.Go(func() error {
			_, errs[i] = env.tickets.PurchaseWithCoins(ctx, u, "ev-1")
			return nil
		})
	}
	require.NoError(t, g.Wait())

	winners := 0
	for i, err := range errs {
		balance, berr := env.wallet.Balance(ctx, users[i])
		require.NoError(t, berr)

		if err == nil {
			winners++
			assert.Equal(t, int64(0), balance)
			continue
		}
		assert.ErrorIs(t, err, status.ErrSoldOut)
		assert.Equal(t, int64(5), balance, "the loser keeps their coins")
	}
	assert.Equal(t, 1, winners)
}

func TestPurchaseWithCoins_CapacityUnderLoad(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const capacity, extra = 8, 12
	env.seedEvent(t, "ev-1", capacity, 100)

	errs := make([]error, capacity+extra)
	for i := range errs {
		env.fund(t, fmt.Sprintf("u-%d", i), 1)
	}

	var g errgroup.Group
	for i := range errs {
		g.Go(func() error {
			_, errs[i] = env.tickets.PurchaseWithCoins(ctx, fmt.Sprintf("u-%d", i), "ev-1")
			return nil
		})
	}
	require.NoError(t, g.Wait())

	issued, soldOut := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			issued++
		case assert.ErrorIs(t, err, status.ErrSoldOut):
			soldOut++
		}
	}
	assert.Equal(t, capacity, issued)
	assert.Equal(t, extra, soldOut)

	event, err := store.FindEvent(ctx, env.store.DB(), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, capacity, event.CurrentReservations)
}

func TestIssueForPayment_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEvent(t, "ev-1", 10, 500000)

	intent := env.seedIntent(t, &models.PaymentIntent{
		ID: "pi-1", UserID: "u-1", Context: models.PaymentContextTicket, ContextRef: "ev-1",
		ProviderRef: "EL-1700000000-AB12", AmountMinor: 500000,
	})

	first, err := env.tickets.IssueForPayment(ctx, intent)
	require.NoError(t, err)
	assert.NotEmpty(t, first.Token)
	assert.Equal(t, "pi-1", first.Ticket.PaymentIntentID)

	second, err := env.tickets.IssueForPayment(ctx, intent)
	require.NoError(t, err)
	assert.Equal(t, first.Ticket.ID, second.Ticket.ID)
	assert.Empty(t, second.Token)

	event, err := store.FindEvent(ctx, env.store.DB(), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, 1, event.CurrentReservations)
}

func TestIssueForPayment_WrongContext(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.tickets.IssueForPayment(context.Background(), &models.PaymentIntent{
		ID: "pi-1", Context: models.PaymentContextCoins,
	})
	assert.ErrorIs(t, err, status.ErrIntentContextInvalid)
}

func TestReissueToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEvent(t, "ev-1", 10, 100)
	env.fund(t, "u-1", 1)

	issued, err := env.tickets.PurchaseWithCoins(ctx, "u-1", "ev-1")
	require.NoError(t, err)

	_, err = env.tickets.ReissueToken(ctx, "u-2", issued.Ticket.ID)
	assert.ErrorIs(t, err, status.ErrTicketNotFound, "tickets of other users are invisible")

	rotated, err := env.tickets.ReissueToken(ctx, "u-1", issued.Ticket.ID)
	require.NoError(t, err)
	assert.NotEqual(t, issued.Token, rotated.Token)

	stored, err := store.FindTicket(ctx, env.store.DB(), issued.Ticket.ID)
	require.NoError(t, err)
	assert.True(t, env.vault.Verify(rotated.Token, stored.TokenHash))
	assert.False(t, env.vault.Verify(issued.Token, stored.TokenHash))
}

func TestCancel_RefundsCoinsButKeepsCapacity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEvent(t, "ev-1", 1, 300)
	env.fund(t, "u-1", 3)

	issued, err := env.tickets.PurchaseWithCoins(ctx, "u-1", "ev-1")
	require.NoError(t, err)

	cancelled, err := env.tickets.Cancel(ctx, issued.Ticket.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusCancelled, cancelled.Status)

	balance, err := env.wallet.Balance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), balance)

	event, err := store.FindEvent(ctx, env.store.DB(), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, 1, event.CurrentReservations)

	_, err = env.tickets.PurchaseWithCoins(ctx, "u-1", "ev-1")
	assert.ErrorIs(t, err, status.ErrSoldOut)

	_, err = env.tickets.Cancel(ctx, issued.Ticket.ID, true)
	assert.ErrorIs(t, err, status.ErrTicketNotUnused)
}

func TestListForUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEvent(t, "ev-1", 10, 100)
	env.seedEvent(t, "ev-2", 10, 100)
	env.fund(t, "u-1", 2)

	for _, ev := range []string{"ev-1", "ev-2"} {
		_, err := env.tickets.PurchaseWithCoins(ctx, "u-1", ev)
		require.NoError(t, err)
	}

	tickets, err := env.tickets.ListForUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, tickets, 2)

	tickets, err = env.tickets.ListForUser(ctx, "u-2")
	require.NoError(t, err)
	assert.Empty(t, tickets)
}
