package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"fanzone-tickets/internal/status"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func TestPurchaseGuard_Acquire(t *testing.T) {
	ctx := context.Background()
	key := "dedup:purchase:u-1:ev-1"

	tests := []struct {
		name   string
		setup  func(mock redismock.ClientMock)
		wantIs error
	}{
		{
			name: "first submission",
			setup: func(mock redismock.ClientMock) {
				mock.ExpectSetNX(key, 1, 10*time.Second).SetVal(true)
			},
		},
		{
			name: "duplicate within window",
			setup: func(mock redismock.ClientMock) {
				mock.ExpectSetNX(key, 1, 10*time.Second).SetVal(false)
			},
			wantIs: status.ErrPurchaseInProgress,
		},
		{
			name: "redis unavailable fails open",
			setup: func(mock redismock.ClientMock) {
				mock.ExpectSetNX(key, 1, 10*time.Second).SetErr(errors.New("connection refused"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := redismock.NewClientMock()
			tt.setup(mock)

			guard := NewPurchaseGuard(db, 10*time.Second, discardLogger())
			err := guard.Acquire(ctx, "u-1", "ev-1")
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPurchaseGuard_Release(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectDel("dedup:purchase:u-1:ev-1").SetVal(1)

	guard := NewPurchaseGuard(db, 0, discardLogger())
	guard.Release(context.Background(), "u-1", "ev-1")

	assert.NoError(t, mock.ExpectationsWereMet())
}
