package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fanzone-tickets/internal/status"
	"fanzone-tickets/internal/store"
	"fanzone-tickets/models"
	"fanzone-tickets/monitoring"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/tools/types"
)

// WalletService moves coins. Every balance change writes a ledger row in the
// same transaction.
type WalletService struct {
	store  *store.Store
	logger *slog.Logger
}

func NewWalletService(st *store.Store, logger *slog.Logger) *WalletService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WalletService{store: st, logger: logger}
}

func (s *WalletService) Credit(ctx context.Context, userID string, amount int64, reason, refID string) (*models.WalletTransaction, error) {
	var tx *models.WalletTransaction
	err := s.store.RunInTx(ctx, func(db dbx.Builder) error {
		var err error
		tx, err = s.CreditTx(ctx, db, userID, amount, reason, refID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// CreditTx credits inside an existing transaction. Repeating a credit with the
// same reason and refID returns status.ErrAlreadyApplied and leaves the
// balance untouched.
func (s *WalletService) CreditTx(ctx context.Context, db dbx.Builder, userID string, amount int64, reason, refID string) (*models.WalletTransaction, error) {
	tx, err := s.newTransaction(userID, amount, models.WalletCredit, reason, refID)
	if err != nil {
		return nil, err
	}

	if err := store.InsertWalletTransaction(ctx, db, tx); err != nil {
		return nil, err
	}
	if err := store.AddToBalance(ctx, db, userID, amount, tx.Created); err != nil {
		return nil, err
	}

	monitoring.TrackWalletMovement(models.WalletCredit, reason)
	s.logger.Info("wallet credited", "user_id", userID, "amount", amount, "reason", reason, "ref_id", refID)
	return tx, nil
}

func (s *WalletService) Debit(ctx context.Context, userID string, amount int64, reason, refID string) (*models.WalletTransaction, error) {
	var tx *models.WalletTransaction
	err := s.store.RunInTx(ctx, func(db dbx.Builder) error {
		var err error
		tx, err = s.DebitTx(ctx, db, userID, amount, reason, refID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// DebitTx debits inside an existing transaction. The balance update is
// conditional so concurrent debits can never take it below zero; on
// status.ErrInsufficientBalance the caller must roll back.
func (s *WalletService) DebitTx(ctx context.Context, db dbx.Builder, userID string, amount int64, reason, refID string) (*models.WalletTransaction, error) {
	tx, err := s.newTransaction(userID, amount, models.WalletDebit, reason, refID)
	if err != nil {
		return nil, err
	}

	ok, err := store.SubtractFromBalance(ctx, db, userID, amount, tx.Created)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, status.ErrInsufficientBalance
	}
	if err := store.InsertWalletTransaction(ctx, db, tx); err != nil {
		return nil, err
	}

	monitoring.TrackWalletMovement(models.WalletDebit, reason)
	s.logger.Info("wallet debited", "user_id", userID, "amount", amount, "reason", reason, "ref_id", refID)
	return tx, nil
}

// RefundTx credits amount back against the refID of the original debit.
func (s *WalletService) RefundTx(ctx context.Context, db dbx.Builder, userID string, amount int64, debitRefID string) (*models.WalletTransaction, error) {
	return s.CreditTx(ctx, db, userID, amount, models.ReasonRefund, debitRefID)
}

// Balance returns zero for users without a wallet row.
func (s *WalletService) Balance(ctx context.Context, userID string) (int64, error) {
	w, err := store.FindWallet(ctx, s.store.DB(), userID)
	if errors.Is(err, status.ErrWalletNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

func (s *WalletService) History(ctx context.Context, userID string, limit int64) ([]*models.WalletTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return store.WalletHistory(ctx, s.store.DB(), userID, limit)
}

func (s *WalletService) newTransaction(userID string, amount int64, txType, reason, refID string) (*models.WalletTransaction, error) {
	if userID == "" || reason == "" || refID == "" {
		return nil, fmt.Errorf("wallet %s: user, reason and ref are required: %w", txType, status.ErrInvalidRequest)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("wallet %s: amount must be positive: %w", txType, status.ErrInvalidRequest)
	}
	return &models.WalletTransaction{
		ID:      uuid.NewString(),
		UserID:  userID,
		Amount:  amount,
		Type:    txType,
		Reason:  reason,
		RefID:   refID,
		Status:  models.WalletTxCompleted,
		Created: types.NowDateTime(),
	}, nil
}
