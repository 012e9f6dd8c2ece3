package store

import (
	"context"
	"fmt"

	"fanzone-tickets/internal/status"
	"fanzone-tickets/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/tools/types"
)

// InsertWalletTransaction appends one ledger row. A repeated movement with the
// same user, type, reason and ref returns status.ErrAlreadyApplied.
func InsertWalletTransaction(ctx context.Context, db dbx.Builder, tx *models.WalletTransaction) error {
	_, err := db.Insert("wallet_transactions", dbx.Params{
		"id":      tx.ID,
		"user_id": tx.UserID,
		"amount":  tx.Amount,
		"type":    tx.Type,
		"reason":  tx.Reason,
		"ref_id":  tx.RefID,
		"status":  tx.Status,
		"created": tx.Created,
	}).WithContext(ctx).Execute()
	if isUniqueViolation(err) {
		return status.ErrAlreadyApplied
	}
	if err != nil {
		return fmt.Errorf("insert wallet transaction: %w", err)
	}
	return nil
}

func AddToBalance(ctx context.Context, db dbx.Builder, userID string, amount int64, at types.DateTime) error {
	_, err := db.NewQuery(`
		INSERT INTO wallet_accounts (user_id, balance, updated)
		VALUES ({:user}, {:amount}, {:at})
		ON CONFLICT (user_id) DO UPDATE
		SET balance = balance + excluded.balance, updated = excluded.updated
	`).Bind(dbx.Params{
		"user":   userID,
		"amount": amount,
		"at":     at,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("add to balance: %w", err)
	}
	return nil
}

// SubtractFromBalance debits only when the balance covers the amount.
func SubtractFromBalance(ctx context.Context, db dbx.Builder, userID string, amount int64, at types.DateTime) (bool, error) {
	res, err := db.NewQuery(`
		UPDATE wallet_accounts
		SET balance = balance - {:amount}, updated = {:at}
		WHERE user_id = {:user} AND balance >= {:amount}
	`).Bind(dbx.Params{
		"user":   userID,
		"amount": amount,
		"at":     at,
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("subtract from balance: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return false, fmt.Errorf("subtract from balance: %w", err)
	}
	return n == 1, nil
}

func FindWallet(ctx context.Context, db dbx.Builder, userID string) (*models.WalletAccount, error) {
	var w models.WalletAccount
	err := db.Select("*").
		From("wallet_accounts").
		Where(dbx.HashExp{"user_id": userID}).
		WithContext(ctx).
		One(&w)
	if isNoRows(err) {
		return nil, status.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find wallet: %w", err)
	}
	return &w, nil
}

func FindWalletTransaction(ctx context.Context, db dbx.Builder, userID, txType, reason, refID string) (*models.WalletTransaction, error) {
	var tx models.WalletTransaction
	err := db.Select("*").
		From("wallet_transactions").
		Where(dbx.HashExp{"user_id": userID, "type": txType, "reason": reason, "ref_id": refID}).
		WithContext(ctx).
		One(&tx)
	if isNoRows(err) {
		return nil, status.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find wallet transaction: %w", err)
	}
	return &tx, nil
}

func WalletHistory(ctx context.Context, db dbx.Builder, userID string, limit int64) ([]*models.WalletTransaction, error) {
	txs := []*models.WalletTransaction{}
	err := db.Select("*").
		From("wallet_transactions").
		Where(dbx.HashExp{"user_id": userID}).
		OrderBy("created DESC", "id DESC").
		Limit(limit).
		WithContext(ctx).
		All(&txs)
	if err != nil {
		return nil, fmt.Errorf("wallet history: %w", err)
	}
	return txs, nil
}
