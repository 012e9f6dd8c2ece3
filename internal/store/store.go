// Package store holds the SQL persistence of the ticketing core. Every write that
// touches a contended counter is a single conditional UPDATE.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"fanzone-tickets/models"

	"github.com/pocketbase/dbx"
)

type Store struct {
	db *dbx.DB
}

func New(db *dbx.DB) *Store {
	return &Store{db: db}
}

// DB returns the non-transactional builder.
func (s *Store) DB() dbx.Builder {
	return s.db
}

// RunInTx runs fn inside a single database transaction. fn must only use tx.
func (s *Store) RunInTx(ctx context.Context, fn func(tx dbx.Builder) error) error {
	return s.db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
		return fn(tx)
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.DB().PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func affected(res sql.Result) (int64, error) {
	if res == nil {
		return 0, nil
	}
	return res.RowsAffected()
}

// ActiveEvents lists the events on sale, ordered by date.
func (s *Store) ActiveEvents(ctx context.Context) ([]*models.Event, error) {
	return ActiveEvents(ctx, s.db)
}
