// Package storetest opens throwaway SQLite databases migrated with the
// production schema.
package storetest

import (
	"path/filepath"
	"testing"

	"fanzone-tickets/internal/store"

	"github.com/pocketbase/dbx"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// New returns a migrated store backed by a file in t.TempDir(). Writes go
// through a single connection, like the PocketBase non-concurrent pool.
func New(t testing.TB) *store.Store {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "data.db") + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	db, err := dbx.Open("sqlite", dsn)
	require.NoError(t, err)

	db.DB().SetMaxOpenConns(1)
	db.DB().SetMaxIdleConns(1)

	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, store.Migrate(db))

	return store.New(db)
}
