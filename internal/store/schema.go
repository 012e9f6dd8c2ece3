package store

import (
	"fmt"

	"github.com/pocketbase/dbx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ticket_events (
		id                   TEXT PRIMARY KEY NOT NULL,
		title                TEXT NOT NULL,
		venue                TEXT NOT NULL DEFAULT '',
		event_date           TEXT NOT NULL DEFAULT '',
		status               TEXT NOT NULL DEFAULT 'active',
		ticket_price_minor   INTEGER NOT NULL DEFAULT 0,
		capacity             INTEGER NOT NULL DEFAULT 0,
		current_reservations INTEGER NOT NULL DEFAULT 0,
		CHECK (current_reservations <= capacity)
	)`,
	`CREATE TABLE IF NOT EXISTS payment_intents (
		id             TEXT PRIMARY KEY NOT NULL,
		user_id        TEXT NOT NULL,
		context        TEXT NOT NULL,
		context_ref    TEXT NOT NULL DEFAULT '',
		provider       TEXT NOT NULL,
		provider_ref   TEXT NOT NULL,
		amount_minor   INTEGER NOT NULL,
		status         TEXT NOT NULL DEFAULT 'pending',
		metadata       TEXT NOT NULL DEFAULT '{}',
		provider_data  TEXT NOT NULL DEFAULT '{}',
		failure_reason TEXT NOT NULL DEFAULT '',
		paid_at        TEXT NOT NULL DEFAULT '',
		created        TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_intents_provider_ref ON payment_intents (provider_ref)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id                TEXT PRIMARY KEY NOT NULL,
		event_id          TEXT NOT NULL,
		user_id           TEXT NOT NULL,
		payment_intent_id TEXT NOT NULL DEFAULT '',
		paid_coins        INTEGER NOT NULL DEFAULT 0,
		token_hash        TEXT NOT NULL DEFAULT '',
		token_prefix      TEXT NOT NULL DEFAULT '',
		token_expires_at  TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL DEFAULT 'unused',
		admitted_at       TEXT NOT NULL DEFAULT '',
		created           TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_tickets_payment_intent ON tickets (payment_intent_id) WHERE payment_intent_id != ''`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_tickets_one_unused ON tickets (event_id, user_id) WHERE status = 'unused'`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_token_prefix ON tickets (token_prefix)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_user ON tickets (user_id)`,
	`CREATE TABLE IF NOT EXISTS scan_logs (
		id                 TEXT PRIMARY KEY NOT NULL,
		ticket_id          TEXT NULL,
		event_id           TEXT NOT NULL DEFAULT '',
		operator_id        TEXT NOT NULL,
		result             TEXT NOT NULL,
		reason             TEXT NOT NULL DEFAULT '',
		device_fingerprint TEXT NOT NULL DEFAULT '',
		location_hint      TEXT NOT NULL DEFAULT '',
		scanned_at         TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scan_logs_event ON scan_logs (event_id, scanned_at)`,
	`CREATE TABLE IF NOT EXISTS wallet_accounts (
		user_id TEXT PRIMARY KEY NOT NULL,
		balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		updated TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS wallet_transactions (
		id      TEXT PRIMARY KEY NOT NULL,
		user_id TEXT NOT NULL,
		amount  INTEGER NOT NULL CHECK (amount > 0),
		type    TEXT NOT NULL,
		reason  TEXT NOT NULL,
		ref_id  TEXT NOT NULL,
		status  TEXT NOT NULL,
		created TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_wallet_transactions_movement ON wallet_transactions (user_id, type, reason, ref_id)`,
	`CREATE TABLE IF NOT EXISTS memberships (
		user_id                TEXT PRIMARY KEY NOT NULL,
		tier_code              TEXT NOT NULL,
		started_at             TEXT NOT NULL,
		expires_at             TEXT NOT NULL,
		status                 TEXT NOT NULL,
		total_months_purchased INTEGER NOT NULL DEFAULT 0,
		last_payment_ref       TEXT NOT NULL DEFAULT ''
	)`,
}

var tables = []string{
	"memberships",
	"wallet_transactions",
	"wallet_accounts",
	"scan_logs",
	"tickets",
	"payment_intents",
	"ticket_events",
}

// Migrate creates the ticketing tables. It is safe to run more than once.
func Migrate(db dbx.Builder) error {
	for _, stmt := range schema {
		if _, err := db.NewQuery(stmt).Execute(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func Drop(db dbx.Builder) error {
	for _, t := range tables {
		if _, err := db.NewQuery("DROP TABLE IF EXISTS " + t).Execute(); err != nil {
			return fmt.Errorf("drop %s: %w", t, err)
		}
	}
	return nil
}
