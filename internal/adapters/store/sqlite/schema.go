// SQLite schema for the authoritative ledger deployment.
package sqlite

// Migrations returns the schema migration statements. Each string is a
// single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// One row per account; balance is denormalized from the
		// transaction log and checked against it by Reconcile.
		`CREATE TABLE IF NOT EXISTS accounts (
			account_id  TEXT PRIMARY KEY,
			balance     INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			frozen      INTEGER NOT NULL DEFAULT 0,
			updated_at  TEXT NOT NULL
		)`,

		// Append-only transaction log. No UPDATE or DELETE is ever issued
		// against this table.
		`CREATE TABLE IF NOT EXISTS transactions (
			id              TEXT PRIMARY KEY,
			account_id      TEXT NOT NULL REFERENCES accounts(account_id),
			delta           INTEGER NOT NULL,
			reason          TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			event_id        TEXT NOT NULL DEFAULT '',
			song_id         TEXT NOT NULL DEFAULT '',
			idempotency_key TEXT,
			created_at      TEXT NOT NULL
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_idempotency
			ON transactions(idempotency_key) WHERE idempotency_key IS NOT NULL`,

		`CREATE INDEX IF NOT EXISTS idx_transactions_account
			ON transactions(account_id, created_at)`,

		// One row per (event, normalized song identity).
		`CREATE TABLE IF NOT EXISTS song_aggregates (
			id            TEXT PRIMARY KEY,
			event_id      TEXT NOT NULL,
			key           TEXT NOT NULL,
			title         TEXT NOT NULL,
			artist        TEXT NOT NULL,
			total_tokens  INTEGER NOT NULL DEFAULT 0 CHECK (total_tokens >= 0),
			bidder_count  INTEGER NOT NULL DEFAULT 0,
			first_seen_at TEXT NOT NULL,
			UNIQUE (event_id, key)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_song_aggregates_event
			ON song_aggregates(event_id)`,

		// Immutable bid audit trail; bidder_count is recomputed from it.
		`CREATE TABLE IF NOT EXISTS bid_records (
			id         TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			song_id    TEXT NOT NULL REFERENCES song_aggregates(id),
			amount     INTEGER NOT NULL CHECK (amount > 0),
			created_at TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_bid_records_song
			ON bid_records(song_id)`,
	}
}
