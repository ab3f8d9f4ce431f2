// Package store provides the SQLite-backed record store and value ledger.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/pledge/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS protocol (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	authority    TEXT    NOT NULL,
	treasury     TEXT    NOT NULL,
	fee_rate_bps INTEGER NOT NULL,
	total_loans  INTEGER NOT NULL DEFAULT 0,
	total_volume INTEGER NOT NULL DEFAULT 0,
	version      INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS loans (
	id                        TEXT PRIMARY KEY,
	borrower                  TEXT    NOT NULL,
	lender                    TEXT    NOT NULL,
	collateral_asset          TEXT    NOT NULL,
	loan_amount               INTEGER NOT NULL,
	outstanding_amount        INTEGER NOT NULL,
	interest_rate_bps         INTEGER NOT NULL,
	duration_seconds          INTEGER NOT NULL,
	start_time                INTEGER NOT NULL,
	liquidation_threshold_bps INTEGER NOT NULL,
	status                    TEXT    NOT NULL,
	version                   INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_loans_status ON loans(status);
CREATE INDEX IF NOT EXISTS idx_loans_borrower ON loans(borrower);
CREATE INDEX IF NOT EXISTS idx_loans_lender ON loans(lender);

CREATE TABLE IF NOT EXISTS vaults (
	id               TEXT PRIMARY KEY,
	loan_id          TEXT NOT NULL UNIQUE REFERENCES loans(id),
	collateral_asset TEXT NOT NULL,
	authority        TEXT NOT NULL,
	version          INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS auctions (
	id               TEXT PRIMARY KEY,
	loan_id          TEXT    NOT NULL UNIQUE REFERENCES loans(id),
	collateral_asset TEXT    NOT NULL,
	starting_price   INTEGER NOT NULL,
	current_bid      INTEGER NOT NULL DEFAULT 0,
	current_bidder   TEXT    NOT NULL DEFAULT '',
	end_time         INTEGER NOT NULL,
	status           TEXT    NOT NULL,
	version          INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_auctions_status ON auctions(status);

CREATE TABLE IF NOT EXISTS bids (
	id         TEXT PRIMARY KEY,
	auction_id TEXT     NOT NULL REFERENCES auctions(id),
	bidder     TEXT     NOT NULL,
	amount     INTEGER  NOT NULL,
	placed_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bids_auction ON bids(auction_id);

CREATE TABLE IF NOT EXISTS accounts (
	address TEXT PRIMARY KEY,
	balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0)
);

CREATE TABLE IF NOT EXISTS assets (
	asset TEXT PRIMARY KEY,
	owner TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT     NOT NULL UNIQUE,
	type        TEXT     NOT NULL,
	data        TEXT     NOT NULL DEFAULT '{}',
	occurred_at DATETIME NOT NULL
);
`

// Store wraps a sql.DB holding every market record.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// Write transactions take the database lock on BEGIN so concurrent
// operations on the same records serialize instead of failing mid-flight.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Update runs fn inside a single transaction. Nothing fn wrote is
// persisted unless fn returns nil and the commit succeeds.
func (s *Store) Update(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := fn(&txn{ctx: ctx, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// View runs fn against the database without a write transaction.
// fn must only read.
func (s *Store) View(ctx context.Context, fn func(Tx) error) error {
	return fn(&txn{ctx: ctx, q: s.conn})
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}

// dbAmount converts an amount to the signed column type.
func dbAmount(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%w: amount %d exceeds storable range", apperr.ErrInvalidInput, v)
	}
	return int64(v), nil
}
