// Package sqlite is the SQLite-backed store for vehicle documents, statistics, cached
// repair descriptions, reports and the credit ledger.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS vehicles (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	year       INTEGER NOT NULL,
	make       TEXT NOT NULL COLLATE NOCASE,
	model      TEXT NOT NULL COLLATE NOCASE,
	document   TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE (year, make, model)
);
CREATE INDEX IF NOT EXISTS idx_vehicles_make_model ON vehicles(make, model);

CREATE TABLE IF NOT EXISTS stats (
	key          TEXT PRIMARY KEY,
	value        INTEGER NOT NULL,
	category     TEXT DEFAULT '',
	description  TEXT DEFAULT '',
	last_updated DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS repair_descriptions (
	slug        TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	email      TEXT NOT NULL UNIQUE COLLATE NOCASE,
	credits    INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id        INTEGER NOT NULL REFERENCES users(id),
	amount         INTEGER NOT NULL,
	type           TEXT NOT NULL,
	description    TEXT DEFAULT '',
	balance_before INTEGER NOT NULL,
	balance_after  INTEGER NOT NULL,
	metadata       TEXT DEFAULT '{}',
	created_at     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, created_at);

CREATE TABLE IF NOT EXISTS reports (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid         TEXT NOT NULL UNIQUE,
	user_id      INTEGER REFERENCES users(id),
	session_uuid TEXT DEFAULT '',
	tier         TEXT NOT NULL,
	year         INTEGER NOT NULL,
	make         TEXT NOT NULL,
	model        TEXT NOT NULL,
	mileage      INTEGER NOT NULL,
	params       TEXT DEFAULT '{}',
	status       TEXT NOT NULL,
	result       TEXT,
	error        TEXT DEFAULT '',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL,
	completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status, id);
`

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers; every multi-statement change runs in a tx.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
