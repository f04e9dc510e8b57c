// Package schema owns the SQLite DDL for a Qualia store file and the
// version stamp that guards against opening a store written by incompatible
// code.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// ErrSchemaMismatch reports a store file whose schema_version stamp is not
// one this code understands.
var ErrSchemaMismatch = errors.New("schema mismatch")

// CurrentVersion is the schema_version stamp this code writes to new stores
// and requires of existing ones. Bump it whenever the table layout changes.
const CurrentVersion = 1

// busyTimeoutMillis bounds how long a writer waits behind another
// connection's lock before SQLite reports SQLITE_BUSY.
const busyTimeoutMillis = 5000

// Open opens the SQLite file at path and applies the pragmas the store
// relies on for durability and single-writer serialization. It does not
// create or check the schema; call Ensure for that.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("open schema: path is empty")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open schema: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open schema: ping: %w", err)
	}

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = FULL;
		PRAGMA foreign_keys = ON;
	`, busyTimeoutMillis))
	if err != nil {
		return fmt.Errorf("apply pragmas: %w", err)
	}

	return nil
}

// tableStatements creates every table and index a fresh store needs. Tables
// are additive only: Ensure never drops or alters an existing table, since a
// reopened store must keep whatever objects it already holds.
var tableStatements = []string{
	`CREATE TABLE IF NOT EXISTS objects (
		object_id INTEGER PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS properties (
		object_id   INTEGER NOT NULL REFERENCES objects(object_id),
		name        TEXT NOT NULL,
		value_tag   TEXT NOT NULL,
		value_text  TEXT,
		value_int   INTEGER,
		numeric_key INTEGER,
		date_key    INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_properties_object ON properties(object_id)`,
	`CREATE INDEX IF NOT EXISTS idx_properties_name_numeric ON properties(name, numeric_key)`,
	`CREATE INDEX IF NOT EXISTS idx_properties_name_date ON properties(name, date_key)`,
	`CREATE INDEX IF NOT EXISTS idx_properties_name_text ON properties(name, value_text)`,
	`CREATE TABLE IF NOT EXISTS tokens (
		object_id INTEGER NOT NULL REFERENCES objects(object_id),
		name      TEXT NOT NULL,
		token     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tokens_name_token ON tokens(name, token)`,
	`CREATE INDEX IF NOT EXISTS idx_tokens_object ON tokens(object_id)`,
	`CREATE TABLE IF NOT EXISTS checkpoints (
		seq  INTEGER PRIMARY KEY,
		body BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// Ensure creates the store's tables on first open and validates the
// schema_version stamp on every open thereafter. A stamp this code does not
// recognize fails with ErrSchemaMismatch before any table is touched.
func Ensure(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ensure schema: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	version, found, err := readVersion(ctx, tx)
	if err != nil {
		return fmt.Errorf("ensure schema: read version: %w", err)
	}

	if found {
		if version != CurrentVersion {
			return fmt.Errorf("ensure schema: %w: stamp %d, want %d", ErrSchemaMismatch, version, CurrentVersion)
		}
		return tx.Commit()
	}

	for i, stmt := range tableStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: statement %d: %w", i, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('schema_version', ?)`,
		strconv.Itoa(CurrentVersion),
	)
	if err != nil {
		return fmt.Errorf("ensure schema: stamp version: %w", err)
	}

	// Seed the monotonic object-id watermark so a freshly created store
	// never needs to derive it from table contents. Callers read and advance
	// this row directly; it only ever increases.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('next_object_id', '1')`,
	)
	if err != nil {
		return fmt.Errorf("ensure schema: seed id watermark: %w", err)
	}

	return tx.Commit()
}

func readVersion(ctx context.Context, tx *sql.Tx) (version int, found bool, err error) {
	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'meta'`,
	).Scan(&count)
	if err != nil {
		return 0, false, err
	}
	if count == 0 {
		return 0, false, nil
	}

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, err
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("non-numeric schema_version %q", raw)
	}

	return n, true, nil
}
