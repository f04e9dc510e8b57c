// Package qualia is a semi-schemaless file metadata store: objects are bags
// of named, tagged Field Values, searchable through a small query language
// and bound to a single-writer checkpoint journal that supports undo.
package qualia

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pianohacker/qualia/internal/schema"
	"github.com/pianohacker/qualia/internal/storelock"
)

// Store is a single open Qualia store file. The zero value is not usable;
// call Open. A Store serves one logical caller at a time: callers must not
// share a Store across goroutines without external synchronization, though
// Store itself guards its backing connection with a mutex so a misbehaving
// caller cannot corrupt it.
type Store struct {
	mu sync.Mutex

	path string
	lock *storelock.Lock
	db   *sql.DB

	// tx is the long-lived transaction backing the store's current dirty
	// state. Every mutation runs inside it; Commit seals it and opens a
	// fresh one; Close rolls it back, discarding anything pending.
	tx *sql.Tx

	// pending accumulates the inverse of every mutation applied since the
	// last Commit, in order. Commit serializes it into a new checkpoints
	// row; Close discards it along with tx's rollback.
	pending []invOp

	nextID int64
	closed bool
}

// Open opens (creating if necessary) the store file at path, taking an
// exclusive lock for the lifetime of the returned Store. It fails with
// ErrBusy if another Store already holds the file, and with
// ErrSchemaMismatch if the file carries a schema_version this code does not
// recognize.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("open: path is empty")
	}

	lock, err := storelock.Acquire(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	ctx := context.Background()

	db, err := schema.Open(ctx, path)
	if err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := schema.Ensure(ctx, db); err != nil {
		_ = db.Close()
		_ = lock.Release()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		_ = db.Close()
		_ = lock.Release()
		return nil, fmt.Errorf("open %s: begin: %w", path, wrapIo(err))
	}

	nextID, err := readNextObjectID(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		_ = db.Close()
		_ = lock.Release()
		return nil, fmt.Errorf("open %s: read id watermark: %w", path, err)
	}

	s := &Store{
		path:   path,
		lock:   lock,
		db:     db,
		tx:     tx,
		nextID: nextID,
	}

	return s, nil
}

// readNextObjectID reads the durable next_object_id watermark from the meta
// table. It is seeded by internal/schema on first creation and only ever
// advances, so ids are never reused even across an undo that removes the
// highest-numbered object.
func readNextObjectID(ctx context.Context, tx *sql.Tx) (int64, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'next_object_id'`).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("%w: missing next_object_id watermark", ErrCorruptData)
	case err != nil:
		return 0, wrapIo(err)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric next_object_id %q", ErrCorruptData, raw)
	}

	return id, nil
}

// persistNextObjectID advances the durable watermark to match s.nextID after
// assigning id. It runs inside the same transaction as the Add that claimed
// id, so the watermark and the inserted row commit or roll back together.
func (s *Store) persistNextObjectID(ctx context.Context, next int64) error {
	_, err := s.tx.ExecContext(ctx,
		`UPDATE meta SET value = ? WHERE key = 'next_object_id'`,
		strconv.FormatInt(next, 10),
	)
	if err != nil {
		return fmt.Errorf("advance id watermark: %w", wrapIo(err))
	}
	return nil
}

// Close rolls back any pending (uncommitted) checkpoint, closes the backing
// connection, and releases the store's exclusive lock. It is safe to call
// more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var rollbackErr, dbErr, lockErr error
	if s.tx != nil {
		rollbackErr = s.tx.Rollback()
	}
	if s.db != nil {
		dbErr = s.db.Close()
	}
	if s.lock != nil {
		lockErr = s.lock.Release()
	}

	switch {
	case rollbackErr != nil:
		return fmt.Errorf("close: rollback: %w", wrapIo(rollbackErr))
	case dbErr != nil:
		return fmt.Errorf("close: %w", wrapIo(dbErr))
	case lockErr != nil:
		return fmt.Errorf("close: %w", lockErr)
	default:
		return nil
	}
}

func (s *Store) checkOpen() error {
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if s.tx == nil {
		// A prior mutation failed fatally mid-transaction and already rolled
		// back; per §4.3's failure semantics the store does not try to
		// repair itself, it just refuses further use until reopened.
		return fmt.Errorf("%w: store is unusable after a prior fatal error", ErrIo)
	}
	return nil
}
