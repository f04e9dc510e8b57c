package schema_test

import (
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pianohacker/qualia/internal/schema"
)

func Test_Ensure_CreatesTables_When_StoreIsNew(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "qualia.sqlite")

	db, err := schema.Open(t.Context(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := schema.Ensure(t.Context(), db); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	for _, table := range []string{"objects", "properties", "tokens", "checkpoints", "meta"} {
		var count int
		err := db.QueryRowContext(t.Context(),
			`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&count)
		if err != nil {
			t.Fatalf("check table %q: %v", table, err)
		}
		if count != 1 {
			t.Fatalf("table %q missing after Ensure", table)
		}
	}
}

func Test_Ensure_IsIdempotent_AcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "qualia.sqlite")

	db, err := schema.Open(t.Context(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := schema.Ensure(t.Context(), db); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := schema.Open(t.Context(), path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = db2.Close() }()

	if err := schema.Ensure(t.Context(), db2); err != nil {
		t.Fatalf("ensure on reopen: %v", err)
	}
}

func Test_Ensure_FailsWithSchemaMismatch_When_VersionStampUnknown(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "qualia.sqlite")

	db, err := schema.Open(t.Context(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := schema.Ensure(t.Context(), db); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	_, err = db.ExecContext(t.Context(), `UPDATE meta SET value = '999' WHERE key = 'schema_version'`)
	if err != nil {
		t.Fatalf("tamper with version: %v", err)
	}

	err = schema.Ensure(t.Context(), db)
	if !errors.Is(err, schema.ErrSchemaMismatch) {
		t.Fatalf("err = %v, want ErrSchemaMismatch", err)
	}
}
