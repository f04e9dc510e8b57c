package storelock_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pianohacker/qualia/internal/storelock"
)

func Test_Acquire_Succeeds_When_Unlocked(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.sqlite")

	lock, err := storelock.Acquire(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer func() { _ = lock.Release() }()

	if lock.Token == "" {
		t.Fatal("expected a non-empty lock token")
	}
}

func Test_Acquire_FailsWithBusy_When_AlreadyHeld(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.sqlite")

	first, err := storelock.Acquire(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer func() { _ = first.Release() }()

	_, err = storelock.Acquire(path)
	if !errors.Is(err, storelock.ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
}

func Test_Acquire_SucceedsAgain_After_Release(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.sqlite")

	first, err := storelock.Acquire(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	second, err := storelock.Acquire(path)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	defer func() { _ = second.Release() }()
}

func Test_Release_RemovesLockFilesFromDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "store.sqlite")

	lock, err := storelock.Acquire(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	locksDir := filepath.Join(dir, ".locks")
	entries, err := os.ReadDir(locksDir)
	if err != nil {
		t.Fatalf("read locks dir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected lock files while held")
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	entries, err = os.ReadDir(locksDir)
	if err != nil {
		t.Fatalf("read locks dir after release: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no lock files after release, found %v", entries)
	}
}
