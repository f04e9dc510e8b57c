// Package storelock provides the single-writer exclusivity guard a Store
// takes on its backing file for the lifetime of the open store.
package storelock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	"golang.org/x/sys/unix"
)

// ErrBusy reports that another process (or another open Store in this
// process) already holds the lock.
var ErrBusy = errors.New("busy")

// locksDirName keeps lock files out of the directory holding the store
// file itself, so acquiring/releasing a lock never touches that directory's
// mtime.
const locksDirName = ".locks"

// acquireTimeout bounds how long Acquire waits for a contended lock before
// reporting ErrBusy.
const acquireTimeout = 2 * time.Second

const (
	dirPerms  = 0o755
	filePerms = 0o644
)

// Lock is a held exclusive lock on a store file. The zero value is not
// usable; obtain one from Acquire.
type Lock struct {
	path  string
	file  *os.File
	Token string
}

// Acquire takes the exclusive lock for storePath, the data file a Store is
// about to open. It blocks up to acquireTimeout for a contending holder to
// release before failing with ErrBusy.
func Acquire(storePath string) (*Lock, error) {
	return acquireWithTimeout(storePath, acquireTimeout)
}

func acquireWithTimeout(storePath string, timeout time.Duration) (*Lock, error) {
	dir := filepath.Dir(storePath)
	locksDir := filepath.Join(dir, locksDirName)
	lockPath := filepath.Join(locksDir, filepath.Base(storePath)+".lock")

	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: acquiring lock on %s", ErrBusy, storePath)
		}

		if err := os.MkdirAll(locksDir, dirPerms); err != nil {
			return nil, fmt.Errorf("storelock: create locks dir: %w", err)
		}

		file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, filePerms)
		if err != nil {
			return nil, fmt.Errorf("storelock: open lock file: %w", err)
		}

		var openStat unix.Stat_t
		if err := unix.Fstat(int(file.Fd()), &openStat); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("storelock: fstat lock file: %w", err)
		}

		fd := int(file.Fd())
		done := make(chan error, 1)

		go func() { done <- unix.Flock(fd, unix.LOCK_EX) }()

		select {
		case err := <-done:
			if err != nil {
				_ = file.Close()
				return nil, fmt.Errorf("storelock: flock: %w", err)
			}

			// A concurrent Release between our open and our flock could have
			// removed and recreated this path; verify we still hold the lock
			// on the file this path currently names.
			var pathStat unix.Stat_t
			if err := unix.Stat(lockPath, &pathStat); err != nil || pathStat.Ino != openStat.Ino {
				_ = unix.Flock(fd, unix.LOCK_UN)
				_ = file.Close()
				continue
			}

			token := uuid.NewString()
			owner := fmt.Sprintf("pid=%d token=%s\n", os.Getpid(), token)
			if err := atomic.WriteFile(lockPath+".owner", strings.NewReader(owner)); err != nil {
				_ = unix.Flock(fd, unix.LOCK_UN)
				_ = file.Close()
				return nil, fmt.Errorf("storelock: write owner sidecar: %w", err)
			}

			return &Lock{path: lockPath, file: file, Token: token}, nil

		case <-time.After(remaining):
			_ = file.Close()
			return nil, fmt.Errorf("%w: acquiring lock on %s", ErrBusy, storePath)
		}
	}
}

// Release drops the lock and removes its lock file and owner sidecar.
// Safe to call once; a released Lock must not be reused.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}

	_ = os.Remove(l.path)
	_ = os.Remove(l.path + ".owner")

	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil {
		return fmt.Errorf("storelock: unlock: %w", unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("storelock: close lock file: %w", closeErr)
	}

	return nil
}
