//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/go-ps"

	"github.com/oshokin/plugin-packager/internal/logger"
)

const (
	// lockSuffix is appended to the destination path to form the lock path.
	lockSuffix = ".lock"

	// lockFilePermissions restricts the lock file to its owner.
	lockFilePermissions = 0o600

	// lockDirPermissions is used when creating the destination directory.
	lockDirPermissions = 0o755

	// lockAttempts bounds the stale-lock recovery loop.
	lockAttempts = 2
)

var (
	// ErrLocked indicates that another packaging run holds the destination.
	ErrLocked = errors.New("destination is locked by another packaging run")
	// ErrLockLost indicates that the lock file was replaced by another run.
	ErrLockLost = errors.New("destination lock is owned by another run")
)

// Lock is a marker file that serialises runs targeting the same archive.
type Lock struct {
	// path is the lock file location.
	path string
	// token is written into the file: the owner PID and a per-lock nonce.
	token string
}

// LockPath returns the lock file used for dest.
func LockPath(dest string) string {
	return filepath.Clean(dest) + lockSuffix
}

// AcquireLock creates the lock for dest. A lock whose owner process is gone is
// stale and replaced. Age only matters when the owner cannot be determined:
// such a lock is replaced once it is older than staleAfter.
func AcquireLock(ctx context.Context, dest string, staleAfter time.Duration) (*Lock, error) {
	path := LockPath(dest)
	token := strconv.Itoa(os.Getpid()) + " " + uuid.NewString()

	if err := os.MkdirAll(filepath.Dir(path), lockDirPermissions); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	for range lockAttempts {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, lockFilePermissions)
		if err == nil {
			_, writeErr := f.WriteString(token)
			closeErr := f.Close()

			if err = errors.Join(writeErr, closeErr); err != nil {
				_ = os.Remove(path)

				return nil, fmt.Errorf("write lock: %w", err)
			}

			return &Lock{path: path, token: token}, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock: %w", err)
		}

		// Released between attempts: retry without touching a lock someone may have just taken.
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			continue
		}

		if !isStaleLock(ctx, path, staleAfter) {
			return nil, fmt.Errorf("%s: %w", path, ErrLocked)
		}

		logger.InfoKV(ctx, "Removing stale lock", "path", path)

		if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale lock: %w", err)
		}
	}

	return nil, fmt.Errorf("%s: %w", path, ErrLocked)
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the lock file if it still holds this lock's token.
// A lock replaced by another run is left in place and ErrLockLost is returned.
func (l *Lock) Release() error {
	contents, err := os.ReadFile(filepath.Clean(l.path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("read lock: %w", err)
	}

	if string(contents) != l.token {
		return fmt.Errorf("%s: %w", l.path, ErrLockLost)
	}

	if err = os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release lock: %w", err)
	}

	return nil
}

// isStaleLock reports whether the lock at path may be replaced. A live owner
// keeps its lock regardless of age.
func isStaleLock(ctx context.Context, path string, staleAfter time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	expired := func() bool {
		age := time.Since(info.ModTime())
		if staleAfter <= 0 || age <= staleAfter {
			return false
		}

		logger.DebugKV(ctx, "Lock with unknown owner is older than its lifetime", "path", path, "age", age)

		return true
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return expired()
	}

	pid, ok := lockOwner(contents)
	if !ok {
		// Being written right now, or garbage.
		return expired()
	}

	if pid == os.Getpid() {
		return false
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		logger.DebugKV(ctx, "Unable to inspect lock owner", "pid", pid, "error", err)

		return expired()
	}

	return process == nil
}

// lockOwner extracts the owner PID from lock contents.
func lockOwner(contents []byte) (int, bool) {
	fields := strings.Fields(string(contents))
	if len(fields) == 0 {
		return 0, false
	}

	pid, err := strconv.Atoi(fields[0])
	if err != nil || pid <= 0 {
		return 0, false
	}

	return pid, true
}
