// Package lockfile provides file-based mutual exclusion across processes.
//
// A lock is an exclusively-created sibling file containing an opaque
// per-attempt ownership token. Its mere existence signals "locked".
// Acquisition polls with randomized jitter to avoid thundering-herd
// contention, bounded by a maximum wait. Release removes the file only
// while its content still matches the holder's token, so a holder whose
// lock timed out and was re-acquired elsewhere cannot release the new
// owner's lock.
package lockfile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds how long Acquire waits before giving up.
const DefaultTimeout = 5 * time.Second

// Suffix is appended to the protected path to form the lock file path.
const Suffix = ".lock"

// pollBase and pollJitter shape the retry delay: base plus a random
// slice of jitter per attempt.
const (
	pollBase   = 5 * time.Millisecond
	pollJitter = 10 * time.Millisecond
)

// TimeoutError reports that the lock could not be acquired within the
// wait bound. It is retryable: nothing was written.
type TimeoutError struct {
	Path string
	Wait time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out acquiring lock %s after %s", e.Path, e.Wait)
}

// IsTimeout reports whether err is a lock acquisition timeout.
// Uses errors.As to handle wrapped errors.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Lock is a held file lock. Release it exactly once.
type Lock struct {
	path  string
	token string
}

// Acquire takes the lock guarding path, waiting up to timeout.
// The lock file is path + Suffix.
func Acquire(path string, timeout time.Duration) (*Lock, error) {
	lockPath := path + Suffix
	token := uuid.Must(uuid.NewV7()).String()
	deadline := time.Now().Add(timeout)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.WriteString(token)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				// Half-written token: remove our own file so others can proceed.
				os.Remove(lockPath)
				return nil, fmt.Errorf("write lock token to %s: %w", lockPath, errors.Join(werr, cerr))
			}
			return &Lock{path: lockPath, token: token}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create lock file %s: %w", lockPath, err)
		}

		if time.Now().After(deadline) {
			return nil, &TimeoutError{Path: lockPath, Wait: timeout}
		}
		time.Sleep(pollBase + rand.N(pollJitter))
	}
}

// Token returns the opaque ownership token. Exposed for tests.
func (l *Lock) Token() string {
	return l.token
}

// Release removes the lock file if this holder still owns it.
//
// If the file is gone or now carries a different token, ownership has
// moved on; Release logs and returns nil rather than disturbing the
// current holder.
func (l *Lock) Release() error {
	content, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("lock file already gone at release", "path", l.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read lock file %s: %w", l.path, err)
	}

	if string(content) != l.token {
		slog.Warn("lock reacquired by another holder, skipping release", "path", l.path)
		return nil
	}

	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock file %s: %w", l.path, err)
	}
	return nil
}
