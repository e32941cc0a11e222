// Package lock serializes mutating pipeline runs on one repository.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/starford/kbpipe/internal/apperr"
)

// Lock is an exclusive advisory lock on a file.
type Lock struct {
	path string
	fl   *flock.Flock
}

// Acquire takes the lock at path without waiting. When another process holds
// it, Acquire returns apperr.ErrLocked.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("lock: mkdir: %w", err)
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock: %s: %w", path, apperr.ErrLocked)
	}
	return &Lock{path: path, fl: fl}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Release drops the lock. The lock file itself is left in place.
func (l *Lock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("lock: release %s: %w", l.path, err)
	}
	return nil
}
