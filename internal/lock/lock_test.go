package lock

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/starford/kbpipe/internal/apperr"
)

func TestAcquireTwiceFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".kbpipe.lock")
	l, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Release()

	if _, err := Acquire(path); !errors.Is(err, apperr.ErrLocked) {
		t.Fatalf("second acquire: got %v, want ErrLocked", err)
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".kbpipe.lock")
	l, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
	l2, err := Acquire(path)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	_ = l2.Release()
}
