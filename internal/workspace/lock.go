package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 200 * time.Millisecond

// Lock is an advisory, cross-process lock for a workspace directory.
//
// The lock file lives next to the workspace, never inside it, so that
// EnsureClean does not delete it.
type Lock struct {
	fl *flock.Flock
}

// NewLock creates the lock guarding dir.
func NewLock(dir string) *Lock {
	return &Lock{fl: flock.New(filepath.Clean(dir) + ".lock")}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.fl.Path()
}

// Acquire blocks until the lock is held or ctx is done.
func (l *Lock) Acquire(ctx context.Context) error {
	if err := ensureParent(l.fl.Path()); err != nil {
		return &WorkspaceError{Op: "lock", Path: l.fl.Path(), Err: err}
	}
	locked, err := l.fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return &WorkspaceError{Op: "lock", Path: l.fl.Path(), Err: err}
	}
	if !locked {
		return &WorkspaceError{Op: "lock", Path: l.fl.Path(), Err: fmt.Errorf("lock not acquired")}
	}
	return nil
}

// TryAcquire takes the lock without waiting and reports whether it succeeded.
func (l *Lock) TryAcquire() (bool, error) {
	if err := ensureParent(l.fl.Path()); err != nil {
		return false, &WorkspaceError{Op: "lock", Path: l.fl.Path(), Err: err}
	}
	return l.fl.TryLock()
}

// Release unlocks. Releasing an unheld lock is a no-op.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}

func ensureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
