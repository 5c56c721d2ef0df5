package manifest

import (
	"github.com/gofrs/flock"

	"github.com/notionmirror/notionmirror/pkg/errors"
)

// Locker guards the manifest against concurrent runs.
type Locker interface {
	// Acquire takes the lock, failing fast with RunAlreadyInProgress when
	// another run holds it.
	Acquire() error
	Release() error
}

// FileLock is an advisory file lock next to the manifest. Two orchestrator
// runs against the same manifest fail fast rather than racing the commit.
type FileLock struct {
	flock *flock.Flock
}

// NewFileLock creates a lock at the given path. The lock file is created on
// the real filesystem -- advisory locks don't exist on the mocked one.
func NewFileLock(path string) *FileLock {
	return &FileLock{flock: flock.New(path)}
}

// Acquire implements Locker.
func (l *FileLock) Acquire() error {
	locked, err := l.flock.TryLock()
	if err != nil {
		return errors.WithContext(err, "acquire run lock")
	}
	if !locked {
		return errors.RunAlreadyInProgress{LockPath: l.flock.Path()}
	}
	return nil
}

// Release implements Locker.
func (l *FileLock) Release() error {
	return l.flock.Unlock()
}
