package journal

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the journal
var ErrLocked = errors.New("journal is locked by another process")

// Lock is an advisory single-writer lock on <journal>.lock
type Lock struct {
	fl *flock.Flock
}

// LockPath returns the lock file used for a journal
func LockPath(journalPath string) string {
	return journalPath + ".lock"
}

// AcquireLock takes the writer lock for journalPath without blocking
func AcquireLock(journalPath string) (*Lock, error) {
	fl := flock.New(LockPath(journalPath))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock journal: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, LockPath(journalPath))
	}
	return &Lock{fl: fl}, nil
}

// Unlock releases the lock. Safe to call on a nil Lock.
func (l *Lock) Unlock() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
