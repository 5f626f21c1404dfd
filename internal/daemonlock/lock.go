// Package daemonlock guards against two fuseauthd processes racing over
// the same run directory.
package daemonlock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock is a held single-instance guard; Release gives it up.
type Lock struct {
	fl *flock.Flock
}

// Acquire flocks <runDir>/pid, failing if another fuseauthd instance
// already holds it. The caller is expected to write its own PID into the
// file after acquiring (cmd/fuseauthd's run-state layout step).
func Acquire(runDir string) (*Lock, error) {
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(runDir, "pid")
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("another fuseauthd instance already holds %s", path)
	}
	return &Lock{fl: fl}, nil
}

// Release unlocks the pid file; it does not remove it.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}

// Path is the locked file's path, exposed so the caller can write its PID.
func (l *Lock) Path() string {
	return l.fl.Path()
}
