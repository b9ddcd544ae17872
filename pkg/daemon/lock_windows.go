//go:build windows

package daemon

import "fmt"

// Lock represents the global daemon lock.
type Lock struct {
	path string
}

// AcquireLock is not yet implemented for Windows. Mutagen's equivalent uses
// LockFileEx through a platform-specific locker; sdcore's Windows support
// is out of scope for this pass (see DESIGN.md).
func AcquireLock() (*Lock, error) {
	return nil, fmt.Errorf("daemon: locking is not yet implemented on windows")
}

// Release releases the daemon lock.
func (l *Lock) Release() error {
	return nil
}
