//go:build !windows

package daemon

import (
	"fmt"
	"os"
	"syscall"
)

// Lock represents the global daemon lock, held by a single daemon instance
// at a time so that two daemons never race for the same IPC endpoint or
// library databases.
type Lock struct {
	file *os.File
}

// AcquireLock attempts to acquire the global daemon lock non-blockingly,
// via an advisory flock on a dedicated lock file. A flock belongs to the
// open file, so a second AcquireLock fails even from the same process;
// the lock is released when the file is closed.
func AcquireLock() (*Lock, error) {
	path, err := lockPath()
	if err != nil {
		return nil, fmt.Errorf("daemon: computing lock path: %w", err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("daemon: opening lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		return nil, fmt.Errorf("daemon: another daemon instance holds the lock: %w", err)
	}

	return &Lock{file: file}, nil
}

// Release releases the daemon lock.
func (l *Lock) Release() error {
	unlockSpec := syscall.Flock_t{
		Type:   syscall.F_UNLCK,
		Whence: int16(os.SEEK_SET),
		Start:  0,
		Len:    0,
	}
	if err := syscall.FcntlFlock(l.file.Fd(), syscall.F_SETLK, &unlockSpec); err != nil {
		l.file.Close()
		return fmt.Errorf("daemon: unlocking lock file: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("daemon: closing lock file: %w", err)
	}
	return nil
}
