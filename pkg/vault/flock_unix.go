//go:build !windows

package vault

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// fileLock is an exclusive POSIX advisory lock guarding concurrent
// protect/unlock on the same path, in-process and across processes.
type fileLock struct {
	f *os.File
}

// acquirePathLock takes an exclusive flock on the lock file for a
// protected path, blocking until it is available. The caller must call
// release.
func acquirePathLock(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: open lock file: %v", ErrIO, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: acquire lock: %v", ErrIO, err)
	}
	return &fileLock{f: f}, nil
}

// release drops the lock.
func (l *fileLock) release() {
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	_ = l.f.Close()
}
