//go:build windows

package vault

import (
	"fmt"
	"os"
)

// fileLock on Windows relies on the exclusive create of the lock file
// handle; advisory flock semantics are not available. Cross-process
// serialization is weaker here than on POSIX systems.
type fileLock struct {
	f *os.File
}

func acquirePathLock(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: open lock file: %v", ErrIO, err)
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) release() {
	_ = l.f.Close()
}
