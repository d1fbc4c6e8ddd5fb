//go:build !windows

package audit

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// checkDiskSpace verifies sufficient disk space for access log writes.
func (l *Logger) checkDiskSpace() error {
	var stat unix.Statfs_t
	if err := unix.Statfs(l.path, &stat); err != nil {
		// If the log directory does not exist yet, check the parent.
		parentDir := filepath.Dir(l.path)
		if err := unix.Statfs(parentDir, &stat); err != nil {
			// Warn but do not block the log write.
			fmt.Fprintf(os.Stderr, "warning: failed to check disk space for access log: %v\n", err)
			return nil
		}
	}

	available := uint64(stat.Bavail) * uint64(stat.Bsize)
	if available < MinLogDiskSpace {
		return fmt.Errorf("audit: insufficient disk space: only %d bytes available, need at least %d",
			available, MinLogDiskSpace)
	}

	return nil
}
