//go:build windows

package audit

// checkDiskSpace on Windows returns nil as disk space checking
// is not implemented for Windows. Access log writes proceed without
// disk space verification.
func (l *Logger) checkDiskSpace() error {
	return nil
}
