// Package backup provides guardian state backup and restore.
package backup

import "errors"

var (
	// ErrInvalidMagic indicates the file is not a guardian backup.
	ErrInvalidMagic = errors.New("invalid backup file: magic number mismatch")

	// ErrUnsupportedVersion indicates the backup format version is not supported.
	ErrUnsupportedVersion = errors.New("unsupported backup format version")

	// ErrIntegrityFailed indicates the outer HMAC did not verify.
	ErrIntegrityFailed = errors.New("backup integrity check failed: HMAC mismatch")

	// ErrDecryptionFailed indicates a wrong password or corrupted payload.
	ErrDecryptionFailed = errors.New("backup decryption failed: invalid password or corrupted data")

	// ErrTargetInitialized indicates the restore target already holds guardian state.
	ErrTargetInitialized = errors.New("restore target already initialized")

	// ErrEmptyPassword indicates an empty backup password.
	ErrEmptyPassword = errors.New("password cannot be empty")
)
