package vault

import "errors"

// Sentinel errors returned by vault operations. WrongPassword and
// IntegrityMismatch are distinguished here for audit logging only;
// user-facing surfaces must collapse both to a generic access denied.
var (
	// ErrNotFound indicates the file to protect does not exist.
	ErrNotFound = errors.New("vault: file not found")

	// ErrAlreadyProtected indicates the path already has protection metadata.
	ErrAlreadyProtected = errors.New("vault: file is already protected")

	// ErrNotProtected indicates no protection metadata exists for the path.
	ErrNotProtected = errors.New("vault: file is not protected")

	// ErrWrongPassword indicates authenticated decryption failed with the
	// derived key.
	ErrWrongPassword = errors.New("vault: wrong password")

	// ErrIntegrityMismatch indicates decryption succeeded but the plaintext
	// hash disagrees with the stored metadata hash.
	ErrIntegrityMismatch = errors.New("vault: integrity mismatch")

	// ErrIO wraps read/write failures during vault operations.
	ErrIO = errors.New("vault: i/o error")

	// ErrNotInitialized indicates no salt exists for this installation.
	ErrNotInitialized = errors.New("vault: not initialized")

	// ErrAlreadyInitialized indicates a salt already exists.
	ErrAlreadyInitialized = errors.New("vault: already initialized")

	// ErrCooldownActive indicates too many failed unlock attempts; the
	// caller must wait before retrying.
	ErrCooldownActive = errors.New("vault: cooldown period active")
)

// errorKind maps a vault error to the internal failure kind recorded in
// the access log.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrAlreadyProtected):
		return "AlreadyProtected"
	case errors.Is(err, ErrNotProtected):
		return "NotProtected"
	case errors.Is(err, ErrWrongPassword):
		return "WrongPassword"
	case errors.Is(err, ErrIntegrityMismatch):
		return "IntegrityMismatch"
	case errors.Is(err, ErrCooldownActive):
		return "CooldownActive"
	case errors.Is(err, ErrNotInitialized):
		return "NotInitialized"
	case errors.Is(err, ErrIO):
		return "IOError"
	default:
		return "IOError"
	}
}
