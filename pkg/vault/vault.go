// Package vault implements credential-derived file protection: files are
// encrypted at rest under a key derived from a human-supplied password
// and atomically replaced with their ciphertext.
//
// On-disk layout of the vault directory (0700, owner only):
//
//	vault.salt  raw 16-byte KDF salt, generated once per installation
//	log.key     random seed for the access log HMAC chain
//	state.json  failed-unlock cooldown state
//	meta/       one JSON metadata record per protected path
//	log/        append-only access log (JSONL)
//
// The protected file itself lives at its original path with owner-read-only
// permission; its metadata record is the authority on whether a path is
// protected. Every operation, including refused ones, is appended to the
// access log.
package vault

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/markattarcolgate64/guardianlock/pkg/audit"
	"github.com/markattarcolgate64/guardianlock/pkg/crypto"
)

// Vault directory entries and file modes.
const (
	saltFileName   = "vault.salt"
	logKeyFileName = "log.key"
	stateFileName  = "state.json"
	metaDirName    = "meta"
	logDirName     = "log"

	// UnlockedSuffix is appended to the original path for the side file
	// written by Unlock. The caller owns its lifecycle.
	UnlockedSuffix = ".unlocked"

	dirMode       = 0700
	fileMode      = 0600
	protectedMode = 0400

	logKeyLength = 32
)

// Vault owns encrypt/decrypt of protected files, their metadata and the
// atomic replacement of plaintext with ciphertext.
type Vault struct {
	dir        string
	iterations int
	log        *audit.Logger
	sessionID  string
	now        func() time.Time
}

// Option configures a Vault.
type Option func(*Vault)

// WithIterations overrides the KDF iteration count. Values below the
// crypto package floor are raised to it at derivation time.
func WithIterations(n int) Option {
	return func(v *Vault) { v.iterations = n }
}

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// New creates a Vault rooted at dir. The directory is created on Init.
func New(dir string, opts ...Option) *Vault {
	v := &Vault{
		dir:        dir,
		iterations: crypto.DefaultIterations,
		log:        audit.NewLogger(filepath.Join(dir, logDirName)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Dir returns the guardian directory this vault manages.
func (v *Vault) Dir() string {
	return v.dir
}

// AccessLog exposes the vault's access logger for external consumers
// (status reporting, the session gate, audit inspection).
func (v *Vault) AccessLog() *audit.Logger {
	return v.log
}

// SetSessionID attaches a session identifier to subsequent access log
// entries. Empty means no session (init, verification itself).
func (v *Vault) SetSessionID(id string) {
	v.sessionID = id
}

// Initialized reports whether a salt exists for this installation.
func (v *Vault) Initialized() bool {
	_, err := os.Stat(filepath.Join(v.dir, saltFileName))
	return err == nil
}

// Init creates the vault directory, generates the installation salt and
// the access log chain key. It fails with ErrAlreadyInitialized if a salt
// is already present; a salt is immutable after creation except through
// Rotate.
func (v *Vault) Init() error {
	if v.Initialized() {
		return ErrAlreadyInitialized
	}

	if err := os.MkdirAll(v.dir, dirMode); err != nil {
		return fmt.Errorf("%w: create vault directory: %v", ErrIO, err)
	}
	if err := os.MkdirAll(filepath.Join(v.dir, metaDirName), dirMode); err != nil {
		return fmt.Errorf("%w: create metadata directory: %v", ErrIO, err)
	}

	salt, err := crypto.NewSalt()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(v.dir, saltFileName), salt, fileMode); err != nil {
		return fmt.Errorf("%w: write salt: %v", ErrIO, err)
	}

	logKey := make([]byte, logKeyLength)
	if _, err := crand.Read(logKey); err != nil {
		return fmt.Errorf("%w: generate log key: %v", ErrIO, err)
	}
	if err := os.WriteFile(filepath.Join(v.dir, logKeyFileName), logKey, fileMode); err != nil {
		return fmt.Errorf("%w: write log key: %v", ErrIO, err)
	}

	return v.log.SetChainKey(logKey)
}

// Open primes the vault handle for inspection without performing any
// operation. Audit queries need the log chain key loaded.
func (v *Vault) Open() error {
	_, err := v.open()
	return err
}

// open loads the salt and primes the access logger. Every operation goes
// through here so a vault handle works regardless of which process
// created the installation.
func (v *Vault) open() ([]byte, error) {
	salt, err := os.ReadFile(filepath.Join(v.dir, saltFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("%w: read salt: %v", ErrIO, err)
	}
	if len(salt) != crypto.SaltLength {
		return nil, fmt.Errorf("%w: salt has unexpected length %d", ErrIO, len(salt))
	}

	logKey, err := os.ReadFile(filepath.Join(v.dir, logKeyFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: read log key: %v", ErrIO, err)
	}
	if err := v.log.SetChainKey(logKey); err != nil {
		return nil, err
	}

	return salt, nil
}

// Protect encrypts the file at path under a key derived from password and
// atomically replaces the plaintext with the ciphertext.
//
// The original file is replaced only by the final rename: the ciphertext
// is written to a temporary file in the same directory, fsynced, and its
// permission set to owner-read-only before the rename, so no failure can
// leave the path half-written or half-permissioned. Metadata is persisted
// before the rename; if the rename itself fails the metadata is rolled
// back and the original remains untouched.
func (v *Vault) Protect(path, password string, level Level) (*Metadata, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve path: %v", ErrIO, err)
	}

	meta, err := v.protect(abs, password, level, false)
	if err != nil {
		_ = v.log.LogDenied(audit.SourceCLI, abs, v.sessionID, audit.ActionProtect, errorKind(err))
		return nil, err
	}

	_ = v.log.LogSuccess(audit.ActionProtect, audit.SourceCLI, abs, v.sessionID)
	return meta, nil
}

func (v *Vault) protect(abs, password string, level Level, overwrite bool) (*Metadata, error) {
	salt, err := v.open()
	if err != nil {
		return nil, err
	}

	lock, err := acquirePathLock(v.metaPath(abs) + ".lock")
	if err != nil {
		return nil, err
	}
	defer lock.release()

	if !overwrite {
		if _, err := v.loadMetadata(abs); err == nil {
			return nil, ErrAlreadyProtected
		} else if !errors.Is(err, ErrNotProtected) {
			return nil, err
		}
	}

	plaintext, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: read file: %v", ErrIO, err)
	}

	key := crypto.DeriveKey([]byte(password), salt, v.iterations)
	defer crypto.SecureWipe(key)

	blob, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: encrypt: %v", ErrIO, err)
	}

	meta := &Metadata{
		OriginalPath:       abs,
		ProtectionLevel:    level,
		SHA256:             hashHex(plaintext),
		ProtectedTimestamp: v.now().UTC(),
		ConstitutionFile:   level == LevelMaximum,
	}
	if err := v.saveMetadata(meta); err != nil {
		return nil, err
	}

	// The rename is the only mutation of the original path. A failure
	// here rolls the metadata back so the vault state matches the file.
	if err := atomicWrite(abs, blob, protectedMode); err != nil {
		_ = v.removeMetadata(abs)
		return nil, fmt.Errorf("%w: replace file: %v", ErrIO, err)
	}

	return meta, nil
}

// Plaintext is a handle to decrypted file content. The bytes are also
// written to a side file at Path; the caller is responsible for
// re-protecting the original and removing the side file.
type Plaintext struct {
	Path string
	Data []byte
	Meta *Metadata
}

// Unlock verifies the password by authenticated decryption and, on
// success, writes the plaintext to a side file at <path>.unlocked. The
// protected original is never modified by Unlock. Failed attempts count
// toward the cooldown and every outcome is logged.
func (v *Vault) Unlock(path, password string) (*Plaintext, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve path: %v", ErrIO, err)
	}

	pt, err := v.unlock(abs, password, true)
	if err != nil {
		_ = v.log.LogDenied(audit.SourceCLI, abs, v.sessionID, audit.ActionUnlock, errorKind(err))
		return nil, err
	}

	_ = v.log.LogSuccess(audit.ActionUnlock, audit.SourceCLI, abs, v.sessionID)
	return pt, nil
}

func (v *Vault) unlock(abs, password string, writeSide bool) (*Plaintext, error) {
	salt, err := v.open()
	if err != nil {
		return nil, err
	}

	lock, err := acquirePathLock(v.metaPath(abs) + ".lock")
	if err != nil {
		return nil, err
	}
	defer lock.release()

	if _, err := v.checkCooldown(); err != nil {
		return nil, err
	}

	meta, err := v.loadMetadata(abs)
	if err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: read protected file: %v", ErrIO, err)
	}

	key := crypto.DeriveKey([]byte(password), salt, v.iterations)
	defer crypto.SecureWipe(key)

	plaintext, err := crypto.Decrypt(key, blob)
	if err != nil {
		// Authenticated decryption hides whether the password was close;
		// a wrong key and a damaged blob both land here.
		if _, recordErr := v.recordFailedAttempt(); recordErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to record unlock attempt: %v\n", recordErr)
		}
		return nil, ErrWrongPassword
	}

	if hashHex(plaintext) != meta.SHA256 {
		return nil, ErrIntegrityMismatch
	}

	if err := v.clearLockState(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to clear lock state: %v\n", err)
	}

	pt := &Plaintext{Data: plaintext, Meta: meta}
	if writeSide {
		pt.Path = abs + UnlockedSuffix
		if err := atomicWrite(pt.Path, plaintext, fileMode); err != nil {
			return nil, fmt.Errorf("%w: write unlocked file: %v", ErrIO, err)
		}
	}

	return pt, nil
}

// Reprotect re-encrypts an already-protected path, optionally changing
// its protection level. An empty level keeps the current one. It
// requires a successful unlock first: a party that does not know the
// current password cannot silently rotate the protection.
func (v *Vault) Reprotect(path, password string, level Level) (*Metadata, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve path: %v", ErrIO, err)
	}

	meta, err := v.reprotect(abs, password, level)
	if err != nil {
		_ = v.log.LogDenied(audit.SourceCLI, abs, v.sessionID, audit.ActionProtect, errorKind(err))
		return nil, err
	}

	_ = v.log.LogSuccess(audit.ActionProtect, audit.SourceCLI, abs, v.sessionID)
	return meta, nil
}

func (v *Vault) reprotect(abs, password string, level Level) (*Metadata, error) {
	// Password proof without a side file.
	pt, err := v.unlock(abs, password, false)
	if err != nil {
		return nil, err
	}
	if level == "" {
		level = pt.Meta.ProtectionLevel
	}

	salt, err := v.open()
	if err != nil {
		return nil, err
	}

	lock, err := acquirePathLock(v.metaPath(abs) + ".lock")
	if err != nil {
		return nil, err
	}
	defer lock.release()

	key := crypto.DeriveKey([]byte(password), salt, v.iterations)
	defer crypto.SecureWipe(key)

	blob, err := crypto.Encrypt(key, pt.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: encrypt: %v", ErrIO, err)
	}

	meta := &Metadata{
		OriginalPath:       abs,
		ProtectionLevel:    level,
		SHA256:             hashHex(pt.Data),
		ProtectedTimestamp: v.now().UTC(),
		ConstitutionFile:   level == LevelMaximum,
	}
	if err := v.saveMetadata(meta); err != nil {
		return nil, err
	}
	if err := atomicWrite(abs, blob, protectedMode); err != nil {
		return nil, fmt.Errorf("%w: replace file: %v", ErrIO, err)
	}

	return meta, nil
}

// IsProtected reports whether a metadata record exists for path.
// Detection is by metadata presence, never by content inspection.
func (v *Vault) IsProtected(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	_, err = v.loadMetadata(abs)
	return err == nil
}

// Status returns the metadata of every protected file, sorted by path.
func (v *Vault) Status() ([]*Metadata, error) {
	if _, err := v.open(); err != nil {
		return nil, err
	}
	return v.listMetadata()
}

// VerifyFile checks a protected file's ciphertext is still decryptable
// and matches its recorded hash, without writing anything.
func (v *Vault) VerifyFile(path, password string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: resolve path: %v", ErrIO, err)
	}
	_, err = v.unlock(abs, password, false)
	return err
}
