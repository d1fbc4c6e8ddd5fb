// Package backup snapshots and restores the guardian directory.
//
// A backup captures the installation salt, the access log chain key,
// the per-file protection metadata, and optionally the access log
// itself. The payload is encrypted with AES-256-GCM under a key derived
// from a backup password with a fresh salt, and the whole file is
// covered by an outer HMAC-SHA256 so header tampering is detected
// before any decryption is attempted.
//
// Protected files themselves are not part of a backup: they live at
// their original paths, already encrypted.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/markattarcolgate64/guardianlock/pkg/crypto"
)

// Guardian directory entries captured by a backup.
const (
	saltFileName   = "vault.salt"
	logKeyFileName = "log.key"
	stateFileName  = "state.json"
	metaDirName    = "meta"
	logDirName     = "log"
)

// Options configures a backup.
type Options struct {
	// Password encrypts the backup. Must not be empty.
	Password string
	// Iterations is the key derivation work factor. Zero means the
	// default.
	Iterations int
	// IncludeLog captures the access log files as well.
	IncludeLog bool
}

// Info describes a created or verified backup.
type Info struct {
	CreatedAt   time.Time
	FileCount   int
	IncludesLog bool
}

// RestoreResult reports what a restore wrote.
type RestoreResult struct {
	FilesRestored int
	LogRestored   bool
}

// Create snapshots the guardian directory at dir into w.
func Create(dir string, w io.Writer, opts Options) (*Info, error) {
	if opts.Password == "" {
		return nil, ErrEmptyPassword
	}

	payload, err := collect(dir, opts.IncludeLog)
	if err != nil {
		return nil, err
	}

	backupSalt, err := crypto.NewSalt()
	if err != nil {
		return nil, err
	}
	iterations := opts.Iterations
	if iterations <= 0 {
		iterations = crypto.DefaultIterations
	}

	header := &Header{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		KDF: KDFParams{
			Salt:       backupSalt,
			Iterations: iterations,
		},
		IncludesLog: opts.IncludeLog,
		FileCount:   len(payload.Metadata),
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	defer crypto.SecureWipe(plaintext)

	encKey, macKey, err := deriveKeys(opts.Password, header.KDF)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	ciphertext, err := crypto.Encrypt(encKey, plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt payload: %w", err)
	}

	headerJSON, err := writeHeader(w, header)
	if err != nil {
		return nil, err
	}
	if err := writeCiphertext(w, ciphertext); err != nil {
		return nil, err
	}
	if _, err := w.Write(computeHMAC(macKey, headerJSON, ciphertext)); err != nil {
		return nil, fmt.Errorf("failed to write integrity tag: %w", err)
	}

	return &Info{
		CreatedAt:   header.CreatedAt,
		FileCount:   header.FileCount,
		IncludesLog: header.IncludesLog,
	}, nil
}

// Restore writes the backup in r into the guardian directory at dir.
// The target must not already be initialized unless overwrite is set.
func Restore(dir string, r io.Reader, password string, overwrite bool) (*RestoreResult, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}

	if _, err := os.Stat(filepath.Join(dir, saltFileName)); err == nil && !overwrite {
		return nil, ErrTargetInitialized
	}

	header, payload, err := open(r, password)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Join(dir, metaDirName), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, saltFileName), payload.Salt, 0600); err != nil {
		return nil, fmt.Errorf("failed to restore salt: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, logKeyFileName), payload.LogKey, 0600); err != nil {
		return nil, fmt.Errorf("failed to restore log key: %w", err)
	}
	if len(payload.State) > 0 {
		if err := os.WriteFile(filepath.Join(dir, stateFileName), payload.State, 0600); err != nil {
			return nil, fmt.Errorf("failed to restore state: %w", err)
		}
	}

	for name, data := range payload.Metadata {
		path := filepath.Join(dir, metaDirName, filepath.Base(name))
		if err := os.WriteFile(path, data, 0600); err != nil {
			return nil, fmt.Errorf("failed to restore metadata %s: %w", name, err)
		}
	}

	result := &RestoreResult{FilesRestored: len(payload.Metadata)}
	if header.IncludesLog && len(payload.Logs) > 0 {
		if err := os.MkdirAll(filepath.Join(dir, logDirName), 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		for name, data := range payload.Logs {
			path := filepath.Join(dir, logDirName, filepath.Base(name))
			if err := os.WriteFile(path, data, 0600); err != nil {
				return nil, fmt.Errorf("failed to restore log %s: %w", name, err)
			}
		}
		result.LogRestored = true
	}
	return result, nil
}

// Verify checks a backup's integrity and password without writing
// anything.
func Verify(r io.Reader, password string) (*Info, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	header, _, err := open(r, password)
	if err != nil {
		return nil, err
	}
	return &Info{
		CreatedAt:   header.CreatedAt,
		FileCount:   header.FileCount,
		IncludesLog: header.IncludesLog,
	}, nil
}

func open(r io.Reader, password string) (*Header, *Payload, error) {
	header, headerJSON, err := readHeader(r)
	if err != nil {
		return nil, nil, err
	}
	ciphertext, err := readCiphertext(r)
	if err != nil {
		return nil, nil, err
	}
	tag := make([]byte, hmacSize)
	if _, err := io.ReadFull(r, tag); err != nil {
		return nil, nil, fmt.Errorf("failed to read integrity tag: %w", err)
	}

	encKey, macKey, err := deriveKeys(password, header.KDF)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	if err := verifyHMAC(macKey, headerJSON, ciphertext, tag); err != nil {
		return nil, nil, err
	}

	plaintext, err := crypto.Decrypt(encKey, ciphertext)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			return nil, nil, ErrDecryptionFailed
		}
		return nil, nil, err
	}
	defer crypto.SecureWipe(plaintext)

	var payload Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return header, &payload, nil
}

// collect gathers the guardian state from disk.
func collect(dir string, includeLog bool) (*Payload, error) {
	salt, err := os.ReadFile(filepath.Join(dir, saltFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read salt (is the guardian initialized?): %w", err)
	}
	logKey, err := os.ReadFile(filepath.Join(dir, logKeyFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read log key: %w", err)
	}

	payload := &Payload{
		Salt:     salt,
		LogKey:   logKey,
		Metadata: make(map[string][]byte),
	}

	if state, err := os.ReadFile(filepath.Join(dir, stateFileName)); err == nil {
		payload.State = state
	}

	metaFiles, err := filepath.Glob(filepath.Join(dir, metaDirName, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}
	for _, path := range metaFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata %s: %w", path, err)
		}
		payload.Metadata[filepath.Base(path)] = data
	}

	if includeLog {
		payload.Logs = make(map[string][]byte)
		logFiles, err := filepath.Glob(filepath.Join(dir, logDirName, "*"))
		if err != nil {
			return nil, fmt.Errorf("failed to list log files: %w", err)
		}
		for _, path := range logFiles {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read log file %s: %w", path, err)
			}
			payload.Logs[filepath.Base(path)] = data
		}
	}
	return payload, nil
}
