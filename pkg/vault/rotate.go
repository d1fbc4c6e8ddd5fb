package vault

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/markattarcolgate64/guardianlock/pkg/audit"
	"github.com/markattarcolgate64/guardianlock/pkg/crypto"
)

const rotateBackupDirName = "rotate-backup"

// Rotate changes the protection password for the whole installation:
// a new salt is issued and every protected file is re-encrypted under
// the key derived from newPassword.
//
// The batch runs in three phases. First every ciphertext is decrypted
// with the old key and checked against its recorded hash, with no
// mutation; any failure aborts with the installation untouched. Second,
// the old salt, ciphertexts and metadata are copied into a backup
// directory inside the vault. Only then are the new salt and new
// ciphertexts committed. If the commit is interrupted, the backup
// directory is retained for recovery and its presence is reported by the
// returned error.
//
// Returns the number of files re-protected.
func (v *Vault) Rotate(oldPassword, newPassword string) (int, error) {
	n, err := v.rotate(oldPassword, newPassword)
	if err != nil {
		_ = v.log.LogDenied(audit.SourceCLI, "", v.sessionID, audit.ActionRotate, errorKind(err))
		return n, err
	}
	_ = v.log.Log(audit.ActionRotate, audit.SourceCLI, "", v.sessionID, audit.ResultSuccess,
		nil, map[string]interface{}{"files": n})
	return n, nil
}

func (v *Vault) rotate(oldPassword, newPassword string) (int, error) {
	oldSalt, err := v.open()
	if err != nil {
		return 0, err
	}

	if _, err := v.checkCooldown(); err != nil {
		return 0, err
	}

	metas, err := v.listMetadata()
	if err != nil {
		return 0, err
	}

	oldKey := crypto.DeriveKey([]byte(oldPassword), oldSalt, v.iterations)
	defer crypto.SecureWipe(oldKey)

	// Phase 1: decrypt and verify everything with no mutation. A wrong
	// password or a damaged file must leave the installation untouched,
	// otherwise the batch could strand files under two different salts.
	plaintexts := make([][]byte, len(metas))
	blobs := make([][]byte, len(metas))
	for i, meta := range metas {
		blob, err := os.ReadFile(meta.OriginalPath)
		if err != nil {
			return 0, fmt.Errorf("%w: read %s: %v", ErrIO, meta.OriginalPath, err)
		}
		plaintext, err := crypto.Decrypt(oldKey, blob)
		if err != nil {
			if _, recordErr := v.recordFailedAttempt(); recordErr != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to record unlock attempt: %v\n", recordErr)
			}
			return 0, ErrWrongPassword
		}
		if hashHex(plaintext) != meta.SHA256 {
			return 0, fmt.Errorf("%w: %s", ErrIntegrityMismatch, meta.OriginalPath)
		}
		plaintexts[i] = plaintext
		blobs[i] = blob
	}

	// Phase 2: back up the pre-rotation state inside the vault.
	backupDir := filepath.Join(v.dir, rotateBackupDirName)
	if err := os.MkdirAll(backupDir, dirMode); err != nil {
		return 0, fmt.Errorf("%w: create backup directory: %v", ErrIO, err)
	}
	if err := os.WriteFile(filepath.Join(backupDir, saltFileName), oldSalt, fileMode); err != nil {
		return 0, fmt.Errorf("%w: back up salt: %v", ErrIO, err)
	}
	for i, meta := range metas {
		name := metaName(meta.OriginalPath)
		if err := os.WriteFile(filepath.Join(backupDir, name+".blob"), blobs[i], fileMode); err != nil {
			return 0, fmt.Errorf("%w: back up %s: %v", ErrIO, meta.OriginalPath, err)
		}
	}

	// Phase 3: commit. The new salt lands first so a crash between file
	// rewrites leaves files recoverable from the backup, never from a
	// half-matching live salt.
	newSalt, err := crypto.NewSalt()
	if err != nil {
		return 0, err
	}
	if err := atomicWrite(filepath.Join(v.dir, saltFileName), newSalt, fileMode); err != nil {
		return 0, fmt.Errorf("%w: write new salt: %v", ErrIO, err)
	}

	newKey := crypto.DeriveKey([]byte(newPassword), newSalt, v.iterations)
	defer crypto.SecureWipe(newKey)

	done := 0
	for i, meta := range metas {
		blob, err := crypto.Encrypt(newKey, plaintexts[i])
		if err != nil {
			return done, fmt.Errorf("%w: re-encrypt %s (pre-rotation state kept in %s): %v",
				ErrIO, meta.OriginalPath, backupDir, err)
		}
		if err := atomicWrite(meta.OriginalPath, blob, protectedMode); err != nil {
			return done, fmt.Errorf("%w: rewrite %s (pre-rotation state kept in %s): %v",
				ErrIO, meta.OriginalPath, backupDir, err)
		}
		meta.ProtectedTimestamp = v.now().UTC()
		if err := v.saveMetadata(meta); err != nil {
			return done, fmt.Errorf("%w: update metadata for %s (pre-rotation state kept in %s): %v",
				ErrIO, meta.OriginalPath, backupDir, err)
		}
		done++
	}

	for i := range plaintexts {
		crypto.SecureWipe(plaintexts[i])
	}

	if err := os.RemoveAll(backupDir); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to remove rotation backup: %v\n", err)
	}
	if err := v.clearLockState(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to clear lock state: %v\n", err)
	}

	return done, nil
}
