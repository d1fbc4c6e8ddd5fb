// Package crypto provides cryptographic primitives for guardianlock.
//
// This package implements AES-256-GCM authenticated encryption and
// PBKDF2-HMAC-SHA256 key derivation with an enforced iteration floor.
//
// # Security Features
//
//   - AES-256-GCM authenticated encryption
//   - PBKDF2-HMAC-SHA256 key derivation (210,000 iterations by default)
//   - Cryptographically secure random salt and nonce generation
//   - Secure memory wiping for key material
//
// # Example Usage
//
//	// Derive a key from a password
//	salt, err := crypto.NewSalt()
//	key := crypto.DeriveKey([]byte("password"), salt, crypto.DefaultIterations)
//
//	// Encrypt data (nonce is prepended to the returned blob)
//	blob, err := crypto.Encrypt(key, plaintext)
//
//	// Decrypt data
//	plaintext, err := crypto.Decrypt(key, blob)
//
//	// Securely wipe sensitive data
//	crypto.SecureWipe(key)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters.
const (
	// DefaultIterations is the PBKDF2 iteration count (OWASP recommendation
	// for PBKDF2-HMAC-SHA256).
	DefaultIterations = 210_000

	// MinIterations is the lowest iteration count DeriveKey will honor.
	// Requests below this are raised to it; a fast single hash is never
	// an acceptable substitute for password stretching.
	MinIterations = 100_000

	// SaltLength is the length of KDF salts in bytes (128 bits).
	SaltLength = 16

	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrDecryptionFailed indicates decryption or authentication tag verification failed.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, authentication tag verification failed")

	// ErrCiphertextTooShort indicates the blob is shorter than a nonce plus GCM tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
)

// NewSalt returns a fresh random salt from a cryptographically secure
// source. A salt is generated exactly once per vault installation and
// persisted alongside the vault; it is not itself secret.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives a 256-bit encryption key from a password using
// PBKDF2-HMAC-SHA256.
//
// Derivation is deterministic: the same password, salt and iteration count
// always yield the same key. Iteration counts below MinIterations are
// raised to MinIterations. The salt should be SaltLength bytes of
// cryptographically secure random data.
func DeriveKey(password, salt []byte, iterations int) []byte {
	if iterations < MinIterations {
		iterations = MinIterations
	}
	return pbkdf2.Key(password, salt, iterations, KeyLength, sha256.New)
}

// Encrypt encrypts plaintext using AES-256-GCM authenticated encryption.
//
// A cryptographically secure random 12-byte nonce is generated per call and
// prepended to the returned blob, so the single value can be stored as-is.
// The nonce is never caller-supplied: a repeated nonce under the same key
// voids the authentication guarantee.
//
// Returns ErrInvalidKeyLength if key is not 32 bytes.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	nonce := make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	// Seal appends the authentication tag to the ciphertext.
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	blob := make([]byte, 0, NonceLength+len(ciphertext))
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)
	return blob, nil
}

// Decrypt decrypts a blob produced by Encrypt using AES-256-GCM.
//
// The authentication tag is verified before any plaintext is returned. A
// wrong key and a tampered blob are indistinguishable: both fail with
// ErrDecryptionFailed and never yield corrupted plaintext.
func Decrypt(key, blob []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	if len(blob) < NonceLength+gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	nonce := blob[:NonceLength]
	ciphertext := blob[NonceLength:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
// Derived keys must be wiped as soon as the operation that derived them
// completes.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive ensures the write operations are not optimized away
	// by the compiler since b is still "in use" after the loop.
	runtime.KeepAlive(b)
}
