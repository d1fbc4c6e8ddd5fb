package backup

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/markattarcolgate64/guardianlock/pkg/crypto"
)

// hmacSize is the length of the trailing integrity tag.
const hmacSize = sha256.Size

// deriveKeys derives the encryption key and the outer HMAC key from the
// backup password. The HMAC key is a separate HKDF expansion so the
// encryption key itself never touches the MAC.
func deriveKeys(password string, params KDFParams) (encKey, macKey []byte, err error) {
	encKey = crypto.DeriveKey([]byte(password), params.Salt, params.Iterations)

	macKey = make([]byte, crypto.KeyLength)
	kdf := hkdf.New(sha256.New, encKey, nil, []byte("backup-hmac-v1"))
	if _, err := io.ReadFull(kdf, macKey); err != nil {
		crypto.SecureWipe(encKey)
		return nil, nil, fmt.Errorf("failed to derive HMAC key: %w", err)
	}
	return encKey, macKey, nil
}

// computeHMAC covers the header and the ciphertext so neither can be
// swapped independently.
func computeHMAC(macKey, headerJSON, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, macKey)
	mac.Write(headerJSON)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

func verifyHMAC(macKey, headerJSON, ciphertext, tag []byte) error {
	expected := computeHMAC(macKey, headerJSON, ciphertext)
	if !hmac.Equal(expected, tag) {
		return ErrIntegrityFailed
	}
	return nil
}
