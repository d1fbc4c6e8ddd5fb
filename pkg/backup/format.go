package backup

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// MagicNumber identifies a guardian backup file: "GRDN_BKP".
var MagicNumber = [8]byte{'G', 'R', 'D', 'N', '_', 'B', 'K', 'P'}

// FormatVersion is the current backup format version.
const FormatVersion = 1

// Read bounds.
const (
	maxHeaderSize  = 1024 * 1024
	maxPayloadSize = 1 << 30
)

// KDFParams records how the backup key is derived. The salt is fresh
// for every backup and never reuses the vault salt.
type KDFParams struct {
	Salt       []byte `json:"salt"`
	Iterations int    `json:"iterations"`
}

// Header carries backup metadata. It is written in the clear but
// covered by the outer HMAC.
type Header struct {
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	KDF         KDFParams `json:"kdf_params"`
	IncludesLog bool      `json:"includes_log"`
	FileCount   int       `json:"file_count"`
}

// Payload is the guardian state being backed up. It is encrypted as a
// single JSON blob.
type Payload struct {
	Salt     []byte            `json:"salt"`
	LogKey   []byte            `json:"log_key"`
	State    []byte            `json:"state,omitempty"`
	Metadata map[string][]byte `json:"metadata"`
	Logs     map[string][]byte `json:"logs,omitempty"`
}

func writeHeader(w io.Writer, header *Header) ([]byte, error) {
	if _, err := w.Write(MagicNumber[:]); err != nil {
		return nil, fmt.Errorf("failed to write magic number: %w", err)
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(headerJSON))); err != nil {
		return nil, fmt.Errorf("failed to write header length: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return headerJSON, nil
}

func readHeader(r io.Reader) (*Header, []byte, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, nil, fmt.Errorf("failed to read magic number: %w", err)
	}
	if magic != MagicNumber {
		return nil, nil, ErrInvalidMagic
	}

	var headerLen uint32
	if err := binary.Read(r, binary.BigEndian, &headerLen); err != nil {
		return nil, nil, fmt.Errorf("failed to read header length: %w", err)
	}
	if headerLen > maxHeaderSize {
		return nil, nil, fmt.Errorf("header too large: %d bytes", headerLen)
	}

	headerJSON := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal header: %w", err)
	}
	if header.Version > FormatVersion {
		return nil, nil, fmt.Errorf("%w: got %d, max supported %d",
			ErrUnsupportedVersion, header.Version, FormatVersion)
	}
	return &header, headerJSON, nil
}

func writeCiphertext(w io.Writer, ciphertext []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint64(len(ciphertext))); err != nil {
		return fmt.Errorf("failed to write ciphertext length: %w", err)
	}
	if _, err := w.Write(ciphertext); err != nil {
		return fmt.Errorf("failed to write ciphertext: %w", err)
	}
	return nil
}

func readCiphertext(r io.Reader) ([]byte, error) {
	var ctLen uint64
	if err := binary.Read(r, binary.BigEndian, &ctLen); err != nil {
		return nil, fmt.Errorf("failed to read ciphertext length: %w", err)
	}
	if ctLen > maxPayloadSize {
		return nil, fmt.Errorf("ciphertext too large: %d bytes", ctLen)
	}

	ciphertext := make([]byte, ctLen)
	if _, err := io.ReadFull(r, ciphertext); err != nil {
		return nil, fmt.Errorf("failed to read ciphertext: %w", err)
	}
	return ciphertext, nil
}
