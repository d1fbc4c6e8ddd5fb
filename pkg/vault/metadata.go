package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Level is the protection level assigned to a file.
type Level string

// Protection levels, lowest to highest. DefaultLevel applies when the
// caller does not name one. LevelMaximum additionally marks the file as a
// constitution file in its metadata.
const (
	LevelLow     Level = "LOW"
	LevelMedium  Level = "MEDIUM"
	LevelHigh    Level = "HIGH"
	LevelMaximum Level = "MAXIMUM"

	DefaultLevel = LevelHigh
)

// ParseLevel converts a string to a Level, accepting any casing. The
// empty string yields DefaultLevel.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToUpper(s)) {
	case "":
		return DefaultLevel, nil
	case LevelLow:
		return LevelLow, nil
	case LevelMedium:
		return LevelMedium, nil
	case LevelHigh:
		return LevelHigh, nil
	case LevelMaximum:
		return LevelMaximum, nil
	default:
		return "", fmt.Errorf("vault: unknown protection level %q", s)
	}
}

// Metadata is the protection record for a single path. One record exists
// per protected path; it is overwritten on re-protection and otherwise
// read-only.
type Metadata struct {
	OriginalPath       string    `json:"original_path"`
	ProtectionLevel    Level     `json:"protection_level"`
	SHA256             string    `json:"sha256"` // hex digest of the plaintext
	ProtectedTimestamp time.Time `json:"protected_timestamp"`
	ConstitutionFile   bool      `json:"constitution_file"`
}

// metaName maps a protected path to its metadata file name. Hashing the
// absolute path keeps names unique and filesystem-safe.
func metaName(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:]) + ".json"
}

// metaPath returns the metadata file location for a protected path.
func (v *Vault) metaPath(path string) string {
	return filepath.Join(v.dir, metaDirName, metaName(path))
}

// loadMetadata reads the metadata record for a path. Returns
// ErrNotProtected if no record exists.
func (v *Vault) loadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(v.metaPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotProtected
		}
		return nil, fmt.Errorf("%w: read metadata: %v", ErrIO, err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: corrupt metadata for %s: %v", ErrIO, path, err)
	}
	return &meta, nil
}

// saveMetadata persists a metadata record atomically with 0600
// permissions.
func (v *Vault) saveMetadata(meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %v", ErrIO, err)
	}
	if err := atomicWrite(v.metaPath(meta.OriginalPath), data, 0600); err != nil {
		return fmt.Errorf("%w: write metadata: %v", ErrIO, err)
	}
	return nil
}

// removeMetadata deletes the metadata record for a path.
func (v *Vault) removeMetadata(path string) error {
	if err := os.Remove(v.metaPath(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove metadata: %v", ErrIO, err)
	}
	return nil
}

// listMetadata returns every metadata record in the vault, sorted by
// original path.
func (v *Vault) listMetadata() ([]*Metadata, error) {
	dir := filepath.Join(v.dir, metaDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read metadata directory: %v", ErrIO, err)
	}

	var metas []*Metadata
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("%w: read metadata %s: %v", ErrIO, e.Name(), err)
		}
		var meta Metadata
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("%w: corrupt metadata %s: %v", ErrIO, e.Name(), err)
		}
		metas = append(metas, &meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].OriginalPath < metas[j].OriginalPath
	})
	return metas, nil
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
