// Package config loads the guardian configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/markattarcolgate64/guardianlock/pkg/crypto"
	"github.com/markattarcolgate64/guardianlock/pkg/session"
	"github.com/markattarcolgate64/guardianlock/pkg/vault"
	"github.com/markattarcolgate64/guardianlock/pkg/verify"
)

// FileName is the configuration file inside the vault directory.
const FileName = "guardian.yaml"

// maxConfigSize bounds reads of the configuration file.
const maxConfigSize = 64 * 1024

var (
	// ErrNotFound is returned when no configuration file exists.
	ErrNotFound = errors.New("config: file not found")

	// ErrInsecure is returned when the file has group or world access.
	ErrInsecure = errors.New("config: file has insecure permissions")

	// ErrSymlink is returned when the configuration file is a symlink.
	ErrSymlink = errors.New("config: file is a symlink")
)

// Duration wraps time.Duration so the file can say "1h" or "90m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the full guardian configuration.
type Config struct {
	// VaultDir is where protected state lives. Defaults to
	// ~/.guardian.
	VaultDir string `yaml:"vault_dir"`

	// Iterations is the key derivation work factor.
	Iterations int `yaml:"iterations"`

	// SessionTTL is the access token lifetime.
	SessionTTL Duration `yaml:"session_ttl"`

	// SessionStore is the path of the persistent session database.
	// Empty means sessions.db inside the vault directory.
	SessionStore string `yaml:"session_store"`

	// Rounds and Majority control challenge verification.
	Rounds   int `yaml:"rounds"`
	Majority int `yaml:"majority"`

	// DefaultLevel applies when protect is called without a level.
	DefaultLevel string `yaml:"default_level"`

	// Lexicon adds phrases treated as machine-generated language
	// during response scoring, on top of the built-in set.
	Lexicon []string `yaml:"lexicon"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		VaultDir:     defaultVaultDir(),
		Iterations:   crypto.DefaultIterations,
		SessionTTL:   Duration(session.DefaultTTL),
		Rounds:       verify.DefaultRounds,
		Majority:     verify.DefaultMajority,
		DefaultLevel: string(vault.DefaultLevel),
	}
}

// Load reads the configuration from dir, falling back to defaults when
// the file is absent. A present but unreadable or insecure file is an
// error, never silently ignored.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)

	f, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NOFOLLOW, 0)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			cfg.VaultDir = dir
			return cfg, nil
		}
		if errors.Is(err, syscall.ELOOP) {
			return nil, ErrSymlink
		}
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return nil, fmt.Errorf("%w: %o", ErrInsecure, perm)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxConfigSize))
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	cfg.VaultDir = dir

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the rest of the system
// cannot honor.
func (c *Config) Validate() error {
	if c.VaultDir == "" {
		return errors.New("config: vault_dir must not be empty")
	}
	if c.Iterations < crypto.MinIterations {
		return fmt.Errorf("config: iterations %d below minimum %d", c.Iterations, crypto.MinIterations)
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: session_ttl must be positive")
	}
	if c.Rounds < 1 {
		return errors.New("config: rounds must be at least 1")
	}
	if c.Majority < 1 || c.Majority > c.Rounds {
		return fmt.Errorf("config: majority %d out of range for %d rounds", c.Majority, c.Rounds)
	}
	if _, err := vault.ParseLevel(c.DefaultLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func defaultVaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".guardian"
	}
	return filepath.Join(home, ".guardian")
}
