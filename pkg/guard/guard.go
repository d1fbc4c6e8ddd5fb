// Package guard ties verification, sessions, and the vault together.
//
// Every vault mutation goes through a Guardian: the caller first proves
// human presence through challenge verification, receives a session
// token, and presents that token with each operation. The Guardian
// collapses the precise failure cause of an unlock into a generic
// denial so callers cannot distinguish a wrong password from tampered
// ciphertext.
package guard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/markattarcolgate64/guardianlock/pkg/audit"
	"github.com/markattarcolgate64/guardianlock/pkg/config"
	"github.com/markattarcolgate64/guardianlock/pkg/security"
	"github.com/markattarcolgate64/guardianlock/pkg/session"
	"github.com/markattarcolgate64/guardianlock/pkg/vault"
	"github.com/markattarcolgate64/guardianlock/pkg/verify"
)

var (
	// ErrAccessDenied is the single user-facing denial for unlock
	// failures. The access log records the precise cause.
	ErrAccessDenied = errors.New("guard: access denied")

	// ErrVerificationFailed is returned when challenge verification
	// does not reach its majority.
	ErrVerificationFailed = errors.New("guard: human verification failed")

	// ErrSessionRequired is returned when an operation is attempted
	// without a valid session token.
	ErrSessionRequired = errors.New("guard: valid session required")
)

// Guardian coordinates the vault, session manager, and verifier.
type Guardian struct {
	cfg      *config.Config
	vault    *vault.Vault
	sessions *session.Manager
	verifier *verify.Verifier
	store    session.Store
}

// New builds a Guardian from configuration. Close releases the session
// store.
func New(cfg *config.Config) (*Guardian, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	v := vault.New(cfg.VaultDir, vault.WithIterations(cfg.Iterations))

	// Sessions must survive across invocations: the token from one
	// guardctl process authorizes operations in the next.
	storePath := cfg.SessionStore
	if storePath == "" {
		if err := os.MkdirAll(cfg.VaultDir, 0700); err != nil {
			return nil, fmt.Errorf("guard: create directory: %w", err)
		}
		storePath = filepath.Join(cfg.VaultDir, "sessions.db")
	}
	store, err := session.OpenBoltStore(storePath)
	if err != nil {
		return nil, err
	}

	lexicon := verify.DefaultLexicon()
	lexicon = append(lexicon, cfg.Lexicon...)
	scorer := verify.NewHeuristicScorer(lexicon)

	g := &Guardian{
		cfg:   cfg,
		vault: v,
		store: store,
		sessions: session.NewManager(store,
			session.WithTTL(time.Duration(cfg.SessionTTL))),
		verifier: verify.NewVerifier(scorer,
			verify.WithRounds(cfg.Rounds, cfg.Majority),
			verify.WithAuditLogger(v.AccessLog())),
	}
	return g, nil
}

// Close releases the session store.
func (g *Guardian) Close() error {
	if g.store != nil {
		return g.store.Close()
	}
	return nil
}

// Vault exposes the underlying vault for init and status queries that
// need no session.
func (g *Guardian) Vault() *vault.Vault { return g.vault }

// Verify runs challenge verification and, on success, issues a session
// token valid for the configured lifetime. On an initialized
// installation both the verification outcome and the session issuance
// land in the access log.
func (g *Guardian) Verify(responder verify.Responder) (session.Session, error) {
	// The access log chain key is loaded on demand by vault operations;
	// verification writes log entries before any such operation runs.
	if err := g.vault.Open(); err != nil && !errors.Is(err, vault.ErrNotInitialized) {
		return session.Session{}, err
	}

	result, err := g.verifier.Run(responder)
	if err != nil {
		return session.Session{}, err
	}
	if !result.Passed {
		return session.Session{}, fmt.Errorf("%w: %d of %d challenges passed",
			ErrVerificationFailed, result.PassCount(), len(result.Rounds))
	}

	s, err := g.sessions.Create(true)
	if err != nil {
		return session.Session{}, err
	}
	_ = g.vault.AccessLog().Log(audit.ActionSessionCreate, audit.SourceGuard, "",
		shortToken(s.Token), audit.ResultSuccess, nil,
		map[string]interface{}{"expires_at": s.ExpiresAt.UTC().Format(time.RFC3339)})
	return s, nil
}

// CheckPresence runs the lightweight single-prompt re-check for an
// already verified session.
func (g *Guardian) CheckPresence(token string, responder verify.Responder) error {
	if err := g.requireSession(token); err != nil {
		return err
	}
	if !g.verifier.CheckPresence(responder) {
		return ErrVerificationFailed
	}
	return nil
}

// Protect encrypts a file in place. An empty level means the configured
// default. The password must satisfy the strength policy unless force
// is set.
func (g *Guardian) Protect(token, path, password string, level vault.Level, force bool) (*vault.Metadata, error) {
	if err := g.requireSession(token); err != nil {
		return nil, err
	}
	if level == "" {
		var err error
		level, err = vault.ParseLevel(g.cfg.DefaultLevel)
		if err != nil {
			return nil, err
		}
	}
	if !force {
		if err := security.CheckPolicy(password, path); err != nil {
			return nil, err
		}
	}
	return g.vault.Protect(path, password, level)
}

// Unlock decrypts a protected file to its side file. Wrong passwords
// and integrity failures both surface as ErrAccessDenied; cooldowns
// pass through so the caller can report the wait.
func (g *Guardian) Unlock(token, path, password string) (*vault.Plaintext, error) {
	if err := g.requireSession(token); err != nil {
		return nil, err
	}
	pt, err := g.vault.Unlock(path, password)
	if err != nil {
		return nil, g.collapse(err)
	}
	return pt, nil
}

// Reprotect proves the password and re-encrypts a file, optionally at a
// new protection level.
func (g *Guardian) Reprotect(token, path, password string, level vault.Level) (*vault.Metadata, error) {
	if err := g.requireSession(token); err != nil {
		return nil, err
	}
	meta, err := g.vault.Reprotect(path, password, level)
	if err != nil {
		return nil, g.collapse(err)
	}
	return meta, nil
}

// Rotate re-encrypts every protected file under a new password.
func (g *Guardian) Rotate(token, oldPassword, newPassword string, force bool) (int, error) {
	if err := g.requireSession(token); err != nil {
		return 0, err
	}
	if !force {
		if err := security.CheckPolicy(newPassword); err != nil {
			return 0, err
		}
	}
	n, err := g.vault.Rotate(oldPassword, newPassword)
	if err != nil {
		return n, g.collapse(err)
	}
	return n, nil
}

// Status lists every protected file. Reading status needs no session.
func (g *Guardian) Status() ([]*vault.Metadata, error) {
	return g.vault.Status()
}

// CheckSession validates a token without performing an operation, for
// commands that gate on a session but do their work outside the vault.
func (g *Guardian) CheckSession(token string) error {
	return g.requireSession(token)
}

// Revoke ends a session before its natural expiry.
func (g *Guardian) Revoke(token string) error {
	return g.sessions.Revoke(token)
}

func (g *Guardian) requireSession(token string) error {
	s, err := g.sessions.Validate(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionRequired, err)
	}
	g.vault.SetSessionID(shortToken(s.Token))
	return nil
}

// collapse hides the distinction between a wrong password and tampered
// ciphertext from the caller. The audit log keeps the real cause.
func (g *Guardian) collapse(err error) error {
	if errors.Is(err, vault.ErrWrongPassword) || errors.Is(err, vault.ErrIntegrityMismatch) {
		return ErrAccessDenied
	}
	return err
}

// shortToken is the token prefix recorded in audit entries. The full
// token never reaches the log.
func shortToken(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
