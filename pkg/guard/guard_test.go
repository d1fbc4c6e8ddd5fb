package guard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/markattarcolgate64/guardianlock/pkg/audit"
	"github.com/markattarcolgate64/guardianlock/pkg/config"
	"github.com/markattarcolgate64/guardianlock/pkg/security"
	"github.com/markattarcolgate64/guardianlock/pkg/vault"
	"github.com/markattarcolgate64/guardianlock/pkg/verify"
)

const strongPassword = "mZ#k9!vQ2pXr@7Ln"

// fixedScorer always returns the same verdict.
type fixedScorer struct {
	verdict verify.Verdict
}

func (s fixedScorer) Score(ch verify.Challenge, response string, elapsed time.Duration) verify.Verdict {
	return s.verdict
}

func newTestGuardian(t *testing.T, pass bool) *Guardian {
	t.Helper()

	cfg := config.Default()
	cfg.VaultDir = t.TempDir()

	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { g.Close() })

	if err := g.Vault().Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	verdict := verify.Verdict{Pass: pass, Confidence: 100}
	if !pass {
		verdict = verify.Verdict{Pass: false, Confidence: 0, Indicators: []string{"response-too-fast"}}
	}
	g.verifier = verify.NewVerifier(fixedScorer{verdict: verdict},
		verify.WithAuditLogger(g.Vault().AccessLog()))
	return g
}

func respond(ch verify.Challenge) (string, time.Duration, error) {
	return "a genuine answer, more or less", 3 * time.Second, nil
}

func writeTestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "constitution.md")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestSessionSurvivesAcrossInstances(t *testing.T) {
	cfg := config.Default()
	cfg.VaultDir = t.TempDir()

	first, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := first.Vault().Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	first.verifier = verify.NewVerifier(fixedScorer{verdict: verify.Verdict{Pass: true, Confidence: 100}})

	s, err := first.Verify(respond)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A second instance over the same directory, as the next process
	// would construct, must honor the token.
	second, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer second.Close()

	path := writeTestFile(t, "carried over")
	if _, err := second.Protect(s.Token, path, strongPassword, vault.DefaultLevel, false); err != nil {
		t.Errorf("Protect with a token from the previous instance failed: %v", err)
	}
}

func TestVerifyOutcomesReachAccessLog(t *testing.T) {
	g := newTestGuardian(t, false)

	if _, err := g.Verify(respond); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("Verify error = %v, want ErrVerificationFailed", err)
	}

	events, err := g.Vault().AccessLog().ListEvents(0, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 access log entry, got %d", len(events))
	}
	if events[0].Action != audit.ActionVerifyFail {
		t.Errorf("action = %s, want %s", events[0].Action, audit.ActionVerifyFail)
	}
	if events[0].Error == nil || events[0].Error.Code != "VerificationFailed" {
		t.Error("failed verification entry should carry the VerificationFailed code")
	}
}

func TestVerifySuccessLogsSessionCreation(t *testing.T) {
	g := newTestGuardian(t, true)

	s, err := g.Verify(respond)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	events, err := g.Vault().AccessLog().ListEvents(0, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}

	var sawPass, sawSession bool
	for _, e := range events {
		switch e.Action {
		case audit.ActionVerifyPass:
			sawPass = true
		case audit.ActionSessionCreate:
			sawSession = true
			if e.Actor.SessionID != s.Token[:8] {
				t.Errorf("session entry id = %s, want token prefix %s", e.Actor.SessionID, s.Token[:8])
			}
		}
	}
	if !sawPass {
		t.Error("missing verify.pass entry")
	}
	if !sawSession {
		t.Error("missing session.create entry")
	}
}

func TestVerifyIssuesSession(t *testing.T) {
	g := newTestGuardian(t, true)

	s, err := g.Verify(respond)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if s.Token == "" {
		t.Fatal("Verify returned an empty token")
	}
	if got := s.ExpiresAt.Sub(s.CreatedAt); got != time.Hour {
		t.Errorf("session lifetime = %v, want 1h", got)
	}
}

func TestVerifyFailureIssuesNoSession(t *testing.T) {
	g := newTestGuardian(t, false)

	if _, err := g.Verify(respond); !errors.Is(err, ErrVerificationFailed) {
		t.Errorf("Verify error = %v, want ErrVerificationFailed", err)
	}
}

func TestOperationsRequireSession(t *testing.T) {
	g := newTestGuardian(t, true)
	path := writeTestFile(t, "core principles")

	if _, err := g.Protect("bogus", path, strongPassword, vault.DefaultLevel, false); !errors.Is(err, ErrSessionRequired) {
		t.Errorf("Protect error = %v, want ErrSessionRequired", err)
	}
	if _, err := g.Unlock("bogus", path, strongPassword); !errors.Is(err, ErrSessionRequired) {
		t.Errorf("Unlock error = %v, want ErrSessionRequired", err)
	}
	if _, err := g.Rotate("bogus", strongPassword, strongPassword, true); !errors.Is(err, ErrSessionRequired) {
		t.Errorf("Rotate error = %v, want ErrSessionRequired", err)
	}
}

func TestProtectUnlockThroughGuardian(t *testing.T) {
	g := newTestGuardian(t, true)
	path := writeTestFile(t, "core principles")

	s, err := g.Verify(respond)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if _, err := g.Protect(s.Token, path, strongPassword, vault.LevelMaximum, false); err != nil {
		t.Fatalf("Protect failed: %v", err)
	}

	pt, err := g.Unlock(s.Token, path, strongPassword)
	if err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if string(pt.Data) != "core principles" {
		t.Errorf("unlocked content = %q", pt.Data)
	}
}

func TestProtectEnforcesPasswordPolicy(t *testing.T) {
	g := newTestGuardian(t, true)
	path := writeTestFile(t, "data")

	s, err := g.Verify(respond)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if _, err := g.Protect(s.Token, path, "password", vault.DefaultLevel, false); !errors.Is(err, security.ErrPasswordTooWeak) {
		t.Errorf("Protect error = %v, want ErrPasswordTooWeak", err)
	}

	// force bypasses the policy but not verification.
	if _, err := g.Protect(s.Token, path, "password", vault.DefaultLevel, true); err != nil {
		t.Errorf("forced Protect failed: %v", err)
	}
}

func TestProtectUsesConfiguredDefaultLevel(t *testing.T) {
	cfg := config.Default()
	cfg.VaultDir = t.TempDir()
	cfg.DefaultLevel = "maximum"

	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	if err := g.Vault().Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	g.verifier = verify.NewVerifier(fixedScorer{verdict: verify.Verdict{Pass: true, Confidence: 100}})

	s, err := g.Verify(respond)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	path := writeTestFile(t, "defaults matter")
	meta, err := g.Protect(s.Token, path, strongPassword, "", false)
	if err != nil {
		t.Fatalf("Protect failed: %v", err)
	}
	if meta.ProtectionLevel != vault.LevelMaximum {
		t.Errorf("level = %s, want maximum from config", meta.ProtectionLevel)
	}
	if !meta.ConstitutionFile {
		t.Error("maximum level should mark the constitution flag")
	}
}

func TestCheckSession(t *testing.T) {
	g := newTestGuardian(t, true)

	if err := g.CheckSession("bogus"); !errors.Is(err, ErrSessionRequired) {
		t.Errorf("CheckSession error = %v, want ErrSessionRequired", err)
	}

	s, err := g.Verify(respond)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if err := g.CheckSession(s.Token); err != nil {
		t.Errorf("CheckSession with a live token failed: %v", err)
	}
}

func TestUnlockCollapsesDenialCause(t *testing.T) {
	g := newTestGuardian(t, true)
	path := writeTestFile(t, "data")

	s, err := g.Verify(respond)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if _, err := g.Protect(s.Token, path, strongPassword, vault.DefaultLevel, false); err != nil {
		t.Fatalf("Protect failed: %v", err)
	}

	if _, err := g.Unlock(s.Token, path, "wrong-password-entirely"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("wrong password error = %v, want ErrAccessDenied", err)
	}

	// Tampered ciphertext gets the same generic denial.
	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	blob[len(blob)-1] ^= 0xFF
	if err := os.Chmod(path, 0600); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := os.WriteFile(path, blob, 0600); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, err := g.Unlock(s.Token, path, strongPassword); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("tampered file error = %v, want ErrAccessDenied", err)
	}
}

func TestRevokeEndsSession(t *testing.T) {
	g := newTestGuardian(t, true)
	path := writeTestFile(t, "data")

	s, err := g.Verify(respond)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if err := g.Revoke(s.Token); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := g.Protect(s.Token, path, strongPassword, vault.DefaultLevel, false); !errors.Is(err, ErrSessionRequired) {
		t.Errorf("Protect after revoke error = %v, want ErrSessionRequired", err)
	}
}

func TestCheckPresence(t *testing.T) {
	g := newTestGuardian(t, true)

	s, err := g.Verify(respond)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if err := g.CheckPresence(s.Token, respond); err != nil {
		t.Errorf("CheckPresence failed: %v", err)
	}

	slow := func(ch verify.Challenge) (string, time.Duration, error) {
		return "here", time.Minute, nil
	}
	if err := g.CheckPresence(s.Token, slow); !errors.Is(err, ErrVerificationFailed) {
		t.Errorf("slow presence error = %v, want ErrVerificationFailed", err)
	}
}
