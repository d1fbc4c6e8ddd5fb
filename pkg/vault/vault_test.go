package vault

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/markattarcolgate64/guardianlock/pkg/audit"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v := New(filepath.Join(t.TempDir(), "guardian"))
	if err := v.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return v
}

func writeTestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

func TestInit(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "guardian")
	v := New(dir)

	if v.Initialized() {
		t.Error("Initialized() = true before Init")
	}
	if err := v.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !v.Initialized() {
		t.Error("Initialized() = false after Init")
	}

	salt, err := os.ReadFile(filepath.Join(dir, saltFileName))
	if err != nil {
		t.Fatalf("salt file not created: %v", err)
	}
	if len(salt) != 16 {
		t.Errorf("salt length = %d, want 16", len(salt))
	}

	if err := v.Init(); err != ErrAlreadyInitialized {
		t.Errorf("second Init error = %v, want ErrAlreadyInitialized", err)
	}
}

func TestProtectUnlockRoundTrip(t *testing.T) {
	v := newTestVault(t)
	path := writeTestFile(t, "hello")

	meta, err := v.Protect(path, "p@ss", DefaultLevel)
	if err != nil {
		t.Fatalf("Protect failed: %v", err)
	}

	if meta.ProtectionLevel != LevelHigh {
		t.Errorf("protection level = %s, want %s", meta.ProtectionLevel, LevelHigh)
	}
	wantHash := sha256.Sum256([]byte("hello"))
	if meta.SHA256 != hex.EncodeToString(wantHash[:]) {
		t.Errorf("metadata hash = %s, want sha256 of plaintext", meta.SHA256)
	}
	if meta.ConstitutionFile {
		t.Error("HIGH protection should not mark a constitution file")
	}

	// The file on disk is now ciphertext with owner-read-only permission.
	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read protected file: %v", err)
	}
	if bytes.Equal(onDisk, []byte("hello")) {
		t.Error("protected file still contains plaintext")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat protected file: %v", err)
	}
	if info.Mode().Perm() != 0400 {
		t.Errorf("protected file mode = %04o, want 0400", info.Mode().Perm())
	}

	pt, err := v.Unlock(path, "p@ss")
	if err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if string(pt.Data) != "hello" {
		t.Errorf("unlocked data = %q, want %q", pt.Data, "hello")
	}
	if pt.Path != path+UnlockedSuffix {
		t.Errorf("side file path = %s, want %s", pt.Path, path+UnlockedSuffix)
	}

	side, err := os.ReadFile(pt.Path)
	if err != nil {
		t.Fatalf("side file not written: %v", err)
	}
	if string(side) != "hello" {
		t.Errorf("side file content = %q, want %q", side, "hello")
	}

	// Unlock never touches the protected original.
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to re-read protected file: %v", err)
	}
	if !bytes.Equal(onDisk, after) {
		t.Error("Unlock modified the protected original")
	}
}

func TestUnlockWrongPassword(t *testing.T) {
	v := newTestVault(t)
	path := writeTestFile(t, "hello")

	if _, err := v.Protect(path, "p@ss", DefaultLevel); err != nil {
		t.Fatalf("Protect failed: %v", err)
	}

	_, err := v.Unlock(path, "wrong")
	if !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Unlock with wrong password error = %v, want ErrWrongPassword", err)
	}

	// No side file appears on failure.
	if _, err := os.Stat(path + UnlockedSuffix); !os.IsNotExist(err) {
		t.Error("failed unlock should not write a side file")
	}
}

func TestProtectAlreadyProtected(t *testing.T) {
	v := newTestVault(t)
	path := writeTestFile(t, "content")

	if _, err := v.Protect(path, "pw", DefaultLevel); err != nil {
		t.Fatalf("Protect failed: %v", err)
	}
	if _, err := v.Protect(path, "pw", DefaultLevel); !errors.Is(err, ErrAlreadyProtected) {
		t.Errorf("second Protect error = %v, want ErrAlreadyProtected", err)
	}
}

func TestProtectNotFound(t *testing.T) {
	v := newTestVault(t)

	_, err := v.Protect(filepath.Join(t.TempDir(), "missing.txt"), "pw", DefaultLevel)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Protect on missing file error = %v, want ErrNotFound", err)
	}
}

func TestUnlockNotProtected(t *testing.T) {
	v := newTestVault(t)
	path := writeTestFile(t, "plain")

	_, err := v.Unlock(path, "pw")
	if !errors.Is(err, ErrNotProtected) {
		t.Errorf("Unlock on unprotected file error = %v, want ErrNotProtected", err)
	}
}

func TestTamperDetection(t *testing.T) {
	v := newTestVault(t)
	path := writeTestFile(t, "integrity matters")

	if _, err := v.Protect(path, "pw", DefaultLevel); err != nil {
		t.Fatalf("Protect failed: %v", err)
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read protected file: %v", err)
	}
	blob[len(blob)/2] ^= 0x01
	if err := os.WriteFile(path, blob, 0600); err != nil {
		t.Fatalf("write tampered file: %v", err)
	}

	// A tampered blob fails authentication; it must never decode to
	// silently wrong plaintext.
	_, err = v.Unlock(path, "pw")
	if !errors.Is(err, ErrWrongPassword) && !errors.Is(err, ErrIntegrityMismatch) {
		t.Errorf("Unlock of tampered file error = %v, want WrongPassword or IntegrityMismatch", err)
	}
}

func TestProtectFailureLeavesOriginalUntouched(t *testing.T) {
	v := newTestVault(t)
	path := writeTestFile(t, "precious original")

	// Break the metadata directory so the step between the temporary
	// ciphertext write and the rename fails.
	metaDir := filepath.Join(v.dir, metaDirName)
	if err := os.RemoveAll(metaDir); err != nil {
		t.Fatalf("failed to remove meta dir: %v", err)
	}
	if err := os.WriteFile(metaDir, []byte("not a directory"), 0600); err != nil {
		t.Fatalf("failed to plant file: %v", err)
	}

	_, err := v.Protect(path, "pw", DefaultLevel)
	if err == nil {
		t.Fatal("Protect should fail when metadata cannot be written")
	}

	got, readErr := os.ReadFile(path)
	if readErr != nil {
		t.Fatalf("original file unreadable after failed protect: %v", readErr)
	}
	if string(got) != "precious original" {
		t.Error("failed protect modified the original file")
	}

	// No stray temp files remain next to the original.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != filepath.Base(path) {
			t.Errorf("unexpected leftover file %s after failed protect", e.Name())
		}
	}
}

func TestReprotectRequiresPassword(t *testing.T) {
	v := newTestVault(t)
	path := writeTestFile(t, "rotate me")

	if _, err := v.Protect(path, "old-pw", DefaultLevel); err != nil {
		t.Fatalf("Protect failed: %v", err)
	}

	if _, err := v.Reprotect(path, "not-the-password", LevelMaximum); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Reprotect with wrong password error = %v, want ErrWrongPassword", err)
	}

	meta, err := v.Reprotect(path, "old-pw", LevelMaximum)
	if err != nil {
		t.Fatalf("Reprotect failed: %v", err)
	}
	if meta.ProtectionLevel != LevelMaximum || !meta.ConstitutionFile {
		t.Error("Reprotect should apply the new level and constitution flag")
	}

	pt, err := v.Unlock(path, "old-pw")
	if err != nil {
		t.Fatalf("Unlock after reprotect failed: %v", err)
	}
	if string(pt.Data) != "rotate me" {
		t.Errorf("content after reprotect = %q, want %q", pt.Data, "rotate me")
	}
}

func TestReprotectEmptyLevelKeepsCurrent(t *testing.T) {
	v := newTestVault(t)
	path := writeTestFile(t, "keep my level")

	if _, err := v.Protect(path, "pw", LevelMaximum); err != nil {
		t.Fatalf("Protect failed: %v", err)
	}

	meta, err := v.Reprotect(path, "pw", "")
	if err != nil {
		t.Fatalf("Reprotect failed: %v", err)
	}
	if meta.ProtectionLevel != LevelMaximum {
		t.Errorf("level after reprotect = %s, want maximum", meta.ProtectionLevel)
	}
}

func TestCooldownAfterRepeatedFailures(t *testing.T) {
	now := time.Now()
	clock := &now
	v := New(filepath.Join(t.TempDir(), "guardian"), WithClock(func() time.Time { return *clock }))
	if err := v.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	path := writeTestFile(t, "guess me")
	if _, err := v.Protect(path, "correct", DefaultLevel); err != nil {
		t.Fatalf("Protect failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := v.Unlock(path, "wrong"); !errors.Is(err, ErrWrongPassword) {
			t.Fatalf("attempt %d error = %v, want ErrWrongPassword", i+1, err)
		}
	}

	// The fifth failure activates a 30 second cooldown; even the correct
	// password is refused inside it.
	if _, err := v.Unlock(path, "correct"); !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("Unlock during cooldown error = %v, want ErrCooldownActive", err)
	}

	now = now.Add(31 * time.Second)
	pt, err := v.Unlock(path, "correct")
	if err != nil {
		t.Fatalf("Unlock after cooldown failed: %v", err)
	}
	if string(pt.Data) != "guess me" {
		t.Errorf("unlocked data = %q, want %q", pt.Data, "guess me")
	}

	// Success clears the failure counter.
	if _, err := os.Stat(v.lockStatePath()); !os.IsNotExist(err) {
		t.Error("lock state should be cleared after successful unlock")
	}
}

func TestStatusAndIsProtected(t *testing.T) {
	v := newTestVault(t)
	path1 := writeTestFile(t, "one")
	path2 := writeTestFile(t, "two")

	if _, err := v.Protect(path1, "pw", LevelLow); err != nil {
		t.Fatalf("Protect failed: %v", err)
	}
	if _, err := v.Protect(path2, "pw", LevelMaximum); err != nil {
		t.Fatalf("Protect failed: %v", err)
	}

	if !v.IsProtected(path1) {
		t.Error("IsProtected(path1) = false, want true")
	}
	if v.IsProtected(filepath.Join(t.TempDir(), "other")) {
		t.Error("IsProtected on unknown path = true, want false")
	}

	metas, err := v.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("Status returned %d records, want 2", len(metas))
	}
	levels := map[string]Level{}
	for _, m := range metas {
		levels[m.OriginalPath] = m.ProtectionLevel
	}
	if levels[path1] != LevelLow {
		t.Errorf("level for %s = %s, want LOW", path1, levels[path1])
	}
	if levels[path2] != LevelMaximum {
		t.Errorf("level for %s = %s, want MAXIMUM", path2, levels[path2])
	}
}

func TestAccessLogRecordsOutcomes(t *testing.T) {
	v := newTestVault(t)
	path := writeTestFile(t, "logged")

	if _, err := v.Protect(path, "pw", DefaultLevel); err != nil {
		t.Fatalf("Protect failed: %v", err)
	}
	if _, err := v.Unlock(path, "nope"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected wrong password, got %v", err)
	}
	if _, err := v.Unlock(path, "pw"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	events, err := v.AccessLog().ListEvents(0, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(events))
	}
	if events[0].Action != audit.ActionProtect {
		t.Errorf("first action = %s, want protect", events[0].Action)
	}
	if events[1].Action != audit.ActionDenied || events[1].Error == nil || events[1].Error.Code != "WrongPassword" {
		t.Error("failed unlock should log a denied entry with the internal kind")
	}
	if events[2].Action != audit.ActionUnlock {
		t.Errorf("third action = %s, want unlock", events[2].Action)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"", DefaultLevel, false},
		{"LOW", LevelLow, false},
		{"MEDIUM", LevelMedium, false},
		{"HIGH", LevelHigh, false},
		{"MAXIMUM", LevelMaximum, false},
		{"high", LevelHigh, false},
		{"maximum", LevelMaximum, false},
		{"Low", LevelLow, false},
		{"EXTREME", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
