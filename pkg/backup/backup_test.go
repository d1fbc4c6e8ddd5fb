package backup

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/markattarcolgate64/guardianlock/pkg/vault"
)

const testPassword = "a backup password with some length"

// newGuardianDir initializes a guardian directory with one protected
// file so a backup has real content.
func newGuardianDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	v := vault.New(dir, vault.WithIterations(100_000))
	if err := v.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	target := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(target, []byte("contents"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := v.Protect(target, "some-vault-password", vault.DefaultLevel); err != nil {
		t.Fatalf("Protect failed: %v", err)
	}
	return dir
}

func TestCreateRestoreRoundTrip(t *testing.T) {
	dir := newGuardianDir(t)

	var buf bytes.Buffer
	info, err := Create(dir, &buf, Options{Password: testPassword, IncludeLog: true})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if info.FileCount != 1 {
		t.Errorf("FileCount = %d, want 1", info.FileCount)
	}
	if !info.IncludesLog {
		t.Error("IncludesLog should be set")
	}

	restored := t.TempDir()
	result, err := Restore(restored, bytes.NewReader(buf.Bytes()), testPassword, false)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if result.FilesRestored != 1 {
		t.Errorf("FilesRestored = %d, want 1", result.FilesRestored)
	}
	if !result.LogRestored {
		t.Error("LogRestored should be set")
	}

	// The restored directory carries the same salt and metadata.
	for _, name := range []string{"vault.salt", "log.key"} {
		orig, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read original %s: %v", name, err)
		}
		got, err := os.ReadFile(filepath.Join(restored, name))
		if err != nil {
			t.Fatalf("read restored %s: %v", name, err)
		}
		if !bytes.Equal(orig, got) {
			t.Errorf("%s differs after restore", name)
		}
	}

	rv := vault.New(restored)
	metas, err := rv.Status()
	if err != nil {
		t.Fatalf("Status on restored vault failed: %v", err)
	}
	if len(metas) != 1 {
		t.Errorf("restored vault lists %d files, want 1", len(metas))
	}
}

func TestCreateRequiresPassword(t *testing.T) {
	dir := newGuardianDir(t)
	var buf bytes.Buffer
	if _, err := Create(dir, &buf, Options{}); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("Create error = %v, want ErrEmptyPassword", err)
	}
}

func TestRestoreWrongPassword(t *testing.T) {
	dir := newGuardianDir(t)
	var buf bytes.Buffer
	if _, err := Create(dir, &buf, Options{Password: testPassword}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err := Restore(t.TempDir(), bytes.NewReader(buf.Bytes()), "not-the-password", false)
	if !errors.Is(err, ErrIntegrityFailed) {
		t.Errorf("Restore error = %v, want ErrIntegrityFailed", err)
	}
}

func TestRestoreRefusesInitializedTarget(t *testing.T) {
	dir := newGuardianDir(t)
	var buf bytes.Buffer
	if _, err := Create(dir, &buf, Options{Password: testPassword}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := Restore(dir, bytes.NewReader(buf.Bytes()), testPassword, false); !errors.Is(err, ErrTargetInitialized) {
		t.Errorf("Restore error = %v, want ErrTargetInitialized", err)
	}

	// overwrite permits it.
	if _, err := Restore(dir, bytes.NewReader(buf.Bytes()), testPassword, true); err != nil {
		t.Errorf("overwriting Restore failed: %v", err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	dir := newGuardianDir(t)
	var buf bytes.Buffer
	if _, err := Create(dir, &buf, Options{Password: testPassword}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := Verify(bytes.NewReader(buf.Bytes()), testPassword); err != nil {
		t.Fatalf("Verify of intact backup failed: %v", err)
	}

	data := buf.Bytes()
	data[len(data)-1] ^= 0xFF
	if _, err := Verify(bytes.NewReader(data), testPassword); !errors.Is(err, ErrIntegrityFailed) {
		t.Errorf("Verify error = %v, want ErrIntegrityFailed", err)
	}
}

func TestVerifyRejectsWrongMagic(t *testing.T) {
	data := []byte("NOT_BKUPxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx")
	if _, err := Verify(bytes.NewReader(data), testPassword); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("Verify error = %v, want ErrInvalidMagic", err)
	}
}

func TestBackupSaltIsFresh(t *testing.T) {
	dir := newGuardianDir(t)

	var a, b bytes.Buffer
	if _, err := Create(dir, &a, Options{Password: testPassword}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := Create(dir, &b, Options{Password: testPassword}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("two backups of the same state should not be byte-identical")
	}
}
