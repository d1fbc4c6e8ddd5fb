package security

import (
	"errors"
	"testing"
)

func TestAssess(t *testing.T) {
	weak := Assess("password")
	strong := Assess("mZ#k9!vQ2pXr@7Ln")

	if weak.Strength != PasswordWeak {
		t.Errorf("Assess(\"password\") strength = %v, want Weak", weak.Strength)
	}
	if strong.Score <= weak.Score {
		t.Errorf("strong score %d should exceed weak score %d", strong.Score, weak.Score)
	}
	if strong.Strength != PasswordStrong {
		t.Errorf("strong password strength = %v, want Strong", strong.Strength)
	}
}

func TestAssessUserInputs(t *testing.T) {
	// A password built from known context scores worse when that
	// context is supplied.
	with := Assess("constitution2024", "constitution")
	without := Assess("constitution2024")
	if with.Score > without.Score {
		t.Errorf("user input should not raise the score: %d > %d", with.Score, without.Score)
	}
}

func TestCheckPolicy(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{"too short", "abc", ErrPasswordTooShort},
		{"common word", "password", ErrPasswordTooWeak},
		{"keyboard walk", "qwertyuiop", ErrPasswordTooWeak},
		{"acceptable", "correct horse battery staple", nil},
		{"strong", "mZ#k9!vQ2pXr@7Ln", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPolicy(tt.password)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("CheckPolicy(%q) failed: %v", tt.password, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckPolicy(%q) error = %v, want %v", tt.password, err, tt.wantErr)
			}
		})
	}
}

func TestStrengthString(t *testing.T) {
	for s, want := range map[PasswordStrength]string{
		PasswordWeak:   "Weak",
		PasswordFair:   "Fair",
		PasswordGood:   "Good",
		PasswordStrong: "Strong",
	} {
		if got := s.String(); got != want {
			t.Errorf("String() = %s, want %s", got, want)
		}
	}
}
