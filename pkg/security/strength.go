// Package security assesses the strength of vault passwords.
package security

import (
	"errors"
	"fmt"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// MinPasswordLength is the shortest password accepted for protecting
// files.
const MinPasswordLength = 8

// MinScore is the lowest zxcvbn score accepted without the force flag.
const MinScore = 2

// ErrPasswordTooShort is returned for passwords under MinPasswordLength.
var ErrPasswordTooShort = fmt.Errorf("security: password shorter than %d characters", MinPasswordLength)

// ErrPasswordTooWeak is returned for guessable passwords.
var ErrPasswordTooWeak = errors.New("security: password too guessable")

// PasswordStrength is a coarse strength level.
type PasswordStrength int

const (
	// PasswordWeak indicates a trivially guessable password.
	PasswordWeak PasswordStrength = iota
	// PasswordFair indicates a minimally acceptable password.
	PasswordFair
	// PasswordGood indicates a good password.
	PasswordGood
	// PasswordStrong indicates a strong password.
	PasswordStrong
)

// String returns a human-readable representation of the strength level.
func (s PasswordStrength) String() string {
	switch s {
	case PasswordWeak:
		return "Weak"
	case PasswordFair:
		return "Fair"
	case PasswordGood:
		return "Good"
	case PasswordStrong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// Assessment is the result of analyzing one password.
type Assessment struct {
	Strength  PasswordStrength
	Score     int     // zxcvbn score, 0 (worst) to 4 (best)
	Entropy   float64 // estimated bits
	CrackTime string  // human-readable estimate
}

// Assess analyzes a candidate vault password. userInputs are strings an
// attacker would try first, such as the file name being protected.
func Assess(password string, userInputs ...string) Assessment {
	match := zxcvbn.PasswordStrength(password, userInputs)
	return Assessment{
		Strength:  strengthFromScore(match.Score),
		Score:     match.Score,
		Entropy:   match.Entropy,
		CrackTime: match.CrackTimeDisplay,
	}
}

// CheckPolicy rejects passwords that are too short or too guessable to
// protect a file with.
func CheckPolicy(password string, userInputs ...string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if a := Assess(password, userInputs...); a.Score < MinScore {
		return fmt.Errorf("%w (score %d, crackable in %s)", ErrPasswordTooWeak, a.Score, a.CrackTime)
	}
	return nil
}

func strengthFromScore(score int) PasswordStrength {
	switch {
	case score <= 1:
		return PasswordWeak
	case score == 2:
		return PasswordFair
	case score == 3:
		return PasswordGood
	default:
		return PasswordStrong
	}
}
