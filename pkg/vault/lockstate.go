package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Failed-unlock cooldown thresholds. Escalating cooldowns resist
// brute-force guessing of the protection password:
// 5 failures -> 30s, 10 failures -> 5min, 20 failures -> 30min.
const (
	cooldownThreshold1 = 5
	cooldownThreshold2 = 10
	cooldownThreshold3 = 20

	cooldownDuration1 = 30 * time.Second
	cooldownDuration2 = 5 * time.Minute
	cooldownDuration3 = 30 * time.Minute
)

// lockState tracks failed unlock attempts for cooldown enforcement.
// It is persisted so restarting the process does not reset the clock.
type lockState struct {
	FailedAttempts int       `json:"failed_attempts"`
	LastAttempt    time.Time `json:"last_attempt"`
	CooldownUntil  time.Time `json:"cooldown_until"`
}

func (v *Vault) lockStatePath() string {
	return filepath.Join(v.dir, stateFileName)
}

func (v *Vault) loadLockState() (*lockState, error) {
	data, err := os.ReadFile(v.lockStatePath())
	if err != nil {
		if os.IsNotExist(err) {
			return &lockState{}, nil
		}
		return nil, fmt.Errorf("%w: read lock state: %v", ErrIO, err)
	}

	var state lockState
	if err := json.Unmarshal(data, &state); err != nil {
		// Treat a corrupt state file as empty rather than locking the
		// owner out of their own vault.
		return &lockState{}, nil
	}
	return &state, nil
}

func (v *Vault) saveLockState(state *lockState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: marshal lock state: %v", ErrIO, err)
	}
	if err := os.WriteFile(v.lockStatePath(), data, 0600); err != nil {
		return fmt.Errorf("%w: write lock state: %v", ErrIO, err)
	}
	return nil
}

// clearLockState removes the lock state (called on successful unlock).
func (v *Vault) clearLockState() error {
	if err := os.Remove(v.lockStatePath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove lock state: %v", ErrIO, err)
	}
	return nil
}

// checkCooldown returns ErrCooldownActive with the remaining duration if
// a cooldown is in effect.
func (v *Vault) checkCooldown() (time.Duration, error) {
	state, err := v.loadLockState()
	if err != nil {
		return 0, err
	}

	now := v.now()
	if !state.CooldownUntil.IsZero() && now.Before(state.CooldownUntil) {
		remaining := state.CooldownUntil.Sub(now)
		return remaining, fmt.Errorf("%w: retry in %v", ErrCooldownActive, remaining.Round(time.Second))
	}

	return 0, nil
}

// recordFailedAttempt bumps the failure counter and activates a cooldown
// once a threshold is crossed. Returns the cooldown applied, if any.
func (v *Vault) recordFailedAttempt() (time.Duration, error) {
	state, err := v.loadLockState()
	if err != nil {
		return 0, err
	}

	state.FailedAttempts++
	state.LastAttempt = v.now()

	var cooldown time.Duration
	switch {
	case state.FailedAttempts >= cooldownThreshold3:
		cooldown = cooldownDuration3
	case state.FailedAttempts >= cooldownThreshold2:
		cooldown = cooldownDuration2
	case state.FailedAttempts >= cooldownThreshold1:
		cooldown = cooldownDuration1
	}
	if cooldown > 0 {
		state.CooldownUntil = v.now().Add(cooldown)
	}

	if err := v.saveLockState(state); err != nil {
		return cooldown, err
	}
	return cooldown, nil
}
