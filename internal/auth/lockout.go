package auth

import "time"

const (
	defaultLockoutThreshold = 4
	defaultLockoutDuration  = time.Minute
)

// LockoutState is the lockout view of a user row.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// LockoutDecision is the next state plus what the transition means.
// Triggered is set only on the attempt that locked the account.
type LockoutDecision struct {
	State     LockoutState
	Locked    bool
	Triggered bool
	Changed   bool
}

// LockoutPolicy decides lockout transitions. All methods are pure.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: defaultLockoutThreshold, Duration: defaultLockoutDuration}
}

// Gate reports whether attempts are refused before any credential check.
func (p LockoutPolicy) Gate(state LockoutState, now time.Time) (time.Time, bool) {
	if state.LockedUntil != nil && state.LockedUntil.After(now) {
		return *state.LockedUntil, true
	}
	return time.Time{}, false
}

// Failure records one failed credential check. The counter always advances;
// a new lock is set only when the threshold is reached and no lock is active.
func (p LockoutPolicy) Failure(state LockoutState, now time.Time) LockoutDecision {
	next := LockoutState{
		FailedAttempts: state.FailedAttempts + 1,
		LockedUntil:    state.LockedUntil,
	}

	_, active := p.Gate(state, now)
	triggered := false
	if !active && next.FailedAttempts >= p.threshold() {
		until := now.UTC().Add(p.duration())
		next.LockedUntil = &until
		triggered = true
	}

	_, locked := p.Gate(next, now)
	return LockoutDecision{
		State:     next,
		Locked:    locked,
		Triggered: triggered,
		Changed:   true,
	}
}

// Success clears both counters after a correct password.
func (p LockoutPolicy) Success(state LockoutState) LockoutDecision {
	return LockoutDecision{
		State:   LockoutState{},
		Changed: state.FailedAttempts > 0 || state.LockedUntil != nil,
	}
}

func (p LockoutPolicy) threshold() int {
	if p.Threshold <= 0 {
		return defaultLockoutThreshold
	}
	return p.Threshold
}

func (p LockoutPolicy) duration() time.Duration {
	if p.Duration <= 0 {
		return defaultLockoutDuration
	}
	return p.Duration
}
