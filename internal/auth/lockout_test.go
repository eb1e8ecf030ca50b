package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockoutPolicy_Gate(t *testing.T) {
	policy := DefaultLockoutPolicy()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(30 * time.Second)
	past := now.Add(-time.Second)

	until, locked := policy.Gate(LockoutState{LockedUntil: &future}, now)
	assert.True(t, locked)
	assert.Equal(t, future, until)

	_, locked = policy.Gate(LockoutState{LockedUntil: &past}, now)
	assert.False(t, locked)

	_, locked = policy.Gate(LockoutState{FailedAttempts: 10}, now)
	assert.False(t, locked)

	_, locked = policy.Gate(LockoutState{LockedUntil: &now}, now)
	assert.False(t, locked, "a lock ending exactly now has elapsed")
}

func TestLockoutPolicy_FailureCountsUpToThreshold(t *testing.T) {
	policy := LockoutPolicy{Threshold: 4, Duration: time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	state := LockoutState{}
	for attempt := 1; attempt <= 3; attempt++ {
		decision := policy.Failure(state, now)
		assert.Equal(t, attempt, decision.State.FailedAttempts)
		assert.Nil(t, decision.State.LockedUntil)
		assert.False(t, decision.Locked)
		assert.False(t, decision.Triggered)
		assert.True(t, decision.Changed)
		state = decision.State
	}

	decision := policy.Failure(state, now)
	assert.Equal(t, 4, decision.State.FailedAttempts)
	require.NotNil(t, decision.State.LockedUntil)
	assert.Equal(t, now.Add(time.Minute), *decision.State.LockedUntil)
	assert.True(t, decision.Locked)
	assert.True(t, decision.Triggered)
}

func TestLockoutPolicy_FailureDuringActiveLockDoesNotRetrigger(t *testing.T) {
	policy := LockoutPolicy{Threshold: 4, Duration: time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(40 * time.Second)

	decision := policy.Failure(LockoutState{FailedAttempts: 4, LockedUntil: &until}, now)
	assert.Equal(t, 5, decision.State.FailedAttempts)
	require.NotNil(t, decision.State.LockedUntil)
	assert.Equal(t, until, *decision.State.LockedUntil)
	assert.True(t, decision.Locked)
	assert.False(t, decision.Triggered)
}

func TestLockoutPolicy_FailureAfterLockElapsedRelocks(t *testing.T) {
	policy := LockoutPolicy{Threshold: 4, Duration: time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Second)

	decision := policy.Failure(LockoutState{FailedAttempts: 4, LockedUntil: &expired}, now)
	assert.Equal(t, 5, decision.State.FailedAttempts)
	require.NotNil(t, decision.State.LockedUntil)
	assert.Equal(t, now.Add(time.Minute), *decision.State.LockedUntil)
	assert.True(t, decision.Triggered)
}

func TestLockoutPolicy_Success(t *testing.T) {
	policy := DefaultLockoutPolicy()
	until := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	decision := policy.Success(LockoutState{FailedAttempts: 2})
	assert.True(t, decision.Changed)
	assert.Equal(t, LockoutState{}, decision.State)

	decision = policy.Success(LockoutState{LockedUntil: &until})
	assert.True(t, decision.Changed)
	assert.Nil(t, decision.State.LockedUntil)

	decision = policy.Success(LockoutState{})
	assert.False(t, decision.Changed)
}

func TestLockoutPolicy_ZeroValueUsesDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	decision := LockoutPolicy{}.Failure(LockoutState{FailedAttempts: 3}, now)
	assert.True(t, decision.Triggered)
	require.NotNil(t, decision.State.LockedUntil)
	assert.Equal(t, now.Add(time.Minute), *decision.State.LockedUntil)
}
