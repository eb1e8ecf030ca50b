package auth

import (
	"context"
	"errors"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

// CredentialStore persists users and their lockout counters.
// UpdateLockout must run apply and write its result atomically with respect
// to other UpdateLockout calls for the same user.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	Create(ctx context.Context, user User) error
	UpdateLockout(ctx context.Context, userID string, apply func(LockoutState) LockoutDecision) (LockoutDecision, error)
	UpsertSeedUser(ctx context.Context, email, passwordHash string) error
}
