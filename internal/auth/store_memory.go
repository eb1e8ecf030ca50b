package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process CredentialStore. A single mutex serialises
// every operation, which gives UpdateLockout the same atomicity as a row lock.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]User
	byEmail map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return cloneUser(s.byID[id]), nil
}

func (s *MemoryStore) Create(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[user.Email]; exists {
		return ErrEmailTaken
	}

	user.FailedLoginAttempts = 0
	user.AccountLockedUntil = nil
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
	s.byID[user.ID] = cloneUser(user)
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *MemoryStore) UpdateLockout(_ context.Context, userID string, apply func(LockoutState) LockoutDecision) (LockoutDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[userID]
	if !ok {
		return LockoutDecision{}, ErrUserNotFound
	}

	decision := apply(cloneUser(user).Lockout())
	if decision.Changed {
		user.FailedLoginAttempts = decision.State.FailedAttempts
		user.AccountLockedUntil = cloneTime(decision.State.LockedUntil)
		user.UpdatedAt = time.Now().UTC()
		s.byID[userID] = user
	}
	return decision, nil
}

func (s *MemoryStore) UpsertSeedUser(_ context.Context, email, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if id, ok := s.byEmail[email]; ok {
		user := s.byID[id]
		user.PasswordHash = passwordHash
		user.FailedLoginAttempts = 0
		user.AccountLockedUntil = nil
		user.UpdatedAt = now
		s.byID[id] = user
		return nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	s.byID[id.String()] = User{
		ID:           id.String(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byEmail[email] = id.String()
	return nil
}

// Delete removes a user together with its email index entry.
func (s *MemoryStore) Delete(_ context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.byID[userID]; ok {
		delete(s.byEmail, user.Email)
		delete(s.byID, userID)
	}
}

func cloneUser(u User) User {
	u.AccountLockedUntil = cloneTime(u.AccountLockedUntil)
	return u
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	value := *t
	return &value
}
