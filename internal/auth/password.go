package auth

import (
	"errors"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	maxPasswordBytes  = 72
)

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	// Verify returns (false, nil) on mismatch and an error only for a
	// digest it cannot parse.
	Verify(plaintext, digest string) (bool, error)
}

type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("password cannot be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Verify(plaintext, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("verify password: %w", err)
	}
}

// ValidatePasswordStrength requires at least 8 characters drawn from all of
// upper case, lower case, digits and non-alphanumerics.
func ValidatePasswordStrength(password string) error {
	if len([]rune(password)) < minPasswordLength {
		return weakPassword(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		return weakPassword(fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r):
			hasSymbol = true
		}
	}

	switch {
	case !hasUpper:
		return weakPassword("password must contain an uppercase letter")
	case !hasLower:
		return weakPassword("password must contain a lowercase letter")
	case !hasDigit:
		return weakPassword("password must contain a digit")
	case !hasSymbol:
		return weakPassword("password must contain a special character")
	}

	return nil
}
