package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenWrongType = errors.New("wrong token type")
)

type ProfileClaims struct {
	UserID         string
	Username       string
	ProfilePicture string
}

// Claims is the verified content of a token. Identity is the account email.
type Claims struct {
	Identity  string
	Type      TokenType
	Profile   ProfileClaims
	CSRF      string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	Type           TokenType `json:"typ"`
	UserID         string    `json:"user_id,omitempty"`
	Username       string    `json:"username,omitempty"`
	ProfilePicture string    `json:"profile_picture,omitempty"`
	CSRF           string    `json:"csrf,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 tokens. It holds no mutable state
// after construction and is safe for concurrent use.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &TokenIssuer{
		secret: []byte(secret),
		now:    time.Now,
	}, nil
}

// WithClock replaces the time source used for iat/exp and for expiry checks.
func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	return &TokenIssuer{secret: i.secret, now: now}
}

func (i *TokenIssuer) IssueAccess(identity string, profile ProfileClaims, ttl time.Duration) (string, time.Time, error) {
	return i.sign(identity, tokenClaims{
		Type:           TokenAccess,
		UserID:         profile.UserID,
		Username:       profile.Username,
		ProfilePicture: profile.ProfilePicture,
	}, ttl)
}

func (i *TokenIssuer) IssueRefresh(identity, csrf string, ttl time.Duration) (string, time.Time, error) {
	return i.sign(identity, tokenClaims{
		Type: TokenRefresh,
		CSRF: csrf,
	}, ttl)
}

func (i *TokenIssuer) sign(identity string, claims tokenClaims, ttl time.Duration) (string, time.Time, error) {
	if identity == "" {
		return "", time.Time{}, errors.New("token identity is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("invalid token ttl %s", ttl)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate token id: %w", err)
	}

	now := i.now().UTC()
	expiresAt := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   identity,
		ID:        id.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign jwt: %w", err)
	}

	return encoded, expiresAt.Truncate(time.Second), nil
}

func (i *TokenIssuer) Verify(raw string, expected TokenType) (Claims, error) {
	if raw == "" {
		return Claims{}, ErrTokenInvalid
	}

	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return Claims{}, ErrTokenInvalid
	}
	if claims.Type != expected {
		return Claims{}, ErrTokenWrongType
	}

	result := Claims{
		Identity: claims.Subject,
		Type:     claims.Type,
		Profile: ProfileClaims{
			UserID:         claims.UserID,
			Username:       claims.Username,
			ProfilePicture: claims.ProfilePicture,
		},
		CSRF:    claims.CSRF,
		TokenID: claims.ID,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}

	return result, nil
}
