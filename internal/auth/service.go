package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"honkspotter/internal/observability"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	csrfTokenBytes    = 32
)

// Service owns login, signup, refresh and logout. Apart from the lazily
// built dummy digest it only holds configuration set before serving.
type Service struct {
	store      CredentialStore
	hasher     PasswordHasher
	tokens     *TokenIssuer
	policy     LockoutPolicy
	accessTTL  time.Duration
	refreshTTL time.Duration
	security   *observability.Logger
	debug      *observability.Logger
	metrics    *observability.Metrics
	now        func() time.Time

	dummyOnce   sync.Once
	dummyDigest string
}

func NewService(store CredentialStore, hasher PasswordHasher, tokens *TokenIssuer, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Service{
		store:      store,
		hasher:     hasher,
		tokens:     tokens,
		policy:     DefaultLockoutPolicy(),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		security:   logger.Channel(observability.ChannelSecurity),
		debug:      logger.Channel(observability.ChannelDebug),
		now:        time.Now,
	}
}

func (s *Service) WithSecurityConfig(maxAttempts int, lockDuration time.Duration, accessTTL time.Duration, refreshTTL time.Duration) {
	if maxAttempts > 0 {
		s.policy.Threshold = maxAttempts
	}
	if lockDuration > 0 {
		s.policy.Duration = lockDuration
	}
	if accessTTL > 0 {
		s.accessTTL = accessTTL
	}
	if refreshTTL > 0 {
		s.refreshTTL = refreshTTL
	}
}

func (s *Service) WithMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// WithClock drives both lockout decisions and token timestamps from now.
func (s *Service) WithClock(now func() time.Time) {
	s.now = now
	s.tokens = s.tokens.WithClock(now)
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	fields := logFields(ctx)

	if email == "" || password == "" {
		s.security.Warn("login_failed", with(fields, "reason", "missing_fields"))
		return Session{}, badRequest("missing email or password")
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.verifyDummy(password)
			s.rejectLogin(fields)
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, internalError("find user", err)
	}

	if until, locked := s.policy.Gate(user.Lockout(), s.now().UTC()); locked {
		s.security.Warn("login_locked", with(fields, "locked_until", until.UTC().Format(time.RFC3339)))
		s.metrics.AuthEvent("login_locked")
		return Session{}, accountLocked(until)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return Session{}, internalError("verify password", err)
	}

	if !ok {
		decision, err := s.store.UpdateLockout(ctx, user.ID, func(state LockoutState) LockoutDecision {
			return s.policy.Failure(state, s.now().UTC())
		})
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				s.rejectLogin(fields)
				return Session{}, ErrInvalidCredentials
			}
			return Session{}, internalError("record failed login", err)
		}

		if decision.Triggered {
			s.security.Warn("lockout_triggered", with(fields,
				"failed_attempts", decision.State.FailedAttempts,
				"locked_until", decision.State.LockedUntil.UTC().Format(time.RFC3339),
			))
			s.metrics.AuthEvent("lockout_triggered")
		}
		if decision.Locked {
			return Session{}, accountLocked(*decision.State.LockedUntil)
		}

		s.rejectLogin(fields)
		return Session{}, ErrInvalidCredentials
	}

	// The gate is checked again under the row lock: a concurrent failure may
	// have locked the account while the password was being verified.
	decision, err := s.store.UpdateLockout(ctx, user.ID, func(state LockoutState) LockoutDecision {
		if _, locked := s.policy.Gate(state, s.now().UTC()); locked {
			return LockoutDecision{State: state, Locked: true}
		}
		return s.policy.Success(state)
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.rejectLogin(fields)
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, internalError("reset lockout", err)
	}
	if decision.Locked {
		until := *decision.State.LockedUntil
		s.security.Warn("login_locked", with(fields, "locked_until", until.UTC().Format(time.RFC3339)))
		s.metrics.AuthEvent("login_locked")
		return Session{}, accountLocked(until)
	}
	user.FailedLoginAttempts = 0
	user.AccountLockedUntil = nil

	session, err := s.issueSession(user)
	if err != nil {
		return Session{}, err
	}

	s.security.Info("login_succeeded", fields)
	s.debug.Debug("login_succeeded", map[string]any{"user_id": user.ID})
	s.metrics.AuthEvent("login_succeeded")

	return session, nil
}

func (s *Service) Signup(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	fields := logFields(ctx)

	if email == "" || password == "" {
		s.security.Warn("signup_failed", with(fields, "reason", "missing_fields"))
		return Session{}, badRequest("missing email or password")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return Session{}, badRequest("invalid email address")
	}
	if err := ValidatePasswordStrength(password); err != nil {
		return Session{}, err
	}

	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		s.security.Warn("signup_failed", with(fields, "reason", "conflict"))
		return Session{}, ErrConflict
	} else if !errors.Is(err, ErrUserNotFound) {
		return Session{}, internalError("find user", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Session{}, internalError("hash password", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Session{}, internalError("generate user id", err)
	}

	now := s.now().UTC()
	user := User{
		ID:           id.String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			s.security.Warn("signup_failed", with(fields, "reason", "conflict"))
			return Session{}, ErrConflict
		}
		return Session{}, internalError("create user", err)
	}

	session, err := s.issueSession(user)
	if err != nil {
		return Session{}, err
	}

	s.security.Info("signup_succeeded", fields)
	s.debug.Debug("signup_succeeded", map[string]any{"user_id": user.ID})
	s.metrics.AuthEvent("signup_succeeded")

	return session, nil
}

// Refresh mints a new pair from a refresh token. The previous refresh token
// is not revoked and stays usable until it expires.
func (s *Service) Refresh(ctx context.Context, refreshToken, csrfToken string) (Session, error) {
	fields := logFields(ctx)

	claims, err := s.tokens.Verify(refreshToken, TokenRefresh)
	if err != nil {
		s.security.Warn("refresh_rejected", with(fields, "reason", tokenFailureReason(err)))
		s.metrics.AuthEvent("refresh_rejected")
		return Session{}, unauthorized(tokenFailureMessage(err), err)
	}

	if csrfToken == "" || subtle.ConstantTimeCompare([]byte(csrfToken), []byte(claims.CSRF)) != 1 {
		s.security.Warn("refresh_rejected", with(fields, "reason", "csrf_mismatch"))
		s.metrics.AuthEvent("refresh_rejected")
		return Session{}, unauthorized("CSRF token mismatch", nil)
	}

	user, err := s.store.FindByEmail(ctx, claims.Identity)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.security.Warn("refresh_rejected", with(fields, "reason", "user_not_found"))
			return Session{}, ErrNotFound
		}
		return Session{}, internalError("find user", err)
	}

	session, err := s.issueSession(user)
	if err != nil {
		return Session{}, err
	}

	s.security.Info("token_refreshed", fields)
	s.debug.Debug("token_refreshed", map[string]any{"user_id": user.ID})
	s.metrics.AuthEvent("token_refreshed")

	return session, nil
}

// Logout has nothing to invalidate server side; clearing cookies is the
// transport's job.
func (s *Service) Logout(ctx context.Context, claims Claims) error {
	s.security.Info("logged_out", logFields(ctx))
	s.debug.Debug("logged_out", map[string]any{"user_id": claims.Profile.UserID})
	s.metrics.AuthEvent("logged_out")
	return nil
}

func (s *Service) Authenticate(token string) (Claims, error) {
	claims, err := s.tokens.Verify(token, TokenAccess)
	if err != nil {
		return Claims{}, unauthorized(tokenFailureMessage(err), err)
	}
	return claims, nil
}

// BootstrapFromEnv seeds one account. The complexity rules are not applied
// so fixtures like test@test.com/test can be loaded.
func (s *Service) BootstrapFromEnv(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)

	if email == "" && password == "" {
		return nil
	}
	if email == "" || password == "" {
		return fmt.Errorf("SEED_USER_EMAIL and SEED_USER_PASSWORD are required together")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}
	if err := s.store.UpsertSeedUser(ctx, email, hash); err != nil {
		return err
	}

	s.debug.Debug("seed_user_upserted", map[string]any{"email": email})
	return nil
}

func (s *Service) issueSession(user User) (Session, error) {
	csrf, err := randomToken(csrfTokenBytes)
	if err != nil {
		return Session{}, internalError("generate csrf token", err)
	}

	access, accessExpiresAt, err := s.tokens.IssueAccess(user.Email, user.ProfileClaims(), s.accessTTL)
	if err != nil {
		return Session{}, internalError("issue access token", err)
	}

	refresh, refreshExpiresAt, err := s.tokens.IssueRefresh(user.Email, csrf, s.refreshTTL)
	if err != nil {
		return Session{}, internalError("issue refresh token", err)
	}

	return Session{
		AccessToken:      access,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExpiresAt,
		CSRFToken:        csrf,
	}, nil
}

func (s *Service) rejectLogin(fields map[string]any) {
	s.security.Warn("login_failed", with(fields, "reason", "invalid_credentials"))
	s.metrics.AuthEvent("login_failed")
}

// verifyDummy spends one hash verification on an unknown email so the
// response time does not reveal whether the account exists.
func (s *Service) verifyDummy(password string) {
	s.dummyOnce.Do(func() {
		seed, err := randomToken(16)
		if err != nil {
			return
		}
		if digest, err := s.hasher.Hash(seed); err == nil {
			s.dummyDigest = digest
		}
	})

	if s.dummyDigest != "" {
		_, _ = s.hasher.Verify(password, s.dummyDigest)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func tokenFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenWrongType):
		return "wrong_type"
	default:
		return "invalid"
	}
}

func tokenFailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "token has expired"
	case errors.Is(err, ErrTokenWrongType):
		return "wrong token type"
	default:
		return "invalid token"
	}
}

func logFields(ctx context.Context) map[string]any {
	fields := map[string]any{}
	if ip := ClientIPFromContext(ctx); ip != "" {
		fields["ip"] = ip
	}
	return fields
}

func with(fields map[string]any, kv ...any) map[string]any {
	out := make(map[string]any, len(fields)+len(kv)/2)
	for k, v := range fields {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			out[key] = kv[i+1]
		}
	}
	return out
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
