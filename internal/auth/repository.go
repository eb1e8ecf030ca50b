package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"honkspotter/internal/db"
)

const userColumns = `id, email, username, password_hash, description, profile_picture,
		failed_login_attempts, account_locked_until, created_at, updated_at`

// Repository is the Postgres CredentialStore.
type Repository struct {
	pool db.Pool
}

func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
	`, email).Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.Description,
		&user.ProfilePicture,
		&user.FailedLoginAttempts,
		&user.AccountLockedUntil,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user by email: %w", err)
	}

	return user, nil
}

func (r *Repository) Create(ctx context.Context, user User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, failed_login_attempts, account_locked_until, created_at, updated_at)
		VALUES ($1, $2, $3, 0, NULL, $4, $4)
	`, user.ID, user.Email, user.PasswordHash, user.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *Repository) UpdateLockout(ctx context.Context, userID string, apply func(LockoutState) LockoutDecision) (LockoutDecision, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return LockoutDecision{}, fmt.Errorf("begin lockout tx: %w", err)
	}

	decision, err := updateLockoutTx(ctx, tx, userID, apply)
	if err != nil {
		_ = tx.Rollback(ctx)
		return LockoutDecision{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return LockoutDecision{}, fmt.Errorf("commit lockout tx: %w", err)
	}

	return decision, nil
}

// updateLockoutTx holds the row lock from the SELECT until the caller ends
// the transaction.
func updateLockoutTx(ctx context.Context, tx pgx.Tx, userID string, apply func(LockoutState) LockoutDecision) (LockoutDecision, error) {
	var state LockoutState
	err := tx.QueryRow(ctx, `
		SELECT failed_login_attempts, account_locked_until
		FROM users
		WHERE id = $1
		FOR UPDATE
	`, userID).Scan(&state.FailedAttempts, &state.LockedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LockoutDecision{}, ErrUserNotFound
		}
		return LockoutDecision{}, fmt.Errorf("lock user row: %w", err)
	}

	decision := apply(state)
	if !decision.Changed {
		return decision, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE users
		SET failed_login_attempts = $2, account_locked_until = $3, updated_at = NOW()
		WHERE id = $1
	`, userID, decision.State.FailedAttempts, decision.State.LockedUntil)
	if err != nil {
		return LockoutDecision{}, fmt.Errorf("update lockout fields: %w", err)
	}

	return decision, nil
}

// UpsertSeedUser creates the account or replaces its password and clears
// any lockout left on it.
func (r *Repository) UpsertSeedUser(ctx context.Context, email, passwordHash string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate uuid v7: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, failed_login_attempts, account_locked_until, created_at, updated_at)
		VALUES ($1, $2, $3, 0, NULL, $4, $4)
		ON CONFLICT (email) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			failed_login_attempts = 0,
			account_locked_until = NULL,
			updated_at = EXCLUDED.updated_at
	`, id.String(), email, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert seed user: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
