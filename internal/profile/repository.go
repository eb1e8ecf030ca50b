package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"honkspotter/internal/db"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
)

type Repository struct {
	pool db.Pool
}

func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Update applies the fields marked Set in one statement. Username
// uniqueness is enforced by the users.username constraint.
func (r *Repository) Update(ctx context.Context, email string, update Update, now time.Time) (Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx, `
		UPDATE users
		SET username = CASE WHEN $2::boolean THEN $3 ELSE username END,
			description = CASE WHEN $4::boolean THEN $5 ELSE description END,
			profile_picture = CASE WHEN $6::boolean THEN $7 ELSE profile_picture END,
			updated_at = $8
		WHERE email = $1
		RETURNING email, username, description, profile_picture
	`,
		email,
		update.Username.Set, update.Username.Value,
		update.Description.Set, update.Description.Value,
		update.ProfilePicture.Set, update.ProfilePicture.Value,
		now.UTC(),
	).Scan(&p.Email, &p.Username, &p.Description, &p.ProfilePicture)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrUserNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return Profile{}, ErrUsernameTaken
		}
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}

	return p, nil
}
