package sighting

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"honkspotter/internal/db"
)

var ErrAuthorNotFound = errors.New("author not found")

type Repository struct {
	pool db.Pool
}

func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

const listColumns = `s.id, s.name, s.notes, s.coords, s.image, s.created_at,
		u.id, u.email, u.username, u.description, u.profile_picture`

// List returns sightings newest first. An empty userID lists everyone's.
func (r *Repository) List(ctx context.Context, userID string) ([]Sighting, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if userID == "" {
		rows, err = r.pool.Query(ctx, `
			SELECT `+listColumns+`
			FROM sightings s
			JOIN users u ON u.id = s.user_id
			ORDER BY s.created_at DESC
		`)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+listColumns+`
			FROM sightings s
			JOIN users u ON u.id = s.user_id
			WHERE s.user_id = $1
			ORDER BY s.created_at DESC
		`, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("query sightings: %w", err)
	}
	defer rows.Close()

	sightings := make([]Sighting, 0)
	for rows.Next() {
		var (
			s      Sighting
			author Author
			coords string
		)
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Notes, &coords, &s.Image, &s.CreatedAt,
			&author.ID, &author.Email, &author.Username, &author.Description, &author.ProfilePicture,
		); err != nil {
			return nil, fmt.Errorf("scan sighting: %w", err)
		}

		parsed, err := ParseCoords(coords)
		if err != nil {
			return nil, fmt.Errorf("sighting %s has invalid coords: %w", s.ID, err)
		}
		s.Coords = parsed
		s.User = &author
		sightings = append(sightings, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sightings: %w", err)
	}

	return sightings, nil
}

func (r *Repository) Create(ctx context.Context, s Sighting, authorID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sightings (id, name, notes, coords, image, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.Name, s.Notes, s.Coords.String(), s.Image, authorID, s.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert sighting: %w", err)
	}

	return nil
}

func (r *Repository) AuthorByEmail(ctx context.Context, email string) (Author, error) {
	var author Author
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, username, description, profile_picture
		FROM users
		WHERE email = $1
	`, email).Scan(&author.ID, &author.Email, &author.Username, &author.Description, &author.ProfilePicture)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Author{}, ErrAuthorNotFound
		}
		return Author{}, fmt.Errorf("query author: %w", err)
	}

	return author, nil
}
