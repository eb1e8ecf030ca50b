package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"honkspotter/internal/db"
)

var ErrImageNotFound = errors.New("image not found")

type Image struct {
	ID        string
	URL       string
	PublicID  string
	CreatedAt time.Time
}

// Upload is a sanitized image ready for the storage backend.
type Upload struct {
	Data        []byte
	Filename    string
	PublicID    string
	ContentType string
}

type StoredImage struct {
	URL      string
	PublicID string
}

type Repository struct {
	pool db.Pool
}

func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, image Image) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO images (id, url, public_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, image.ID, image.URL, image.PublicID, image.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}

	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (Image, error) {
	var image Image
	err := r.pool.QueryRow(ctx, `
		SELECT id, url, public_id, created_at
		FROM images
		WHERE id = $1
	`, id).Scan(&image.ID, &image.URL, &image.PublicID, &image.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Image{}, ErrImageNotFound
		}
		return Image{}, fmt.Errorf("query image: %w", err)
	}

	return image, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrImageNotFound
	}

	return nil
}

// ListOrphans returns images created before cutoff that no sighting or
// profile refers to, oldest first.
func (r *Repository) ListOrphans(ctx context.Context, cutoff time.Time, limit int) ([]Image, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.url, i.public_id, i.created_at
		FROM images i
		WHERE i.created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM sightings s WHERE s.image = i.id::text)
		  AND NOT EXISTS (SELECT 1 FROM users u WHERE u.profile_picture = i.id::text)
		ORDER BY i.created_at ASC
		LIMIT $2
	`, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query orphan images: %w", err)
	}
	defer rows.Close()

	images := make([]Image, 0)
	for rows.Next() {
		var image Image
		if err := rows.Scan(&image.ID, &image.URL, &image.PublicID, &image.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan orphan image: %w", err)
		}
		images = append(images, image)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orphan images: %w", err)
	}

	return images, nil
}
