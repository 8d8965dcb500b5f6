package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lewtec/demarcador/internal/domain"
)

// ImageRepository implements domain.ImageRepository over SQLite
type ImageRepository struct {
	db DBTX
}

// NewImageRepository creates a new ImageRepository
func NewImageRepository(db DBTX) *ImageRepository {
	return &ImageRepository{db: db}
}

// Create inserts an image or refreshes the name and size of a known one
func (r *ImageRepository) Create(ctx context.Context, img domain.Image) (*domain.Image, error) {
	if img.IngestedAt.IsZero() {
		img.IngestedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO images (id, filename, width, height, ingested_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET filename = excluded.filename, width = excluded.width, height = excluded.height`,
		img.ID, img.Filename, img.Width, img.Height, formatTime(img.IngestedAt))
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, img.ID)
}

// GetByID retrieves an image by its content hash, nil when unknown
func (r *ImageRepository) GetByID(ctx context.Context, id string) (*domain.Image, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, filename, width, height, ingested_at FROM images WHERE id = ?`, id)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

// List retrieves all images ordered by file name
func (r *ImageRepository) List(ctx context.Context) ([]*domain.Image, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, filename, width, height, ingested_at FROM images ORDER BY filename, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, img)
	}
	return result, rows.Err()
}

// FetchImages returns the image set. A database holds a single dataset so
// datasetID is not used.
func (r *ImageRepository) FetchImages(ctx context.Context, datasetID string) ([]domain.Image, error) {
	images, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Image, len(images))
	for i, img := range images {
		out[i] = *img
	}
	return out, nil
}

// Count returns the total number of images
func (r *ImageRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&n)
	return n, err
}

// Delete removes an image and, through the foreign key, its annotations
func (r *ImageRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(s scanner) (*domain.Image, error) {
	var (
		img        domain.Image
		ingestedAt string
	)
	if err := s.Scan(&img.ID, &img.Filename, &img.Width, &img.Height, &ingestedAt); err != nil {
		return nil, err
	}
	t, err := parseTime(ingestedAt)
	if err != nil {
		return nil, err
	}
	img.IngestedAt = t
	return &img, nil
}

// Verify that ImageRepository implements domain.ImageRepository
var _ domain.ImageRepository = (*ImageRepository)(nil)
