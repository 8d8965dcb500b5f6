package repository

import (
	"context"

	"github.com/lewtec/demarcador/internal/domain"
)

// AnnotationRepository implements domain.AnnotationPersister over SQLite
type AnnotationRepository struct {
	db DBTX
}

// NewAnnotationRepository creates a new AnnotationRepository
func NewAnnotationRepository(db DBTX) *AnnotationRepository {
	return &AnnotationRepository{db: db}
}

const annotationColumns = `id, image_id, category_id, x, y, width, height, state, created_by, created_at, updated_by, updated_at`

// Persist creates or updates an annotation record
func (r *AnnotationRepository) Persist(ctx context.Context, a domain.Annotation) (string, error) {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO annotations (`+annotationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  image_id = excluded.image_id,
  category_id = excluded.category_id,
  x = excluded.x,
  y = excluded.y,
  width = excluded.width,
  height = excluded.height,
  state = excluded.state,
  updated_by = excluded.updated_by,
  updated_at = excluded.updated_at`,
		a.ID, a.ImageID, a.CategoryID, a.BBox.X, a.BBox.Y, a.BBox.Width, a.BBox.Height,
		string(a.State), a.CreatedBy, formatTime(a.CreatedAt), a.UpdatedBy, formatTime(a.UpdatedAt))
	if err != nil {
		return "", err
	}
	return a.ID, nil
}

// RemovePersisted deletes an annotation record; unknown ids are ignored
func (r *AnnotationRepository) RemovePersisted(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM annotations WHERE id = ?`, id)
	return err
}

// ListPersisted returns every annotation in creation order
func (r *AnnotationRepository) ListPersisted(ctx context.Context) ([]domain.Annotation, error) {
	return r.query(ctx, `SELECT `+annotationColumns+` FROM annotations ORDER BY created_at, rowid`)
}

// ListByImage returns the annotations of one image in creation order
func (r *AnnotationRepository) ListByImage(ctx context.Context, imageID string) ([]domain.Annotation, error) {
	return r.query(ctx, `SELECT `+annotationColumns+` FROM annotations WHERE image_id = ? ORDER BY created_at, rowid`, imageID)
}

func (r *AnnotationRepository) query(ctx context.Context, query string, args ...any) ([]domain.Annotation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Annotation
	for rows.Next() {
		var (
			a                    domain.Annotation
			state                string
			createdAt, updatedAt string
		)
		err := rows.Scan(&a.ID, &a.ImageID, &a.CategoryID, &a.BBox.X, &a.BBox.Y, &a.BBox.Width, &a.BBox.Height,
			&state, &a.CreatedBy, &createdAt, &a.UpdatedBy, &updatedAt)
		if err != nil {
			return nil, err
		}
		a.State = domain.State(state)
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// Verify that AnnotationRepository implements domain.AnnotationPersister
var _ domain.AnnotationPersister = (*AnnotationRepository)(nil)
