package repository

import (
	"context"

	"github.com/lewtec/demarcador/internal/domain"
)

// CategoryRepository implements domain.CategoryPersister over SQLite
type CategoryRepository struct {
	db DBTX
}

// NewCategoryRepository creates a new CategoryRepository
func NewCategoryRepository(db DBTX) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// SaveCategory creates or updates a category record
func (r *CategoryRepository) SaveCategory(ctx context.Context, c domain.Category) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO categories (id, name, color, description, position) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  name = excluded.name,
  color = excluded.color,
  description = excluded.description,
  position = excluded.position`,
		c.ID, c.Name, c.Color, c.Description, c.Order)
	return err
}

// DeleteCategory removes a category record
func (r *CategoryRepository) DeleteCategory(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	return err
}

// ListCategories returns every category by position
func (r *CategoryRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, color, description, position FROM categories ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &c.Description, &c.Order); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// Verify that CategoryRepository implements domain.CategoryPersister
var _ domain.CategoryPersister = (*CategoryRepository)(nil)
