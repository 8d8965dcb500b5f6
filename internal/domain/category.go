package domain

import "context"

// Category is a label class boxes are assigned to
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order"`
}

// CategoryPatch holds the optional fields of a category update
type CategoryPatch struct {
	Name        *string `json:"name,omitempty"`
	Color       *string `json:"color,omitempty"`
	Description *string `json:"description,omitempty"`
}

// DefaultCategories is the set seeded into an empty registry. Their ids
// equal their names.
func DefaultCategories() []Category {
	return []Category{
		{ID: "Defect", Name: "Defect", Color: "#ef4444", Order: 1},
		{ID: "Good", Name: "Good", Color: "#22c55e", Order: 2},
		{ID: "Unknown", Name: "Unknown", Color: "#9ca3af", Order: 3},
	}
}

// CategoryPersister stores category records on behalf of the registry
type CategoryPersister interface {
	SaveCategory(ctx context.Context, c Category) error
	DeleteCategory(ctx context.Context, id string) error
	ListCategories(ctx context.Context) ([]Category, error)
}
