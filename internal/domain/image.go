package domain

import (
	"context"
	"path"
	"strings"
	"time"
)

// Image represents an image to be annotated
type Image struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	URL        string    `json:"url"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	IngestedAt time.Time `json:"ingestedAt"`
}

// Stem returns the filename without directory and extension, the name
// label files are keyed by.
func (i Image) Stem() string {
	base := path.Base(strings.ReplaceAll(i.Filename, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// HasDimensions reports whether the pixel size of the image is known
func (i Image) HasDimensions() bool {
	return i.Width > 0 && i.Height > 0
}

// ImageSource supplies the image set of a dataset
type ImageSource interface {
	FetchImages(ctx context.Context, datasetID string) ([]Image, error)
}

// ImageRepository defines the interface for image storage operations
type ImageRepository interface {
	ImageSource

	// Create creates or refreshes an image record
	Create(ctx context.Context, img Image) (*Image, error)

	// GetByID retrieves an image by its content hash
	GetByID(ctx context.Context, id string) (*Image, error)

	// List retrieves all images
	List(ctx context.Context) ([]*Image, error)

	// Count returns the total number of images
	Count(ctx context.Context) (int64, error)

	// Delete removes an image by id
	Delete(ctx context.Context, id string) error
}
