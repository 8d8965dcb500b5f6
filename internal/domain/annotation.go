package domain

import (
	"context"
	"math"
	"time"
)

// State is the review status of an annotation
type State string

const (
	StateDraft    State = "draft"
	StateReviewed State = "reviewed"
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

// Valid reports whether s is one of the known states
func (s State) Valid() bool {
	switch s {
	case StateDraft, StateReviewed, StateApproved, StateRejected:
		return true
	}
	return false
}

// BBox is a rectangle in normalized image coordinates, anchored top-left
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Validate checks the at-rest invariants of a normalized box
func (b BBox) Validate() error {
	for _, v := range []float64{b.X, b.Y, b.Width, b.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Validationf("bbox has a non-finite coordinate")
		}
	}
	if b.Width <= 0 || b.Height <= 0 {
		return Validationf("bbox width and height must be > 0, got %gx%g", b.Width, b.Height)
	}
	if b.X < 0 || b.Y < 0 {
		return Validationf("bbox origin must be >= 0, got (%g, %g)", b.X, b.Y)
	}
	if b.X+b.Width > 1 || b.Y+b.Height > 1 {
		return Validationf("bbox exceeds the image: x+width=%g y+height=%g", b.X+b.Width, b.Y+b.Height)
	}
	return nil
}

// Center returns the center point of the box
func (b BBox) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Annotation represents a single box drawn over an image
type Annotation struct {
	ID         string    `json:"id"`
	ImageID    string    `json:"imageId"`
	CategoryID string    `json:"categoryId"`
	BBox       BBox      `json:"bbox"`
	CreatedBy  string    `json:"createdBy"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedBy  string    `json:"updatedBy"`
	UpdatedAt  time.Time `json:"updatedAt"`
	State      State     `json:"state"`
}

// AnnotationPatch holds the optional fields of an annotation update
type AnnotationPatch struct {
	CategoryID *string `json:"categoryId,omitempty"`
	State      *State  `json:"state,omitempty"`
	BBox       *BBox   `json:"bbox,omitempty"`
	UpdatedBy  string  `json:"updatedBy,omitempty"`
}

// AnnotationPersister stores annotations on behalf of the store
type AnnotationPersister interface {
	// Persist creates or updates the record and returns its id
	Persist(ctx context.Context, a Annotation) (string, error)

	// RemovePersisted removes the record with the given id
	RemovePersisted(ctx context.Context, id string) error

	// ListPersisted returns every stored annotation
	ListPersisted(ctx context.Context) ([]Annotation, error)
}
