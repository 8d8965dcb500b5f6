package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every component. Callers match with errors.Is.
var (
	// ErrValidation reports malformed input: empty files, unparsable records,
	// unknown category references, boxes violating the geometry invariants.
	ErrValidation = errors.New("validation error")

	// ErrNotFound reports an unknown annotation or category id.
	ErrNotFound = errors.New("not found")

	// ErrConflict reports a category delete that would orphan annotations.
	ErrConflict = errors.New("conflict")

	// ErrState reports an action that is not allowed in the current editor state.
	ErrState = errors.New("invalid state")
)

var (
	ErrNoCategorySelected = fmt.Errorf("%w: no category selected", ErrState)
	ErrDrawingInProgress  = fmt.Errorf("%w: drawing already in progress", ErrState)
	ErrFileEmpty          = fmt.Errorf("%w: File is empty", ErrValidation)
	ErrCategoryRequired   = fmt.Errorf("%w: category required", ErrValidation)
)

// Validationf builds an ErrValidation with a formatted detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf builds an ErrNotFound with a formatted detail.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflictf builds an ErrConflict with a formatted detail.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
