package codec

import (
	"encoding/json"
	"fmt"

	"github.com/lewtec/demarcador/internal/domain"
)

// Dataset is the snapshot encoders work on
type Dataset struct {
	Images      []domain.Image
	Categories  []domain.Category
	Annotations []domain.Annotation
}

// RecordError is a failure tied to one input record. Record is one-based:
// a line number for YOLO, an array position for JSON and COCO.
type RecordError struct {
	Record int    `json:"record"`
	Source string `json:"source,omitempty"`
	Err    error  `json:"-"`
}

func (e *RecordError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s:%d: %v", e.Source, e.Record, e.Err)
	}
	return fmt.Sprintf("record %d: %v", e.Record, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Message is the error text without the record reference
func (e *RecordError) Message() string {
	return e.Err.Error()
}

func (e RecordError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Record  int    `json:"record"`
		Source  string `json:"source,omitempty"`
		Message string `json:"message"`
	}{e.Record, e.Source, msg})
}

// decoded is an annotation read from an input record
type decoded struct {
	record     int
	annotation domain.Annotation
}

func annotationsOf(ds []decoded) []domain.Annotation {
	out := make([]domain.Annotation, len(ds))
	for i, d := range ds {
		out[i] = d.annotation
	}
	return out
}

// imageIndex looks images up by id, file name and stem
type imageIndex struct {
	byID   map[string]domain.Image
	byName map[string]domain.Image
	byStem map[string]domain.Image
}

func newImageIndex(images []domain.Image) imageIndex {
	idx := imageIndex{
		byID:   make(map[string]domain.Image, len(images)),
		byName: make(map[string]domain.Image, len(images)),
		byStem: make(map[string]domain.Image, len(images)),
	}
	for _, img := range images {
		idx.byID[img.ID] = img
		idx.byName[img.Filename] = img
		idx.byStem[img.Stem()] = img
	}
	return idx
}

// clampBBox pulls a box that overshoots the unit square by rounding noise
// back inside it
func clampBBox(b domain.BBox) domain.BBox {
	if b.X < 0 {
		b.Width += b.X
		b.X = 0
	}
	if b.Y < 0 {
		b.Height += b.Y
		b.Y = 0
	}
	if b.X+b.Width > 1 {
		b.Width = 1 - b.X
	}
	if b.Y+b.Height > 1 {
		b.Height = 1 - b.Y
	}
	return b
}
