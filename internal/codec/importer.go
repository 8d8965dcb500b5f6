package codec

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/lewtec/demarcador/internal/domain"
	"github.com/lewtec/demarcador/internal/store"
	log "github.com/sirupsen/logrus"
)

// Annotations is the part of the store the import pipeline writes to
type Annotations interface {
	Batch(fn func() error) error
	Create(in store.NewAnnotation) (domain.Annotation, error)
}

// Categories lists the live categories in registry order
type Categories interface {
	List() []domain.Category
}

// ImageCatalog lists the images of the workspace
type ImageCatalog interface {
	Images() []domain.Image
}

// Request is one file handed to the import pipeline
type Request struct {
	Format Format
	Name   string
	Data   []byte

	// ImageID targets a YOLO label file; the file stem is used when empty
	ImageID string

	// CategoryOrder maps YOLO class indices to category ids; registry order when empty
	CategoryOrder []string

	// User is recorded as author of imported records lacking one
	User string
}

// Result summarizes an import
type Result struct {
	Format   Format        `json:"format"`
	Imported int           `json:"imported"`
	Failed   int           `json:"failed"`
	Errors   []RecordError `json:"errors"`
}

// Importer parses files and inserts their annotations as one undoable step
type Importer struct {
	annotations Annotations
	categories  Categories
	images      ImageCatalog
}

func NewImporter(annotations Annotations, categories Categories, images ImageCatalog) *Importer {
	return &Importer{annotations: annotations, categories: categories, images: images}
}

// Import runs detection, parsing and the bulk insert. Structural problems
// fail the whole import; bad records are counted and reported while the
// rest is inserted. Cancelling ctx rolls the insert back.
func (im *Importer) Import(ctx context.Context, req Request) (Result, error) {
	if len(bytes.TrimSpace(req.Data)) == 0 {
		return Result{}, domain.ErrFileEmpty
	}
	format, err := Detect(req.Format, req.Name, req.Data)
	if err != nil {
		return Result{}, err
	}

	var (
		records []decoded
		errs    []RecordError
	)
	switch format {
	case FormatJSON:
		records, errs, err = im.decodeNative(req.Data)
	case FormatYOLO:
		records, errs, err = im.decodeYOLO(req)
	case FormatCOCO:
		records, errs, err = decodeCOCO(req.Data, im.images.Images(), im.categories.List())
	default:
		err = domain.Validationf("unsupported format %q", format)
	}
	if err != nil {
		return Result{}, err
	}

	res := Result{Format: format, Errors: errs}
	err = im.annotations.Batch(func() error {
		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			a := rec.annotation
			_, err := im.annotations.Create(store.NewAnnotation{
				ImageID:    a.ImageID,
				CategoryID: a.CategoryID,
				BBox:       a.BBox,
				State:      a.State,
				CreatedBy:  firstNonEmpty(a.CreatedBy, req.User),
				CreatedAt:  a.CreatedAt,
				UpdatedBy:  a.UpdatedBy,
				UpdatedAt:  a.UpdatedAt,
			})
			if err != nil {
				res.Errors = append(res.Errors, RecordError{Record: rec.record, Err: err})
				continue
			}
			res.Imported++
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("while importing %s: %w", req.Name, err)
	}

	for i := range res.Errors {
		res.Errors[i].Source = req.Name
	}
	sort.SliceStable(res.Errors, func(i, j int) bool { return res.Errors[i].Record < res.Errors[j].Record })
	res.Failed = len(res.Errors)
	log.Printf("import: %s as %s: %d imported, %d failed", req.Name, format, res.Imported, res.Failed)
	return res, nil
}

func (im *Importer) decodeNative(data []byte) ([]decoded, []RecordError, error) {
	anns, err := DecodeNative(data)
	if err != nil {
		return nil, nil, err
	}
	known := newImageIndex(im.images.Images())
	var (
		out  []decoded
		errs []RecordError
	)
	for i, a := range anns {
		if _, ok := known.byID[a.ImageID]; !ok {
			errs = append(errs, RecordError{Record: i + 1, Err: domain.Validationf("image %q is not part of the workspace", a.ImageID)})
			continue
		}
		out = append(out, decoded{record: i + 1, annotation: a})
	}
	return out, errs, nil
}

func (im *Importer) decodeYOLO(req Request) ([]decoded, []RecordError, error) {
	imageID := req.ImageID
	known := newImageIndex(im.images.Images())
	if imageID == "" {
		stem := strings.TrimSuffix(path.Base(req.Name), path.Ext(req.Name))
		img, ok := known.byStem[stem]
		if !ok {
			return nil, nil, domain.Validationf("no image matches label file %q", req.Name)
		}
		imageID = img.ID
	} else if _, ok := known.byID[imageID]; !ok {
		return nil, nil, domain.NotFoundf("image %s", imageID)
	}

	classes := req.CategoryOrder
	if len(classes) == 0 {
		for _, c := range im.categories.List() {
			classes = append(classes, c.ID)
		}
	}
	return decodeYOLO(req.Data, imageID, classes)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
