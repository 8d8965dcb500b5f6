package codec

import (
	"encoding/json"
	"fmt"
	"path"

	"github.com/lewtec/demarcador/internal/domain"
)

type cocoDocument struct {
	Info        cocoInfo         `json:"info"`
	Images      []cocoImage      `json:"images"`
	Annotations []cocoAnnotation `json:"annotations"`
	Categories  []cocoCategory   `json:"categories"`
}

type cocoInfo struct {
	Description string `json:"description"`
	Version     string `json:"version"`
}

type cocoImage struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type cocoCategory struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory"`
}

type cocoAnnotation struct {
	ID         int       `json:"id"`
	ImageID    int       `json:"image_id"`
	CategoryID int       `json:"category_id"`
	BBox       []float64 `json:"bbox"`
	Area       float64   `json:"area"`
	IsCrowd    int       `json:"iscrowd"`
}

// EncodeCOCO writes ds as a COCO detection document. Image ids follow the
// order of ds.Images and category ids the order of ds.Categories, both
// starting at 1. Every image needs pixel dimensions.
func EncodeCOCO(ds Dataset) ([]byte, error) {
	doc := cocoDocument{
		Info:        cocoInfo{Description: "demarcador export", Version: "1.0"},
		Images:      make([]cocoImage, 0, len(ds.Images)),
		Annotations: make([]cocoAnnotation, 0, len(ds.Annotations)),
		Categories:  make([]cocoCategory, 0, len(ds.Categories)),
	}

	images := make(map[string]cocoImage, len(ds.Images))
	for i, img := range ds.Images {
		if !img.HasDimensions() {
			return nil, domain.Validationf("image %s has no pixel dimensions", img.Filename)
		}
		ci := cocoImage{ID: i + 1, FileName: img.Filename, Width: img.Width, Height: img.Height}
		images[img.ID] = ci
		doc.Images = append(doc.Images, ci)
	}
	categories := make(map[string]int, len(ds.Categories))
	for i, c := range ds.Categories {
		categories[c.ID] = i + 1
		doc.Categories = append(doc.Categories, cocoCategory{ID: i + 1, Name: c.Name, Supercategory: "none"})
	}

	for i, a := range ds.Annotations {
		img, ok := images[a.ImageID]
		if !ok {
			return nil, domain.Validationf("annotation %s references image %s outside the export", a.ID, a.ImageID)
		}
		cat, ok := categories[a.CategoryID]
		if !ok {
			return nil, domain.Validationf("annotation %s references unknown category %s", a.ID, a.CategoryID)
		}
		w := a.BBox.Width * float64(img.Width)
		h := a.BBox.Height * float64(img.Height)
		doc.Annotations = append(doc.Annotations, cocoAnnotation{
			ID:         i + 1,
			ImageID:    img.ID,
			CategoryID: cat,
			BBox:       []float64{a.BBox.X * float64(img.Width), a.BBox.Y * float64(img.Height), w, h},
			Area:       w * h,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("while encoding COCO document: %w", err)
	}
	return data, nil
}

// DecodeCOCO reads a COCO document, matching its images to images by file
// name and its categories to categories by name
func DecodeCOCO(data []byte, images []domain.Image, categories []domain.Category) ([]domain.Annotation, []RecordError, error) {
	decoded, errs, err := decodeCOCO(data, images, categories)
	return annotationsOf(decoded), errs, err
}

func decodeCOCO(data []byte, images []domain.Image, categories []domain.Category) ([]decoded, []RecordError, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, domain.Validationf("invalid JSON: %v", err)
	}
	for _, key := range []string{"images", "annotations", "categories"} {
		if body, ok := raw[key]; !ok || string(body) == "null" {
			return nil, nil, domain.Validationf("COCO document is missing the %q array", key)
		}
	}
	var doc cocoDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, domain.Validationf("invalid COCO document: %v", err)
	}

	index := newImageIndex(images)
	cocoImages := make(map[int]cocoImage, len(doc.Images))
	for _, ci := range doc.Images {
		cocoImages[ci.ID] = ci
	}
	byName := make(map[string]string, len(categories))
	for _, c := range categories {
		byName[c.Name] = c.ID
	}
	cocoCategories := make(map[int]string, len(doc.Categories))
	for _, cc := range doc.Categories {
		cocoCategories[cc.ID] = cc.Name
	}

	var (
		out  []decoded
		errs []RecordError
	)
	for i, ca := range doc.Annotations {
		record := i + 1
		fail := func(format string, args ...any) {
			errs = append(errs, RecordError{Record: record, Err: domain.Validationf(format, args...)})
		}

		ci, ok := cocoImages[ca.ImageID]
		if !ok {
			fail("annotation %d references image_id %d missing from images", ca.ID, ca.ImageID)
			continue
		}
		img, ok := index.byName[ci.FileName]
		if !ok {
			img, ok = index.byName[path.Base(ci.FileName)]
		}
		if !ok {
			fail("image %q is not part of the workspace", ci.FileName)
			continue
		}
		name, ok := cocoCategories[ca.CategoryID]
		if !ok {
			fail("annotation %d references category_id %d missing from categories", ca.ID, ca.CategoryID)
			continue
		}
		categoryID, ok := byName[name]
		if !ok {
			fail("category %q does not exist", name)
			continue
		}
		if len(ca.BBox) != 4 {
			fail("bbox must have 4 values, found %d", len(ca.BBox))
			continue
		}
		width, height := float64(ci.Width), float64(ci.Height)
		if width <= 0 || height <= 0 {
			width, height = float64(img.Width), float64(img.Height)
		}
		if width <= 0 || height <= 0 {
			fail("image %q has no pixel dimensions", ci.FileName)
			continue
		}
		bbox := domain.BBox{
			X:      ca.BBox[0] / width,
			Y:      ca.BBox[1] / height,
			Width:  ca.BBox[2] / width,
			Height: ca.BBox[3] / height,
		}
		if !withinUnit(bbox, yoloTolerance) {
			fail("bbox [%g %g %g %g] exceeds the image", ca.BBox[0], ca.BBox[1], ca.BBox[2], ca.BBox[3])
			continue
		}
		out = append(out, decoded{record: record, annotation: domain.Annotation{
			ImageID:    img.ID,
			CategoryID: categoryID,
			BBox:       clampBBox(bbox),
			State:      domain.StateDraft,
		}})
	}
	return out, errs, nil
}

func withinUnit(b domain.BBox, tolerance float64) bool {
	return b.X >= -tolerance && b.Y >= -tolerance &&
		b.X+b.Width <= 1+tolerance && b.Y+b.Height <= 1+tolerance
}
