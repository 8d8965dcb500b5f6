package codec

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/util"
	"github.com/lewtec/demarcador/internal/domain"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// AnnotationLister reads the annotations to export
type AnnotationLister interface {
	List() []domain.Annotation
}

// ExportRequest selects what to export
type ExportRequest struct {
	Format Format

	// ImageIDs restricts the export; every image when empty
	ImageIDs []string

	// CategoryOrder fixes YOLO class indices; registry order when empty
	CategoryOrder []string
}

// File is one exported document
type File struct {
	Name string `json:"name"`
	Data []byte `json:"-"`
}

// Bundle is the output of an export
type Bundle struct {
	Format Format `json:"format"`
	Files  []File `json:"files"`
}

// Exporter encodes workspace snapshots
type Exporter struct {
	annotations AnnotationLister
	categories  Categories
	images      ImageCatalog
}

func NewExporter(annotations AnnotationLister, categories Categories, images ImageCatalog) *Exporter {
	return &Exporter{annotations: annotations, categories: categories, images: images}
}

// Snapshot collects the dataset selected by imageIDs
func (e *Exporter) Snapshot(imageIDs []string) (Dataset, error) {
	all := e.images.Images()
	images := all
	if len(imageIDs) > 0 {
		index := newImageIndex(all)
		images = make([]domain.Image, 0, len(imageIDs))
		for _, id := range imageIDs {
			img, ok := index.byID[id]
			if !ok {
				return Dataset{}, domain.NotFoundf("image %s", id)
			}
			images = append(images, img)
		}
	}
	selected := make(map[string]bool, len(images))
	for _, img := range images {
		selected[img.ID] = true
	}
	ds := Dataset{Images: images, Categories: e.categories.List()}
	for _, a := range e.annotations.List() {
		if selected[a.ImageID] {
			ds.Annotations = append(ds.Annotations, a)
		}
	}
	return ds, nil
}

// Export encodes the selected images in the requested format
func (e *Exporter) Export(ctx context.Context, req ExportRequest) (Bundle, error) {
	ds, err := e.Snapshot(req.ImageIDs)
	if err != nil {
		return Bundle{}, err
	}
	b := Bundle{Format: req.Format}
	switch req.Format {
	case FormatJSON:
		data, err := EncodeNative(ds.Annotations)
		if err != nil {
			return Bundle{}, err
		}
		b.Files = []File{{Name: "annotations.json", Data: data}}
	case FormatCOCO:
		data, err := EncodeCOCO(ds)
		if err != nil {
			return Bundle{}, err
		}
		b.Files = []File{{Name: "instances.json", Data: data}}
	case FormatYOLO:
		classes := ClassOrder(ds.Categories, req.CategoryOrder)
		byImage := make(map[string][]domain.Annotation, len(ds.Images))
		for _, a := range ds.Annotations {
			byImage[a.ImageID] = append(byImage[a.ImageID], a)
		}
		seen := make(map[string]string, len(ds.Images))
		for _, img := range ds.Images {
			if err := ctx.Err(); err != nil {
				return Bundle{}, err
			}
			name := img.Stem() + FormatYOLO.Extension()
			if other, dup := seen[name]; dup {
				return Bundle{}, domain.Validationf("images %s and %s share the label file %s", other, img.Filename, name)
			}
			seen[name] = img.Filename
			data, err := EncodeYOLO(byImage[img.ID], classes)
			if err != nil {
				return Bundle{}, err
			}
			b.Files = append(b.Files, File{Name: name, Data: data})
		}
	default:
		return Bundle{}, domain.Validationf("cannot export as %q", req.Format)
	}
	log.Printf("export: %d images as %s into %d files", len(ds.Images), req.Format, len(b.Files))
	return b, nil
}

// ClassOrder returns the category ids defining YOLO class indices
func ClassOrder(categories []domain.Category, order []string) []string {
	if len(order) > 0 {
		return order
	}
	ids := make([]string, len(categories))
	for i, c := range categories {
		ids[i] = c.ID
	}
	return ids
}

// Publish uploads every file of b and returns where each can be retrieved
func Publish(ctx context.Context, storage domain.FileStorage, b Bundle) ([]string, error) {
	urls := make([]string, 0, len(b.Files))
	for _, f := range b.Files {
		p, err := storage.UploadFile(ctx, f.Name, bytes.NewReader(f.Data))
		if err != nil {
			return nil, fmt.Errorf("while uploading %s: %w", f.Name, err)
		}
		url, err := storage.DownloadURL(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("while resolving %s: %w", p, err)
		}
		urls = append(urls, url)
	}
	return urls, nil
}

type yoloDataFile struct {
	Path  string         `yaml:"path"`
	Train string         `yaml:"train"`
	Val   string         `yaml:"val"`
	NC    int            `yaml:"nc"`
	Names map[int]string `yaml:"names"`
}

// WriteYOLODataset writes the label files of b under dir/labels and an
// Ultralytics data.yaml naming classes
func WriteYOLODataset(fs billy.Filesystem, dir string, b Bundle, classes []string) error {
	if b.Format != FormatYOLO {
		return domain.Validationf("bundle is %s, not yolo", b.Format)
	}
	labels := path.Join(dir, "labels")
	if err := fs.MkdirAll(labels, 0o755); err != nil {
		return fmt.Errorf("while creating %s: %w", labels, err)
	}
	for _, f := range b.Files {
		if err := util.WriteFile(fs, path.Join(labels, f.Name), f.Data, 0o644); err != nil {
			return fmt.Errorf("while writing %s: %w", f.Name, err)
		}
	}

	meta := yoloDataFile{Path: ".", Train: "images", Val: "images", NC: len(classes), Names: make(map[int]string, len(classes))}
	for i, name := range classes {
		meta.Names[i] = name
	}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("while encoding data.yaml: %w", err)
	}
	return util.WriteFile(fs, path.Join(dir, "data.yaml"), data, 0o644)
}

// WriteBundle writes every file of b into dir
func WriteBundle(fs billy.Filesystem, dir string, b Bundle) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("while creating %s: %w", dir, err)
	}
	for _, f := range b.Files {
		if err := util.WriteFile(fs, path.Join(dir, f.Name), f.Data, 0o644); err != nil {
			return fmt.Errorf("while writing %s: %w", f.Name, err)
		}
	}
	return nil
}
