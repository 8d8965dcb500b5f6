package codec

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/util"
	"github.com/lewtec/demarcador/internal/category"
	"github.com/lewtec/demarcador/internal/domain"
	"github.com/lewtec/demarcador/internal/store"
	"gopkg.in/yaml.v3"
)

const epsilon = 1e-4

type imageList []domain.Image

func (l imageList) Images() []domain.Image { return l }

var testImages = imageList{
	{ID: "img-a", Filename: "a.jpg", Width: 640, Height: 480},
	{ID: "img-b", Filename: "b.png", Width: 100, Height: 100},
}

type fixture struct {
	registry *category.Registry
	store    *store.Store
	importer *Importer
	exporter *Exporter
}

func setupFixture(t *testing.T) fixture {
	t.Helper()
	reg := category.NewRegistry()
	st := store.New(reg, store.WithUser("tester"))
	reg.Attach(st)
	return fixture{
		registry: reg,
		store:    st,
		importer: NewImporter(st, reg, testImages),
		exporter: NewExporter(st, reg, testImages),
	}
}

func (f fixture) add(t *testing.T, imageID, categoryID string, b domain.BBox) domain.Annotation {
	t.Helper()
	a, err := f.store.Create(store.NewAnnotation{ImageID: imageID, CategoryID: categoryID, BBox: b})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return a
}

func closeBBox(a, b domain.BBox) bool {
	return math.Abs(a.X-b.X) <= epsilon && math.Abs(a.Y-b.Y) <= epsilon &&
		math.Abs(a.Width-b.Width) <= epsilon && math.Abs(a.Height-b.Height) <= epsilon
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		file   string
		data   string
		want   Format
	}{
		{"explicit wins", FormatCOCO, "labels.txt", "0 0.5 0.5 0.1 0.1", FormatCOCO},
		{"txt extension", FormatAuto, "a.txt", `{"annotations": []}`, FormatYOLO},
		{"coco content", FormatAuto, "x.json", `{"images": [], "categories": [], "annotations": []}`, FormatCOCO},
		{"native content", FormatAuto, "x.json", `{"annotations": []}`, FormatJSON},
		{"coco missing categories", FormatAuto, "x.json", `{"images": [], "annotations": []}`, FormatCOCO},
		{"numeric lines", FormatAuto, "upload", "0 0.5 0.5 0.1 0.1\n1 0.2 0.2 0.1 0.1\n", FormatYOLO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(tt.format, tt.file, []byte(tt.data))
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Got %v, want %v", got, tt.want)
			}
		})
	}

	for _, data := range []string{`{"foo": 1}`, "hello world", `{broken`} {
		if _, err := Detect(FormatAuto, "x", []byte(data)); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Detect(%q) = %v, want validation error", data, err)
		}
	}
}

func TestNative_RoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	anns := []domain.Annotation{{
		ID: "1", ImageID: "img-a", CategoryID: "Defect",
		BBox:      domain.BBox{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.4},
		CreatedBy: "ana", CreatedAt: now, UpdatedBy: "bia", UpdatedAt: now.Add(time.Hour),
		State: domain.StateReviewed,
	}}
	data, err := EncodeNative(anns)
	if err != nil {
		t.Fatalf("EncodeNative() error = %v", err)
	}
	for _, key := range []string{`"imageId"`, `"categoryId"`, `"createdAt"`, `"bbox"`} {
		if !bytes.Contains(data, []byte(key)) {
			t.Errorf("expected %s in %s", key, data)
		}
	}
	got, err := DecodeNative(data)
	if err != nil {
		t.Fatalf("DecodeNative() error = %v", err)
	}
	if len(got) != 1 || got[0] != anns[0] {
		t.Errorf("Got %+v, want %+v", got, anns)
	}

	if _, err := DecodeNative([]byte(`{"items": []}`)); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Got %v, want validation error", err)
	}
}

func TestYOLO_RoundTrip(t *testing.T) {
	classes := []string{"Defect", "Good", "Unknown"}
	anns := []domain.Annotation{
		{ImageID: "img-a", CategoryID: "Good", BBox: domain.BBox{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.4}},
		{ImageID: "img-a", CategoryID: "Unknown", BBox: domain.BBox{X: 0, Y: 0, Width: 1, Height: 1}},
		{ImageID: "img-a", CategoryID: "Defect", BBox: domain.BBox{X: 0.123456789, Y: 0.5, Width: 0.0001, Height: 0.25}},
	}
	data, err := EncodeYOLO(anns, classes)
	if err != nil {
		t.Fatalf("EncodeYOLO() error = %v", err)
	}
	if first := strings.SplitN(string(data), "\n", 2)[0]; first != "1 0.250000 0.400000 0.300000 0.400000" {
		t.Errorf("Got line %q", first)
	}

	got, errs, err := DecodeYOLO(data, "img-a", classes)
	if err != nil || len(errs) != 0 {
		t.Fatalf("DecodeYOLO() = %v, %v", errs, err)
	}
	if len(got) != len(anns) {
		t.Fatalf("Got %d annotations, want %d", len(got), len(anns))
	}
	for i := range anns {
		if got[i].CategoryID != anns[i].CategoryID || !closeBBox(got[i].BBox, anns[i].BBox) {
			t.Errorf("Got %+v, want %+v", got[i], anns[i])
		}
		if err := got[i].BBox.Validate(); err != nil {
			t.Errorf("decoded box invalid: %v", err)
		}
	}
}

func TestYOLO_UnknownClass(t *testing.T) {
	data := "0 0.5 0.5 0.1 0.1\n\n7 0.5 0.5 0.1 0.1\n"
	got, errs, err := DecodeYOLO([]byte(data), "img-a", []string{"Defect"})
	if err != nil {
		t.Fatalf("DecodeYOLO() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Got %d annotations, want 1", len(got))
	}
	if len(errs) != 1 || errs[0].Record != 3 {
		t.Fatalf("Got %v, want one error on line 3", errs)
	}
	if !errors.Is(&errs[0], domain.ErrValidation) || !strings.Contains(errs[0].Error(), "line 3") {
		t.Errorf("Got %v", &errs[0])
	}
}

func TestValidateYOLO(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		reason string
	}{
		{"valid", "0 0.5 0.5 0.2 0.2", ""},
		{"edge within tolerance", "0 0.050000 0.5 0.100001 0.2", ""},
		{"four values", "0 0.5 0.5 0.2", "exactly 5 values"},
		{"negative class", "-1 0.5 0.5 0.2 0.2", "non-negative"},
		{"float class", "1.5 0.5 0.5 0.2 0.2", "integer"},
		{"nan", "0 nan 0.5 0.2 0.2", "NaN"},
		{"infinity", "0 0.5 inf 0.2 0.2", "Infinity"},
		{"zero width", "0 0.5 0.5 0 0.2", "width must be > 0"},
		{"center outside", "0 1.5 0.5 0.2 0.2", "center_x"},
		{"exceeds right", "0 0.95 0.5 0.2 0.2", "right edge"},
		{"exceeds top", "0 0.5 0.05 0.2 0.2", "top edge"},
		{"garbage", "0 a b c d", "invalid number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs, err := ValidateYOLO(strings.NewReader(tt.line + "\n"))
			if err != nil {
				t.Fatalf("ValidateYOLO() error = %v", err)
			}
			if tt.reason == "" {
				if len(errs) != 0 {
					t.Errorf("Got %v, want no errors", errs)
				}
				return
			}
			if len(errs) != 1 || !strings.Contains(errs[0].Reason, tt.reason) {
				t.Errorf("Got %v, want reason containing %q", errs, tt.reason)
			}
		})
	}

	t.Run("empty file is valid", func(t *testing.T) {
		errs, err := ValidateYOLO(strings.NewReader(""))
		if err != nil || len(errs) != 0 {
			t.Errorf("Got %v, %v", errs, err)
		}
	})

	t.Run("invalid utf-8 is a file error", func(t *testing.T) {
		errs, err := ValidateYOLO(bytes.NewReader([]byte("0 0.5 0.5 0.2 0.2\n\xff\xfe\n")))
		if err != nil {
			t.Fatalf("ValidateYOLO() error = %v", err)
		}
		if len(errs) != 1 || errs[0].Line != 0 || errs[0].Reason != "File encoding error: not valid UTF-8" {
			t.Errorf("Got %v, want one encoding error on line 0", errs)
		}
	})

	t.Run("long line is a line error", func(t *testing.T) {
		long := "0 0.5 0.5 0.2 0.2" + strings.Repeat(" 0.1", 40000)
		data := long + "\n1 0.5 0.5 0.2 0.2\n"
		labels, errs, err := ParseYOLO(strings.NewReader(data))
		if err != nil {
			t.Fatalf("ParseYOLO() error = %v", err)
		}
		if len(errs) != 1 || errs[0].Line != 1 || !strings.Contains(errs[0].Reason, "exactly 5 values") {
			t.Errorf("Got %v, want one error on line 1", errs)
		}
		if len(labels) != 1 || labels[0].Line != 2 {
			t.Errorf("Got %+v, want the label of line 2", labels)
		}
	})
}

func TestCOCO_RoundTrip(t *testing.T) {
	cats := domain.DefaultCategories()
	ds := Dataset{
		Images:     testImages,
		Categories: cats,
		Annotations: []domain.Annotation{
			{ID: "x", ImageID: "img-a", CategoryID: "Good", BBox: domain.BBox{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.4}},
			{ID: "y", ImageID: "img-b", CategoryID: "Defect", BBox: domain.BBox{X: 0.5, Y: 0.5, Width: 0.5, Height: 0.5}},
		},
	}
	data, err := EncodeCOCO(ds)
	if err != nil {
		t.Fatalf("EncodeCOCO() error = %v", err)
	}
	got, errs, err := DecodeCOCO(data, testImages, cats)
	if err != nil || len(errs) != 0 {
		t.Fatalf("DecodeCOCO() = %v, %v", errs, err)
	}
	if len(got) != 2 {
		t.Fatalf("Got %d annotations, want 2", len(got))
	}
	for i, want := range ds.Annotations {
		if got[i].ImageID != want.ImageID || got[i].CategoryID != want.CategoryID || !closeBBox(got[i].BBox, want.BBox) {
			t.Errorf("Got %+v, want %+v", got[i], want)
		}
	}

	t.Run("pixel boxes and area", func(t *testing.T) {
		if !bytes.Contains(data, []byte(`"area": 36864`)) {
			t.Errorf("expected area 192*192 in %s", data)
		}
	})

	t.Run("image without dimensions", func(t *testing.T) {
		_, err := EncodeCOCO(Dataset{Images: []domain.Image{{ID: "z", Filename: "z.jpg"}}})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Got %v, want validation error", err)
		}
	})
}

func TestCOCO_Decode(t *testing.T) {
	cats := domain.DefaultCategories()

	t.Run("missing arrays", func(t *testing.T) {
		for _, doc := range []string{
			`{"images": [], "categories": []}`,
			`{"images": [], "annotations": [], "categories": null}`,
			`{"annotations": [], "categories": []}`,
		} {
			if _, _, err := DecodeCOCO([]byte(doc), testImages, cats); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("DecodeCOCO(%s) = %v, want validation error", doc, err)
			}
		}
	})

	t.Run("unknown image id is a record error", func(t *testing.T) {
		doc := `{
			"images": [{"id": 1, "file_name": "a.jpg", "width": 640, "height": 480}],
			"categories": [{"id": 1, "name": "Good"}],
			"annotations": [
				{"id": 1, "image_id": 1, "category_id": 1, "bbox": [0, 0, 64, 48]},
				{"id": 2, "image_id": 9, "category_id": 1, "bbox": [0, 0, 64, 48]}
			]
		}`
		got, errs, err := DecodeCOCO([]byte(doc), testImages, cats)
		if err != nil {
			t.Fatalf("DecodeCOCO() error = %v", err)
		}
		if len(got) != 1 {
			t.Errorf("Got %d annotations, want 1", len(got))
		}
		if len(errs) != 1 || errs[0].Record != 2 || !errors.Is(errs[0].Err, domain.ErrValidation) {
			t.Errorf("Got %v, want one validation error on record 2", errs)
		}
	})
}

func TestImporter(t *testing.T) {
	ctx := context.Background()

	t.Run("empty file", func(t *testing.T) {
		f := setupFixture(t)
		_, err := f.importer.Import(ctx, Request{Name: "a.txt", Data: []byte("  \n")})
		if !errors.Is(err, domain.ErrFileEmpty) {
			t.Errorf("Got %v, want %v", err, domain.ErrFileEmpty)
		}
		if !strings.Contains(err.Error(), "File is empty") {
			t.Errorf("Got message %q", err.Error())
		}
	})

	t.Run("yolo by stem with bad lines", func(t *testing.T) {
		f := setupFixture(t)
		data := "0 0.5 0.5 0.2 0.2\n1 0.5 0.5 0.2\n2 0.3 0.3 0.1 0.1\n"
		res, err := f.importer.Import(ctx, Request{Name: "labels/a.txt", Data: []byte(data)})
		if err != nil {
			t.Fatalf("Import() error = %v", err)
		}
		if res.Imported != 2 || res.Failed != 1 {
			t.Errorf("Got %d imported, %d failed; want 2, 1", res.Imported, res.Failed)
		}
		if res.Errors[0].Record != 2 || res.Errors[0].Source != "labels/a.txt" {
			t.Errorf("Got %+v", res.Errors[0])
		}
		if got := f.store.ListByImage("img-a"); len(got) != 2 || got[1].CategoryID != "Unknown" {
			t.Errorf("Got %+v", got)
		}

		f.store.Undo()
		if f.store.Len() != 0 {
			t.Errorf("Got %d annotations after undo, want 0", f.store.Len())
		}
	})

	t.Run("yolo without matching image", func(t *testing.T) {
		f := setupFixture(t)
		_, err := f.importer.Import(ctx, Request{Name: "zzz.txt", Data: []byte("0 0.5 0.5 0.2 0.2\n")})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Got %v, want validation error", err)
		}
	})

	t.Run("native with unknown image", func(t *testing.T) {
		f := setupFixture(t)
		data := `{"annotations": [
			{"imageId": "img-b", "categoryId": "Good", "bbox": {"x": 0.1, "y": 0.1, "width": 0.2, "height": 0.2}, "state": "approved"},
			{"imageId": "img-z", "categoryId": "Good", "bbox": {"x": 0.1, "y": 0.1, "width": 0.2, "height": 0.2}},
			{"imageId": "img-b", "categoryId": "Nope", "bbox": {"x": 0.1, "y": 0.1, "width": 0.2, "height": 0.2}}
		]}`
		res, err := f.importer.Import(ctx, Request{Format: FormatAuto, Name: "a.json", Data: []byte(data)})
		if err != nil {
			t.Fatalf("Import() error = %v", err)
		}
		if res.Format != FormatJSON || res.Imported != 1 || res.Failed != 2 {
			t.Errorf("Got %+v", res)
		}
		if got := f.store.List(); got[0].State != domain.StateApproved {
			t.Errorf("State = %v, want approved", got[0].State)
		}
	})

	t.Run("coco without categories names the missing array", func(t *testing.T) {
		f := setupFixture(t)
		data := `{"images": [{"id": 1, "file_name": "a.jpg", "width": 200, "height": 100}],
			"annotations": [{"id": 1, "image_id": 1, "category_id": 1, "bbox": [0, 0, 10, 10]}]}`
		_, err := f.importer.Import(ctx, Request{Format: FormatAuto, Name: "instances.json", Data: []byte(data)})
		if !errors.Is(err, domain.ErrValidation) || !strings.Contains(err.Error(), `missing the "categories" array`) {
			t.Errorf("Got %v, want missing categories error", err)
		}
		if f.store.Len() != 0 {
			t.Errorf("Got %d annotations, want 0", f.store.Len())
		}
	})

	t.Run("cancelled import rolls back", func(t *testing.T) {
		f := setupFixture(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := f.importer.Import(cctx, Request{Name: "a.txt", Data: []byte("0 0.5 0.5 0.2 0.2\n")})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Got %v, want %v", err, context.Canceled)
		}
		if f.store.Len() != 0 || f.store.CanUndo() {
			t.Error("cancelled import must leave no trace")
		}
	})
}

func TestExporter(t *testing.T) {
	ctx := context.Background()

	t.Run("empty yolo export", func(t *testing.T) {
		f := setupFixture(t)
		b, err := f.exporter.Export(ctx, ExportRequest{Format: FormatYOLO})
		if err != nil {
			t.Fatalf("Export() error = %v", err)
		}
		if len(b.Files) != 2 {
			t.Fatalf("Got %d files, want 2", len(b.Files))
		}
		for _, file := range b.Files {
			if len(file.Data) != 0 {
				t.Errorf("%s has %d bytes, want 0", file.Name, len(file.Data))
			}
		}
		if b.Files[0].Name != "a.txt" || b.Files[1].Name != "b.txt" {
			t.Errorf("Got %s, %s", b.Files[0].Name, b.Files[1].Name)
		}
	})

	t.Run("empty coco export", func(t *testing.T) {
		f := setupFixture(t)
		b, err := f.exporter.Export(ctx, ExportRequest{Format: FormatCOCO})
		if err != nil {
			t.Fatalf("Export() error = %v", err)
		}
		data := string(b.Files[0].Data)
		if !strings.Contains(data, `"annotations": []`) {
			t.Errorf("expected empty annotations in %s", data)
		}
		if !strings.Contains(data, `"file_name": "a.jpg"`) || !strings.Contains(data, `"name": "Unknown"`) {
			t.Errorf("expected images and categories in %s", data)
		}
	})

	t.Run("round trip through the pipelines", func(t *testing.T) {
		for _, format := range []Format{FormatJSON, FormatYOLO, FormatCOCO} {
			t.Run(string(format), func(t *testing.T) {
				src := setupFixture(t)
				a := src.add(t, "img-a", "Good", domain.BBox{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.4})
				b, err := src.exporter.Export(ctx, ExportRequest{Format: format})
				if err != nil {
					t.Fatalf("Export() error = %v", err)
				}

				dst := setupFixture(t)
				for _, file := range b.Files {
					res, err := dst.importer.Import(ctx, Request{Format: format, Name: file.Name, Data: file.Data})
					if errors.Is(err, domain.ErrFileEmpty) {
						continue
					}
					if err != nil || res.Failed != 0 {
						t.Fatalf("Import() = %+v, %v", res, err)
					}
				}
				got := dst.store.List()
				if len(got) != 1 {
					t.Fatalf("Got %d annotations, want 1", len(got))
				}
				if got[0].ImageID != a.ImageID || got[0].CategoryID != a.CategoryID || !closeBBox(got[0].BBox, a.BBox) {
					t.Errorf("Got %+v, want %+v", got[0], a)
				}
			})
		}
	})

	t.Run("image subset", func(t *testing.T) {
		f := setupFixture(t)
		f.add(t, "img-a", "Good", domain.BBox{X: 0.1, Y: 0.1, Width: 0.1, Height: 0.1})
		f.add(t, "img-b", "Good", domain.BBox{X: 0.1, Y: 0.1, Width: 0.1, Height: 0.1})
		ds, err := f.exporter.Snapshot([]string{"img-b"})
		if err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
		if len(ds.Images) != 1 || len(ds.Annotations) != 1 || ds.Annotations[0].ImageID != "img-b" {
			t.Errorf("Got %+v", ds)
		}
		if _, err := f.exporter.Snapshot([]string{"nope"}); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Got %v, want %v", err, domain.ErrNotFound)
		}
	})
}

func TestWriteYOLODataset(t *testing.T) {
	f := setupFixture(t)
	f.add(t, "img-a", "Good", domain.BBox{X: 0.1, Y: 0.1, Width: 0.1, Height: 0.1})
	b, err := f.exporter.Export(context.Background(), ExportRequest{Format: FormatYOLO})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	fs := memfs.New()
	if err := WriteYOLODataset(fs, "out", b, []string{"Defect", "Good", "Unknown"}); err != nil {
		t.Fatalf("WriteYOLODataset() error = %v", err)
	}
	label, err := util.ReadFile(fs, "out/labels/a.txt")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.HasPrefix(string(label), "1 ") {
		t.Errorf("Got %q, want class 1", label)
	}

	raw, err := util.ReadFile(fs, "out/data.yaml")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var meta yoloDataFile
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if meta.NC != 3 || meta.Names[1] != "Good" {
		t.Errorf("Got %+v", meta)
	}
}

type memoryStorage struct {
	files map[string][]byte
}

func (m *memoryStorage) UploadFile(_ context.Context, name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.files[name] = data
	return name, nil
}

func (m *memoryStorage) DownloadURL(_ context.Context, p string) (string, error) {
	return "/exports/" + p, nil
}

func TestPublish(t *testing.T) {
	storage := &memoryStorage{files: map[string][]byte{}}
	b := Bundle{Format: FormatJSON, Files: []File{{Name: "annotations.json", Data: []byte(`{"annotations":[]}`)}}}
	urls, err := Publish(context.Background(), storage, b)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(urls) != 1 || urls[0] != "/exports/annotations.json" {
		t.Errorf("Got %v", urls)
	}
	if string(storage.files["annotations.json"]) != `{"annotations":[]}` {
		t.Errorf("Got %q", storage.files["annotations.json"])
	}
}

func BenchmarkParseYOLO(b *testing.B) {
	var buf bytes.Buffer
	for i := 0; i < 500; i++ {
		buf.WriteString("1 0.500000 0.500000 0.250000 0.125000\n")
	}
	data := buf.Bytes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := ParseYOLO(bytes.NewReader(data)); err != nil {
			b.Fatal(err)
		}
	}
}
