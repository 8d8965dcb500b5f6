package annotation

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/util"
	"github.com/lewtec/demarcador/internal/category"
	"github.com/lewtec/demarcador/internal/codec"
	"github.com/lewtec/demarcador/internal/domain"
	"github.com/lewtec/demarcador/internal/drawing"
	"github.com/lewtec/demarcador/internal/geometry"
	"github.com/lewtec/demarcador/internal/repository"
	"github.com/lewtec/demarcador/internal/shortcut"
	"github.com/lewtec/demarcador/internal/store"
	log "github.com/sirupsen/logrus"
)

const defaultMaxImportSize = 64 << 20

type AnnotatorApp struct {
	ImagesDir string
	Database  *sql.DB
	Config    *Config

	// Exports receives published export bundles; publishing is disabled when nil
	Exports *LocalStorage

	// MaxImportSize bounds an import upload in bytes; 64 MiB when zero
	MaxImportSize int64

	mu        sync.Mutex
	workspace *Workspace
}

func (a *AnnotatorApp) init() {
	a.ImagesDir = strings.TrimSuffix(a.ImagesDir, "/")
	if a.Config == nil {
		a.Config = DefaultConfig()
	}
}

// assetSource adds the URL each image is served at
type assetSource struct {
	images *repository.ImageRepository
}

func (s assetSource) FetchImages(ctx context.Context, datasetID string) ([]domain.Image, error) {
	images, err := s.images.FetchImages(ctx, datasetID)
	for i := range images {
		images[i].URL = "/asset/" + images[i].ID
	}
	return images, err
}

// PrepareDatabase migrates the schema and registers every image of the
// flat images folder
func (a *AnnotatorApp) PrepareDatabase(ctx context.Context) error {
	a.init()
	log.Printf("PrepareDatabase: migrating schema")
	if err := repository.Migrate(ctx, a.Database); err != nil {
		return err
	}
	log.Printf("PrepareDatabase: scanning %s", a.ImagesDir)
	images, err := ScanImages(a.ImagesDir)
	if err != nil {
		return err
	}
	tx, err := a.Database.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("while starting database setup transaction: %w", err)
	}
	defer tx.Rollback()
	repo := repository.NewImageRepository(tx)
	for _, img := range images {
		log.Printf("PrepareDatabase: populating images table: %s", img.Filename)
		if _, err := repo.Create(ctx, img); err != nil {
			return fmt.Errorf("while registering image '%s': %w", img.Filename, err)
		}
	}
	log.Printf("PrepareDatabase: success! commiting transaction to the database")
	return tx.Commit()
}

// Workspace returns the editing session, opening it on first use
func (a *AnnotatorApp) Workspace(ctx context.Context) (*Workspace, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.openWorkspace(ctx)
}

func (a *AnnotatorApp) openWorkspace(ctx context.Context) (*Workspace, error) {
	if a.workspace != nil {
		return a.workspace, nil
	}
	a.init()
	ws, err := OpenWorkspace(ctx, WorkspaceDeps{
		Images:      assetSource{images: repository.NewImageRepository(a.Database)},
		Annotations: repository.NewAnnotationRepository(a.Database),
		Categories:  repository.NewCategoryRepository(a.Database),
		Config:      a.Config,
	})
	if err != nil {
		return nil, err
	}
	if err := a.sync(ctx, ws); err != nil {
		ws.Close()
		return nil, err
	}
	a.workspace = ws
	return ws, nil
}

// sync writes queued workspace changes in one transaction
func (a *AnnotatorApp) sync(ctx context.Context, ws *Workspace) error {
	if ws.Pending() == 0 {
		return nil
	}
	tx, err := a.Database.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("while starting sync transaction: %w", err)
	}
	defer tx.Rollback()
	err = ws.SyncWith(ctx, repository.NewAnnotationRepository(tx), repository.NewCategoryRepository(tx))
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Close persists what is pending and ends the session
func (a *AnnotatorApp) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.workspace == nil {
		return nil
	}
	err := a.sync(ctx, a.workspace)
	a.workspace.Close()
	a.workspace = nil
	return err
}

// Do runs fn against the workspace with exclusive access and persists what
// it changed
func (a *AnnotatorApp) Do(ctx context.Context, fn func(ws *Workspace) (any, error)) (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ws, err := a.openWorkspace(ctx)
	if err != nil {
		return nil, err
	}
	out, fnErr := fn(ws)
	if err := a.sync(ctx, ws); err != nil {
		return nil, err
	}
	return out, fnErr
}

func (a *AnnotatorApp) api(fn func(r *http.Request, ws *Workspace) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := a.Do(r.Context(), func(ws *Workspace) (any, error) {
			return fn(r, ws)
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type stateView struct {
	CurrentImage       string `json:"currentImage"`
	SelectedCategory   string `json:"selectedCategory"`
	SelectedAnnotation string `json:"selectedAnnotation"`
	DrawMode           bool   `json:"drawMode"`
	Phase              string `json:"phase"`
	CanUndo            bool   `json:"canUndo"`
	CanRedo            bool   `json:"canRedo"`
}

func viewState(ws *Workspace) stateView {
	st := ws.Drawing.State()
	v := stateView{
		SelectedCategory:   ws.SelectedCategory(),
		SelectedAnnotation: ws.Store.Selected(),
		DrawMode:           st.DrawMode,
		Phase:              st.Phase.String(),
		CanUndo:            ws.Store.CanUndo(),
		CanRedo:            ws.Store.CanRedo(),
	}
	if img, ok := ws.CurrentImage(); ok {
		v.CurrentImage = img.ID
	}
	return v
}

type gestureView struct {
	Phase     string             `json:"phase"`
	Preview   *geometry.Rect     `json:"preview,omitempty"`
	Created   *domain.Annotation `json:"created,omitempty"`
	Updated   *domain.Annotation `json:"updated,omitempty"`
	Cancelled bool               `json:"cancelled,omitempty"`
	Discarded bool               `json:"discarded,omitempty"`
}

func viewGesture(res drawing.Result) gestureView {
	return gestureView{
		Phase:     res.Phase.String(),
		Preview:   res.Preview,
		Created:   res.Created,
		Updated:   res.Updated,
		Cancelled: res.Cancelled,
		Discarded: res.Discarded,
	}
}

type annotationInput struct {
	ImageID    string       `json:"imageId"`
	CategoryID string       `json:"categoryId"`
	BBox       domain.BBox  `json:"bbox"`
	State      domain.State `json:"state"`
}

type categoryInput struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

type pointerInput struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

func (a *AnnotatorApp) GetHTTPHandler() http.Handler {
	a.init()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", a.handleHome)
	mux.HandleFunc("GET /help", a.handleHelp)
	mux.HandleFunc("GET /asset/{id}", a.handleAsset)
	mux.HandleFunc("GET /preview/{id}", a.handlePreview)

	mux.HandleFunc("GET /api/state", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		return viewState(ws), nil
	}))
	mux.HandleFunc("GET /api/images", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		return ws.Images(), nil
	}))
	mux.HandleFunc("POST /api/images/{id}/select", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		if err := ws.SetCurrentImage(r.PathValue("id")); err != nil {
			return nil, err
		}
		return viewState(ws), nil
	}))
	mux.HandleFunc("GET /api/images/{id}/annotations", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		img, err := ws.Image(r.PathValue("id"))
		if err != nil {
			return nil, err
		}
		return ws.Store.ListByImage(img.ID), nil
	}))

	mux.HandleFunc("POST /api/annotations", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		var in annotationInput
		if err := decodeBody(r, &in); err != nil {
			return nil, err
		}
		if _, err := ws.Image(in.ImageID); err != nil {
			return nil, err
		}
		return ws.Store.Create(store.NewAnnotation{
			ImageID:    in.ImageID,
			CategoryID: in.CategoryID,
			BBox:       in.BBox,
			State:      in.State,
			CreatedBy:  a.Config.User,
		})
	}))
	mux.HandleFunc("PATCH /api/annotations/{id}", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		var patch domain.AnnotationPatch
		if err := decodeBody(r, &patch); err != nil {
			return nil, err
		}
		patch.UpdatedBy = stringOr(patch.UpdatedBy, a.Config.User)
		return ws.Store.Update(r.PathValue("id"), patch)
	}))
	mux.HandleFunc("DELETE /api/annotations/{id}", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		return ws.Store.Delete(r.PathValue("id"))
	}))
	mux.HandleFunc("POST /api/annotations/{id}/select", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		if err := ws.Store.Select(r.PathValue("id")); err != nil {
			return nil, err
		}
		return viewState(ws), nil
	}))
	mux.HandleFunc("POST /api/undo", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		changed, err := ws.Undo()
		return map[string]bool{"changed": changed}, err
	}))
	mux.HandleFunc("POST /api/redo", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		changed, err := ws.Redo()
		return map[string]bool{"changed": changed}, err
	}))

	mux.HandleFunc("GET /api/categories", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		return ws.Registry.List(), nil
	}))
	mux.HandleFunc("POST /api/categories", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		var in categoryInput
		if err := decodeBody(r, &in); err != nil {
			return nil, err
		}
		return ws.Registry.Create(in.Name, in.Color, in.Description)
	}))
	mux.HandleFunc("PATCH /api/categories/{id}", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		var patch domain.CategoryPatch
		if err := decodeBody(r, &patch); err != nil {
			return nil, err
		}
		return ws.Registry.Update(r.PathValue("id"), patch)
	}))
	mux.HandleFunc("DELETE /api/categories/{id}", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		q := r.URL.Query()
		deleteAnnotations, _ := strconv.ParseBool(q.Get("deleteAnnotations"))
		return ws.Registry.Delete(r.PathValue("id"), category.DeleteOptions{
			ReassignTo:        q.Get("reassignTo"),
			DeleteAnnotations: deleteAnnotations,
		})
	}))
	mux.HandleFunc("PUT /api/categories/order", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		var ids []string
		if err := decodeBody(r, &ids); err != nil {
			return nil, err
		}
		if err := ws.Registry.Reorder(ids); err != nil {
			return nil, err
		}
		return ws.Registry.List(), nil
	}))
	mux.HandleFunc("POST /api/categories/{id}/select", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		if err := ws.SelectCategory(r.PathValue("id")); err != nil {
			return nil, err
		}
		return viewState(ws), nil
	}))

	mux.HandleFunc("POST /api/pointer", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		var in pointerInput
		if err := decodeBody(r, &in); err != nil {
			return nil, err
		}
		p := geometry.Point{X: in.X, Y: in.Y}
		var (
			res drawing.Result
			err error
		)
		switch in.Type {
		case "down":
			res, err = ws.PointerDown(p)
		case "move":
			res, err = ws.PointerMove(p)
		case "up":
			res, err = ws.PointerUp(p)
		default:
			return nil, domain.Validationf("unknown pointer event %q", in.Type)
		}
		if err != nil {
			return nil, err
		}
		return viewGesture(res), nil
	}))
	mux.HandleFunc("POST /api/keys", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		var ev shortcut.KeyEvent
		if err := decodeBody(r, &ev); err != nil {
			return nil, err
		}
		return ws.Key(ev)
	}))

	mux.HandleFunc("POST /api/import", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		q := r.URL.Query()
		format, err := codec.ParseFormat(q.Get("format"))
		if err != nil {
			return nil, err
		}
		data, err := readUpload(r.Body, a.maxImportSize())
		if err != nil {
			return nil, err
		}
		order, err := ws.ClassOrder()
		if err != nil {
			return nil, err
		}
		return ws.Importer.Import(r.Context(), codec.Request{
			Format:        format,
			Name:          q.Get("name"),
			Data:          data,
			ImageID:       q.Get("image"),
			CategoryOrder: order,
			User:          a.Config.User,
		})
	}))
	mux.HandleFunc("GET /api/export", a.handleExport)
	mux.HandleFunc("POST /api/export/publish", a.api(func(r *http.Request, ws *Workspace) (any, error) {
		if a.Exports == nil {
			return nil, fmt.Errorf("%w: publishing is not configured", domain.ErrState)
		}
		b, _, err := a.export(r, ws)
		if err != nil {
			return nil, err
		}
		urls, err := codec.Publish(r.Context(), a.Exports, b)
		if err != nil {
			return nil, err
		}
		return map[string]any{"format": b.Format, "urls": urls}, nil
	}))
	if a.Exports != nil {
		mux.Handle("GET "+a.Exports.Prefix, a.Exports)
	}

	log.Printf("images dir: %s", a.ImagesDir)

	var handler http.Handler = mux
	handler = i18nMiddleware(handler)
	handler = HTTPLogger(handler)
	return handler
}

func (a *AnnotatorApp) handleHome(w http.ResponseWriter, r *http.Request) {
	out, err := a.Do(r.Context(), func(ws *Workspace) (any, error) {
		counts := make(map[string]int, len(ws.Images()))
		for _, img := range ws.Images() {
			counts[img.ID] = len(ws.Store.ListByImage(img.ID))
		}
		return map[string]any{
			"Categories": ws.Registry.List(),
			"Images":     ws.Images(),
			"Counts":     counts,
		}, nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	data := out.(map[string]any)
	data["Title"] = Localize(ctx, "Welcome", nil)
	data["Description"] = stringOr(a.Config.Meta.Description, Localize(ctx, "NoDescription", nil))
	data["Lang"] = a.Config.I18n.Language
	data["HelpLabel"] = Localize(ctx, "Help", nil)
	data["CategoriesLabel"] = Localize(ctx, "Categories", nil)
	data["ImagesLabel"] = Localize(ctx, "Images", nil)
	data["NoImagesLabel"] = Localize(ctx, "NoImages", nil)
	data["ExportLabel"] = Localize(ctx, "Export", nil)
	if err := RenderPage(w, "home.html", data); err != nil {
		log.Printf("error: http: while rendering home: %s", err)
	}
}

func (a *AnnotatorApp) handleHelp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body := Localize(ctx, "HelpBody", map[string]any{"MinSize": a.Config.DrawingConfig().MinSize})
	data := map[string]any{
		"Title":     Localize(ctx, "Help", nil),
		"HelpLabel": Localize(ctx, "Help", nil),
		"Lang":      a.Config.I18n.Language,
		"Content":   markdown(body),
	}
	if err := RenderPage(w, "help.html", data); err != nil {
		log.Printf("error: http: while rendering help: %s", err)
	}
}

func (a *AnnotatorApp) handleAsset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	log.Printf("http: fetching asset id %s", id)
	out, err := a.Do(r.Context(), func(ws *Workspace) (any, error) {
		return ws.Image(id)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	img := out.(domain.Image)
	http.ServeFile(w, r, filepath.Join(a.ImagesDir, filepath.Base(img.Filename)))
}

func (a *AnnotatorApp) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	type previewData struct {
		image       domain.Image
		annotations []domain.Annotation
		categories  []domain.Category
	}
	out, err := a.Do(r.Context(), func(ws *Workspace) (any, error) {
		img, err := ws.Image(id)
		if err != nil {
			return nil, err
		}
		return previewData{img, ws.Store.ListByImage(id), ws.Registry.List()}, nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	pd := out.(previewData)
	src, err := DecodeImage(filepath.Join(a.ImagesDir, filepath.Base(pd.image.Filename)))
	if err != nil {
		writeError(w, r, fmt.Errorf("while decoding %s: %w", pd.image.Filename, err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := WritePreview(w, src, pd.annotations, pd.categories); err != nil {
		log.Printf("error: http: while encoding preview: %s", err)
	}
}

// export builds the bundle selected by the format and images query values
func (a *AnnotatorApp) export(r *http.Request, ws *Workspace) (codec.Bundle, []string, error) {
	q := r.URL.Query()
	format, err := codec.ParseFormat(stringOr(q.Get("format"), "json"))
	if err != nil {
		return codec.Bundle{}, nil, err
	}
	var imageIDs []string
	if images := q.Get("images"); images != "" {
		imageIDs = strings.Split(images, ",")
	}
	order, err := ws.ClassOrder()
	if err != nil {
		return codec.Bundle{}, nil, err
	}
	b, err := ws.Exporter.Export(r.Context(), codec.ExportRequest{Format: format, ImageIDs: imageIDs, CategoryOrder: order})
	if err != nil {
		return codec.Bundle{}, nil, err
	}
	return b, ws.ClassNames(order), nil
}

func (a *AnnotatorApp) handleExport(w http.ResponseWriter, r *http.Request) {
	type exported struct {
		bundle  codec.Bundle
		classes []string
	}
	out, err := a.Do(r.Context(), func(ws *Workspace) (any, error) {
		b, classes, err := a.export(r, ws)
		return exported{b, classes}, err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	ex := out.(exported)
	if ex.bundle.Format != codec.FormatYOLO && len(ex.bundle.Files) == 1 {
		f := ex.bundle.Files[0]
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
		w.Write(f.Data)
		return
	}
	archive, err := zipYOLODataset(ex.bundle, ex.classes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="labels.zip"`)
	w.Write(archive)
}

// zipYOLODataset lays the bundle out as a YOLO dataset in memory and
// archives it
func zipYOLODataset(b codec.Bundle, classes []string) ([]byte, error) {
	fs := memfs.New()
	if err := codec.WriteYOLODataset(fs, "/", b, classes); err != nil {
		return nil, err
	}
	names := []string{"data.yaml"}
	for _, f := range b.Files {
		names = append(names, path.Join("labels", f.Name))
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		data, err := util.ReadFile(fs, "/"+name)
		if err != nil {
			return nil, fmt.Errorf("while reading %s: %w", name, err)
		}
		fw, err := zw.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *AnnotatorApp) maxImportSize() int64 {
	if a.MaxImportSize > 0 {
		return a.MaxImportSize
	}
	return defaultMaxImportSize
}

// readUpload reads the whole body, refusing bodies over limit bytes
// instead of cutting them
func readUpload(body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, domain.Validationf("while reading upload: %s", err)
	}
	if int64(len(data)) > limit {
		return nil, domain.Validationf("file exceeds %d bytes", limit)
	}
	return data, nil
}
