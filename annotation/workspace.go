package annotation

import (
	"context"
	"fmt"
	"slices"

	"github.com/lewtec/demarcador/internal/category"
	"github.com/lewtec/demarcador/internal/codec"
	"github.com/lewtec/demarcador/internal/domain"
	"github.com/lewtec/demarcador/internal/drawing"
	"github.com/lewtec/demarcador/internal/geometry"
	"github.com/lewtec/demarcador/internal/shortcut"
	"github.com/lewtec/demarcador/internal/store"
	log "github.com/sirupsen/logrus"
)

// WorkspaceDeps are the collaborators a workspace is loaded from and
// persisted to
type WorkspaceDeps struct {
	Images      domain.ImageSource
	Annotations domain.AnnotationPersister
	Categories  domain.CategoryPersister
	DatasetID   string
	Config      *Config
}

type opKind int

const (
	opSaveAnnotation opKind = iota
	opRemoveAnnotation
	opSaveCategory
	opRemoveCategory
)

type pendingOp struct {
	kind       opKind
	annotation domain.Annotation
	category   domain.Category
}

// Workspace is one editing session over an image set. It is not safe for
// concurrent use; the HTTP host serializes access.
type Workspace struct {
	Registry *category.Registry
	Store    *store.Store
	Drawing  *drawing.Machine
	Keys     *shortcut.Dispatcher
	Importer *codec.Importer
	Exporter *codec.Exporter

	images      []domain.Image
	current     int
	category    string
	user        string
	exportOrder []string

	annotations domain.AnnotationPersister
	categories  domain.CategoryPersister
	pending     []pendingOp
	unsubscribe []func()
}

// OpenWorkspace loads images, categories and annotations and wires the
// editing components together
func OpenWorkspace(ctx context.Context, deps WorkspaceDeps) (*Workspace, error) {
	cfg := deps.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	images, err := deps.Images.FetchImages(ctx, deps.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("while loading images: %w", err)
	}
	cats, err := deps.Categories.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("while loading categories: %w", err)
	}
	anns, err := deps.Annotations.ListPersisted(ctx)
	if err != nil {
		return nil, fmt.Errorf("while loading annotations: %w", err)
	}

	w := &Workspace{
		images:      images,
		user:        cfg.User,
		exportOrder: cfg.Export.CategoryOrder,
		annotations: deps.Annotations,
		categories:  deps.Categories,
	}
	w.Registry = category.NewRegistry()
	w.Store = store.New(w.Registry, store.WithUser(cfg.User))
	w.Registry.Attach(w.Store)
	w.unsubscribe = append(w.unsubscribe,
		w.Registry.Subscribe(w.onCategoryEvent),
		w.Store.Subscribe(w.onAnnotationEvent),
	)

	if len(cats) > 0 {
		w.Registry.Load(cats)
	} else if seeds := cfg.SeedCategories(); len(seeds) > 0 {
		w.Registry.Load(seeds)
		for _, c := range seeds {
			w.pending = append(w.pending, pendingOp{kind: opSaveCategory, category: c})
		}
	}
	w.Registry.EnsureDefaults()

	if err := w.Store.Load(anns); err != nil {
		return nil, fmt.Errorf("while loading annotations: %w", err)
	}

	w.Drawing = drawing.NewMachine(w.Store, w.Registry, cfg.DrawingConfig(), cfg.User)
	w.Importer = codec.NewImporter(w.Store, w.Registry, w)
	w.Exporter = codec.NewExporter(w.Store, w.Registry, w)
	w.Keys = shortcut.NewDispatcher()
	w.Keys.Attach(w)

	if first, ok := w.Registry.At(1); ok {
		w.category = first.ID
	}
	log.Printf("workspace: %d images, %d categories, %d annotations", len(images), w.Registry.Len(), w.Store.Len())
	return w, nil
}

// Close detaches the keyboard and the event listeners
func (w *Workspace) Close() {
	w.Keys.Detach()
	for _, fn := range w.unsubscribe {
		fn()
	}
	w.unsubscribe = nil
}

func (w *Workspace) onAnnotationEvent(ev store.Event) {
	op := pendingOp{kind: opSaveAnnotation, annotation: ev.Annotation}
	if ev.Kind == store.EventDeleted {
		op.kind = opRemoveAnnotation
	}
	w.pending = append(w.pending, op)
}

func (w *Workspace) onCategoryEvent(ev category.Event) {
	op := pendingOp{kind: opSaveCategory, category: ev.Category}
	if ev.Kind == category.EventDeleted {
		op.kind = opRemoveCategory
		if w.category == ev.Category.ID {
			w.category = ""
		}
	}
	w.pending = append(w.pending, op)
}

// Pending returns how many changes wait to be persisted
func (w *Workspace) Pending() int {
	return len(w.pending)
}

// Sync persists queued changes through the persisters the workspace was
// opened with
func (w *Workspace) Sync(ctx context.Context) error {
	return w.SyncWith(ctx, w.annotations, w.categories)
}

// SyncWith persists queued changes in order. On failure the queue is kept
// whole so the caller can retry, typically after rolling back a transaction.
func (w *Workspace) SyncWith(ctx context.Context, annotations domain.AnnotationPersister, categories domain.CategoryPersister) error {
	for _, op := range w.pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		switch op.kind {
		case opSaveAnnotation:
			_, err = annotations.Persist(ctx, op.annotation)
		case opRemoveAnnotation:
			err = annotations.RemovePersisted(ctx, op.annotation.ID)
		case opSaveCategory:
			err = categories.SaveCategory(ctx, op.category)
		case opRemoveCategory:
			err = categories.DeleteCategory(ctx, op.category.ID)
		}
		if err != nil {
			return fmt.Errorf("while persisting changes: %w", err)
		}
	}
	w.pending = nil
	return nil
}

// Images lists the image set in display order
func (w *Workspace) Images() []domain.Image {
	return w.images
}

// Image returns the image with the given id
func (w *Workspace) Image(id string) (domain.Image, error) {
	i := slices.IndexFunc(w.images, func(img domain.Image) bool { return img.ID == id })
	if i < 0 {
		return domain.Image{}, domain.NotFoundf("image %s", id)
	}
	return w.images[i], nil
}

// CurrentImage returns the image being edited
func (w *Workspace) CurrentImage() (domain.Image, bool) {
	if len(w.images) == 0 {
		return domain.Image{}, false
	}
	return w.images[w.current], true
}

// SetCurrentImage moves the editor to the image with the given id
func (w *Workspace) SetCurrentImage(id string) error {
	i := slices.IndexFunc(w.images, func(img domain.Image) bool { return img.ID == id })
	if i < 0 {
		return domain.NotFoundf("image %s", id)
	}
	w.moveTo(i)
	return nil
}

// NextImage moves to the following image, false at the end of the set
func (w *Workspace) NextImage() bool {
	if w.current+1 >= len(w.images) {
		return false
	}
	w.moveTo(w.current + 1)
	return true
}

// PreviousImage moves to the preceding image, false at the start of the set
func (w *Workspace) PreviousImage() bool {
	if w.current == 0 || len(w.images) == 0 {
		return false
	}
	w.moveTo(w.current - 1)
	return true
}

func (w *Workspace) moveTo(i int) {
	if i == w.current {
		return
	}
	w.Drawing.Cancel()
	w.current = i
	if sel := w.Store.Selected(); sel != "" {
		if a, err := w.Store.Get(sel); err == nil && a.ImageID != w.images[i].ID {
			w.Store.Select("")
		}
	}
}

// SelectedCategory returns the category new boxes get, empty when none
func (w *Workspace) SelectedCategory() string {
	return w.category
}

// SelectCategory picks the category for new boxes; empty clears it
func (w *Workspace) SelectCategory(id string) error {
	if id != "" && !w.Registry.Exists(id) {
		return domain.NotFoundf("category %s", id)
	}
	w.category = id
	return nil
}

// SelectCategoryAt picks the category at a 1-based position
func (w *Workspace) SelectCategoryAt(position int) bool {
	c, ok := w.Registry.At(position)
	if !ok {
		return false
	}
	w.category = c.ID
	return true
}

// ToggleDrawMode flips draw mode
func (w *Workspace) ToggleDrawMode() bool {
	return w.Drawing.ToggleDrawMode()
}

// CancelDraw aborts the gesture in progress
func (w *Workspace) CancelDraw() {
	w.Drawing.Cancel()
}

// DeleteSelected removes the selected box; nothing happens without a selection
func (w *Workspace) DeleteSelected() error {
	id := w.Store.Selected()
	if id == "" {
		return nil
	}
	_, err := w.Store.Delete(id)
	return err
}

// Undo reverts the last change, aborting any gesture first
func (w *Workspace) Undo() (bool, error) {
	w.Drawing.Cancel()
	return w.Store.Undo()
}

// Redo reapplies the last undone change
func (w *Workspace) Redo() (bool, error) {
	w.Drawing.Cancel()
	return w.Store.Redo()
}

// PointerDown starts a gesture on the current image at pixel p
func (w *Workspace) PointerDown(p geometry.Point) (drawing.Result, error) {
	img, ok := w.CurrentImage()
	if !ok {
		return drawing.Result{}, fmt.Errorf("%w: no image loaded", domain.ErrState)
	}
	var selected *domain.Annotation
	if id := w.Store.Selected(); id != "" {
		if a, err := w.Store.Get(id); err == nil {
			selected = &a
		}
	}
	return w.Drawing.Down(img, p, w.category, selected)
}

// PointerMove updates the gesture preview
func (w *Workspace) PointerMove(p geometry.Point) (drawing.Result, error) {
	img, _ := w.CurrentImage()
	return w.Drawing.Move(img, p)
}

// PointerUp finishes the gesture; a new box becomes the selection
func (w *Workspace) PointerUp(p geometry.Point) (drawing.Result, error) {
	img, _ := w.CurrentImage()
	res, err := w.Drawing.Up(img, p)
	if err != nil {
		return res, err
	}
	if res.Created != nil {
		w.Store.Select(res.Created.ID)
	}
	return res, nil
}

// Key routes a keyboard event through the shortcut dispatcher
func (w *Workspace) Key(ev shortcut.KeyEvent) (shortcut.Result, error) {
	return w.Keys.Dispatch(ev)
}

// ClassOrder resolves the configured YOLO class order to category ids,
// falling back to registry order
func (w *Workspace) ClassOrder() ([]string, error) {
	if len(w.exportOrder) == 0 {
		return codec.ClassOrder(w.Registry.List(), nil), nil
	}
	cats := w.Registry.List()
	ids := make([]string, 0, len(w.exportOrder))
	for _, ref := range w.exportOrder {
		i := slices.IndexFunc(cats, func(c domain.Category) bool { return c.ID == ref || c.Name == ref })
		if i < 0 {
			return nil, domain.Validationf("export category_order names unknown category %q", ref)
		}
		ids = append(ids, cats[i].ID)
	}
	return ids, nil
}

// ClassNames maps class ids to category names for data.yaml
func (w *Workspace) ClassNames(ids []string) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id
		if c, err := w.Registry.Get(id); err == nil {
			names[i] = c.Name
		}
	}
	return names
}
