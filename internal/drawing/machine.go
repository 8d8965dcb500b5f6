package drawing

import (
	"github.com/lewtec/demarcador/internal/domain"
	"github.com/lewtec/demarcador/internal/geometry"
	"github.com/lewtec/demarcador/internal/store"
)

// Annotations is the part of the store a Machine writes to
type Annotations interface {
	Create(in store.NewAnnotation) (domain.Annotation, error)
	Update(id string, patch domain.AnnotationPatch) (domain.Annotation, error)
}

// Categories answers whether a category id is live
type Categories interface {
	Exists(id string) bool
}

// Result is the outcome of one gesture event
type Result struct {
	Effect
	Phase   Phase
	Created *domain.Annotation
	Updated *domain.Annotation
}

// Machine owns the drawing state of one workspace
type Machine struct {
	cfg         Config
	state       State
	annotations Annotations
	categories  Categories
	user        string
}

// NewMachine returns a machine in Idle with draw mode on
func NewMachine(annotations Annotations, categories Categories, cfg Config, user string) *Machine {
	if cfg.MinSize <= 0 {
		cfg.MinSize = geometry.DefaultMinSize
	}
	if cfg.HandleRadius <= 0 {
		cfg.HandleRadius = geometry.DefaultHandleRadius
	}
	return &Machine{
		cfg:         cfg,
		state:       NewState(),
		annotations: annotations,
		categories:  categories,
		user:        user,
	}
}

// State returns a copy of the current state
func (m *Machine) State() State {
	return m.state
}

// Config returns the thresholds in use
func (m *Machine) Config() Config {
	return m.cfg
}

// Down handles a pointer press at p. When selected is a box of img and p
// hits one of its handles a resize starts, otherwise a new box with
// categoryID is started.
func (m *Machine) Down(img domain.Image, p geometry.Point, categoryID string, selected *domain.Annotation) (Result, error) {
	if !img.HasDimensions() {
		return Result{Phase: m.state.Phase}, domain.Validationf("image %s has no dimensions", img.ID)
	}
	p = geometry.ClampPoint(p, float64(img.Width), float64(img.Height))

	if m.state.Phase == Idle && selected != nil && selected.ImageID == img.ID {
		rect := geometry.DenormalizeBBox(selected.BBox, float64(img.Width), float64(img.Height))
		if h := geometry.HitTestHandle(p, rect, m.cfg.HandleRadius); h != geometry.HandleNone {
			return m.handle(img, ResizeStart{Point: p, ImageID: img.ID, AnnotationID: selected.ID, Handle: h, Rect: rect})
		}
	}
	if categoryID != "" && !m.categories.Exists(categoryID) {
		return Result{Phase: m.state.Phase}, domain.Validationf("unknown category %s", categoryID)
	}
	return m.handle(img, PointerDown{Point: p, ImageID: img.ID, CategoryID: categoryID})
}

// Move handles pointer motion
func (m *Machine) Move(img domain.Image, p geometry.Point) (Result, error) {
	return m.handle(img, PointerMove{Point: geometry.ClampPoint(p, float64(img.Width), float64(img.Height))})
}

// Up handles a pointer release and commits the gesture when it is large enough
func (m *Machine) Up(img domain.Image, p geometry.Point) (Result, error) {
	return m.handle(img, PointerUp{Point: geometry.ClampPoint(p, float64(img.Width), float64(img.Height))})
}

// Cancel aborts the gesture in progress
func (m *Machine) Cancel() Result {
	res, _ := m.handle(domain.Image{}, Cancel{})
	return res
}

// ToggleDrawMode flips draw mode and returns the new value
func (m *Machine) ToggleDrawMode() bool {
	m.handle(domain.Image{}, ToggleDrawMode{})
	return m.state.DrawMode
}

func (m *Machine) handle(img domain.Image, ev Event) (Result, error) {
	next, eff := m.cfg.Step(m.state, ev)
	m.state = next
	res := Result{Effect: eff, Phase: next.Phase}
	if eff.Err != nil {
		return res, eff.Err
	}
	if eff.Commit == nil {
		return res, nil
	}

	c := eff.Commit
	if c.ImageID != img.ID {
		return res, domain.Validationf("gesture started on image %s ended on %s", c.ImageID, img.ID)
	}
	bbox := geometry.NormalizeRect(c.Rect, float64(img.Width), float64(img.Height))
	if c.AnnotationID != "" {
		a, err := m.annotations.Update(c.AnnotationID, domain.AnnotationPatch{BBox: &bbox, UpdatedBy: m.user})
		if err != nil {
			return res, err
		}
		res.Updated = &a
		return res, nil
	}
	a, err := m.annotations.Create(store.NewAnnotation{
		ImageID:    c.ImageID,
		CategoryID: c.CategoryID,
		BBox:       bbox,
		CreatedBy:  m.user,
	})
	if err != nil {
		return res, err
	}
	res.Created = &a
	return res, nil
}
