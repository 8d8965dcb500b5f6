// Package category holds the ordered set of label classes boxes can be
// assigned to.
package category

import (
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/lewtec/demarcador/internal/domain"
	"github.com/lewtec/demarcador/internal/store"
)

var colorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// palette is cycled when a category is created without a color
var palette = []string{
	"#3b82f6", "#f59e0b", "#8b5cf6", "#ec4899",
	"#14b8a6", "#f97316", "#84cc16", "#06b6d4",
}

// AnnotationSet is the view of the annotation store a registry needs to
// keep annotations consistent when a category goes away.
type AnnotationSet interface {
	CountByCategory(id string) int
	DropCategory(id, reassignTo string, comp store.Compensation) (int, error)
}

// EventKind tells listeners what happened to a category
type EventKind string

const (
	EventSaved   EventKind = "saved"
	EventDeleted EventKind = "deleted"
)

// Event is emitted whenever a category record changes
type Event struct {
	Kind     EventKind
	Category domain.Category
}

// Listener receives registry events synchronously
type Listener func(Event)

// DeleteOptions says what happens to annotations of a deleted category.
// ReassignTo wins over DeleteAnnotations.
type DeleteOptions struct {
	ReassignTo        string
	DeleteAnnotations bool
}

// DeleteResult counts the annotations touched by a delete
type DeleteResult struct {
	Reassigned int
	Deleted    int
}

// Registry is single-writer: callers serialize access
type Registry struct {
	items       []domain.Category
	annotations AnnotationSet
	listeners   map[int]Listener
	nextSub     int
	accessed    bool
	nextColor   int
	newID       func() string
}

// Option customizes a Registry
type Option func(*Registry)

// WithIDGenerator replaces the uuid generator
func WithIDGenerator(newID func() string) Option {
	return func(r *Registry) { r.newID = newID }
}

// NewRegistry returns an empty registry. Defaults are seeded on first access
// unless categories are loaded before.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		listeners: make(map[int]Listener),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach connects the annotation store consulted on deletes
func (r *Registry) Attach(set AnnotationSet) {
	r.annotations = set
}

// Subscribe registers l and returns the function detaching it
func (r *Registry) Subscribe(l Listener) func() {
	id := r.nextSub
	r.nextSub++
	r.listeners[id] = l
	return func() { delete(r.listeners, id) }
}

// Load replaces the categories with persisted records, sorted by order
func (r *Registry) Load(cats []domain.Category) {
	r.items = slices.Clone(cats)
	slices.SortStableFunc(r.items, func(a, b domain.Category) int { return a.Order - b.Order })
	r.accessed = false
}

// EnsureDefaults seeds the default categories into an empty registry
func (r *Registry) EnsureDefaults() {
	r.accessed = true
	if len(r.items) > 0 {
		return
	}
	for _, c := range domain.DefaultCategories() {
		r.items = append(r.items, c)
		r.emit(Event{Kind: EventSaved, Category: c})
	}
}

func (r *Registry) touch() {
	if !r.accessed {
		r.EnsureDefaults()
	}
}

// List returns the categories in order
func (r *Registry) List() []domain.Category {
	r.touch()
	return slices.Clone(r.items)
}

// Len returns the number of categories
func (r *Registry) Len() int {
	r.touch()
	return len(r.items)
}

// Get returns the category with the given id
func (r *Registry) Get(id string) (domain.Category, error) {
	r.touch()
	if i := r.index(id); i >= 0 {
		return r.items[i], nil
	}
	return domain.Category{}, domain.NotFoundf("category %s", id)
}

// At returns the category at a 1-based position
func (r *Registry) At(position int) (domain.Category, bool) {
	r.touch()
	if position < 1 || position > len(r.items) {
		return domain.Category{}, false
	}
	return r.items[position-1], true
}

// Exists reports whether id names a live category
func (r *Registry) Exists(id string) bool {
	r.touch()
	return r.index(id) >= 0
}

// Create adds a category at the end of the order
func (r *Registry) Create(name, color, description string) (domain.Category, error) {
	r.touch()
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, domain.Validationf("category name is required")
	}
	if color == "" {
		color = palette[r.nextColor%len(palette)]
		r.nextColor++
	} else if !colorPattern.MatchString(color) {
		return domain.Category{}, domain.Validationf("invalid color %q", color)
	}
	order := 0
	for _, c := range r.items {
		order = max(order, c.Order)
	}
	c := domain.Category{
		ID:          r.newID(),
		Name:        name,
		Color:       color,
		Description: description,
		Order:       order + 1,
	}
	r.items = append(r.items, c)
	r.emit(Event{Kind: EventSaved, Category: c})
	return c, nil
}

// Update applies patch to the category with the given id
func (r *Registry) Update(id string, patch domain.CategoryPatch) (domain.Category, error) {
	r.touch()
	i := r.index(id)
	if i < 0 {
		return domain.Category{}, domain.NotFoundf("category %s", id)
	}
	c := r.items[i]
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return domain.Category{}, domain.Validationf("category name is required")
		}
		c.Name = name
	}
	if patch.Color != nil {
		if !colorPattern.MatchString(*patch.Color) {
			return domain.Category{}, domain.Validationf("invalid color %q", *patch.Color)
		}
		c.Color = *patch.Color
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	r.items[i] = c
	r.emit(Event{Kind: EventSaved, Category: c})
	return c, nil
}

// Delete removes a category. A category still used by annotations needs
// either a reassignment target or DeleteAnnotations, otherwise a conflict is
// returned and nothing changes. The removal is recorded in the annotation
// history so undo brings back the category together with its annotations.
func (r *Registry) Delete(id string, opts DeleteOptions) (DeleteResult, error) {
	r.touch()
	i := r.index(id)
	if i < 0 {
		return DeleteResult{}, domain.NotFoundf("category %s", id)
	}
	if opts.ReassignTo != "" {
		if opts.ReassignTo == id {
			return DeleteResult{}, domain.Validationf("cannot reassign category %s to itself", id)
		}
		if r.index(opts.ReassignTo) < 0 {
			return DeleteResult{}, domain.Validationf("reassign target %s does not exist", opts.ReassignTo)
		}
	}

	removed := r.items[i]
	count := 0
	if r.annotations != nil {
		count = r.annotations.CountByCategory(id)
	}
	if count > 0 && opts.ReassignTo == "" && !opts.DeleteAnnotations {
		return DeleteResult{}, domain.Conflictf("category %q is used by %d annotations", removed.Name, count)
	}

	comp := store.Compensation{
		Remove:  func() { r.remove(removed.ID) },
		Restore: func() { r.restore(removed) },
	}
	if r.annotations == nil {
		comp.Remove()
		return DeleteResult{}, nil
	}
	n, err := r.annotations.DropCategory(id, opts.ReassignTo, comp)
	if err != nil {
		return DeleteResult{}, err
	}
	if opts.ReassignTo != "" {
		return DeleteResult{Reassigned: n}, nil
	}
	return DeleteResult{Deleted: n}, nil
}

// Reorder sets the order to match ids, which must name every category once
func (r *Registry) Reorder(ids []string) error {
	r.touch()
	if len(ids) != len(r.items) {
		return domain.Validationf("reorder needs %d ids, got %d", len(r.items), len(ids))
	}
	next := make([]domain.Category, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		i := r.index(id)
		if i < 0 {
			return domain.Validationf("unknown category %s", id)
		}
		if seen[id] {
			return domain.Validationf("category %s listed twice", id)
		}
		seen[id] = true
		next = append(next, r.items[i])
	}
	r.items = next
	r.renumber()
	return nil
}

func (r *Registry) index(id string) int {
	return slices.IndexFunc(r.items, func(c domain.Category) bool { return c.ID == id })
}

func (r *Registry) remove(id string) {
	i := r.index(id)
	if i < 0 {
		return
	}
	c := r.items[i]
	r.items = slices.Delete(r.items, i, i+1)
	r.emit(Event{Kind: EventDeleted, Category: c})
	r.renumber()
}

// restore puts c back at the position its order points to
func (r *Registry) restore(c domain.Category) {
	if r.index(c.ID) >= 0 {
		return
	}
	pos := min(max(c.Order-1, 0), len(r.items))
	r.items = slices.Insert(r.items, pos, c)
	r.emit(Event{Kind: EventSaved, Category: c})
	r.renumber()
}

// renumber keeps orders dense and 1-based, emitting every changed record
func (r *Registry) renumber() {
	for i := range r.items {
		if r.items[i].Order != i+1 {
			r.items[i].Order = i + 1
			r.emit(Event{Kind: EventSaved, Category: r.items[i]})
		}
	}
}

func (r *Registry) emit(ev Event) {
	for _, l := range r.listeners {
		l(ev)
	}
}
