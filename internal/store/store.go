// Package store keeps the authoritative in-memory set of annotations for
// the active image set, together with the undo/redo history of every
// change made to it.
package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lewtec/demarcador/internal/domain"
)

// CategoryLookup answers whether a category id is live
type CategoryLookup interface {
	Exists(id string) bool
}

// EventKind tells listeners what happened to an annotation
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// Event is emitted for every applied change, replays included
type Event struct {
	Kind       EventKind
	Annotation domain.Annotation
}

// Listener receives store events synchronously
type Listener func(Event)

// NewAnnotation is the input of Create. ID and the timestamps are optional
// and only set when importing existing records.
type NewAnnotation struct {
	ID         string
	ImageID    string
	CategoryID string
	BBox       domain.BBox
	State      domain.State
	CreatedBy  string
	CreatedAt  time.Time
	UpdatedBy  string
	UpdatedAt  time.Time
}

// DeleteResult reports the removed annotation and whether the selection went with it
type DeleteResult struct {
	Annotation       domain.Annotation
	SelectionCleared bool
}

type record struct {
	ann domain.Annotation
	seq uint64
}

type batch struct {
	changes []change
}

// Store is single-writer: callers serialize access
type Store struct {
	categories CategoryLookup
	items      map[string]record
	seq        uint64
	history    history
	batch      *batch
	selected   string
	listeners  map[int]Listener
	nextSub    int

	now   func() time.Time
	newID func() string
	user  string
}

// Option customizes a Store
type Option func(*Store)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the uuid generator
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// WithUser sets the author recorded when callers do not name one
func WithUser(user string) Option {
	return func(s *Store) { s.user = user }
}

// New creates an empty store validating categories against categories
func New(categories CategoryLookup, opts ...Option) *Store {
	s := &Store{
		categories: categories,
		items:      make(map[string]record),
		listeners:  make(map[int]Listener),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers l and returns the function detaching it
func (s *Store) Subscribe(l Listener) func() {
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = l
	return func() { delete(s.listeners, id) }
}

// Load replaces the contents with previously persisted annotations. The
// history and the selection are reset and no events are emitted.
func (s *Store) Load(anns []domain.Annotation) error {
	items := make(map[string]record, len(anns))
	var seq uint64
	for _, a := range anns {
		if _, dup := items[a.ID]; dup || a.ID == "" {
			return domain.Validationf("duplicate or empty annotation id %q", a.ID)
		}
		if err := a.BBox.Validate(); err != nil {
			return fmt.Errorf("annotation %s: %w", a.ID, err)
		}
		if !s.categories.Exists(a.CategoryID) {
			return fmt.Errorf("annotation %s: %w %q", a.ID, domain.ErrCategoryRequired, a.CategoryID)
		}
		seq++
		items[a.ID] = record{ann: a, seq: seq}
	}
	s.items = items
	s.seq = seq
	s.history.reset()
	s.selected = ""
	return nil
}

// Create validates and inserts a new annotation
func (s *Store) Create(in NewAnnotation) (domain.Annotation, error) {
	if in.ImageID == "" {
		return domain.Annotation{}, domain.Validationf("image id is required")
	}
	if err := s.checkCategory(in.CategoryID); err != nil {
		return domain.Annotation{}, err
	}
	if err := in.BBox.Validate(); err != nil {
		return domain.Annotation{}, err
	}
	state := in.State
	if state == "" {
		state = domain.StateDraft
	}
	if !state.Valid() {
		return domain.Annotation{}, domain.Validationf("unknown state %q", state)
	}
	id := in.ID
	if id == "" {
		id = s.newID()
	}
	if _, exists := s.items[id]; exists {
		return domain.Annotation{}, domain.Validationf("annotation %s already exists", id)
	}

	createdBy := stringOr(in.CreatedBy, s.user)
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}
	updatedAt := in.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	ann := domain.Annotation{
		ID:         id,
		ImageID:    in.ImageID,
		CategoryID: in.CategoryID,
		BBox:       in.BBox,
		CreatedBy:  createdBy,
		CreatedAt:  createdAt,
		UpdatedBy:  stringOr(in.UpdatedBy, createdBy),
		UpdatedAt:  updatedAt,
		State:      state,
	}
	s.seq++
	s.commit(entry{label: "create", changes: []change{{op: opInsert, after: record{ann: ann, seq: s.seq}}}})
	return ann, nil
}

// Update applies patch to the annotation with the given id
func (s *Store) Update(id string, patch domain.AnnotationPatch) (domain.Annotation, error) {
	rec, ok := s.items[id]
	if !ok {
		return domain.Annotation{}, domain.NotFoundf("annotation %s", id)
	}
	next := rec.ann
	if patch.CategoryID != nil {
		if err := s.checkCategory(*patch.CategoryID); err != nil {
			return domain.Annotation{}, err
		}
		next.CategoryID = *patch.CategoryID
	}
	if patch.State != nil {
		if !patch.State.Valid() {
			return domain.Annotation{}, domain.Validationf("unknown state %q", *patch.State)
		}
		next.State = *patch.State
	}
	if patch.BBox != nil {
		if err := patch.BBox.Validate(); err != nil {
			return domain.Annotation{}, err
		}
		next.BBox = *patch.BBox
	}
	next.UpdatedBy = stringOr(patch.UpdatedBy, s.user)
	next.UpdatedAt = s.now().UTC()

	s.commit(entry{label: "update", changes: []change{{op: opReplace, before: rec, after: record{ann: next, seq: rec.seq}}}})
	return next, nil
}

// Delete removes the annotation with the given id
func (s *Store) Delete(id string) (DeleteResult, error) {
	rec, ok := s.items[id]
	if !ok {
		return DeleteResult{}, domain.NotFoundf("annotation %s", id)
	}
	cleared := s.selected == id
	s.commit(entry{label: "delete", changes: []change{{op: opRemove, before: rec}}})
	return DeleteResult{Annotation: rec.ann, SelectionCleared: cleared}, nil
}

// Get returns the annotation with the given id
func (s *Store) Get(id string) (domain.Annotation, error) {
	rec, ok := s.items[id]
	if !ok {
		return domain.Annotation{}, domain.NotFoundf("annotation %s", id)
	}
	return rec.ann, nil
}

// ListByImage returns the annotations of one image in creation order
func (s *Store) ListByImage(imageID string) []domain.Annotation {
	return s.collect(func(a domain.Annotation) bool { return a.ImageID == imageID })
}

// List returns every annotation in creation order
func (s *Store) List() []domain.Annotation {
	return s.collect(func(domain.Annotation) bool { return true })
}

// Len returns the number of annotations
func (s *Store) Len() int {
	return len(s.items)
}

// Select marks id as the selected annotation; an empty id clears the selection
func (s *Store) Select(id string) error {
	if id != "" {
		if _, ok := s.items[id]; !ok {
			return domain.NotFoundf("annotation %s", id)
		}
	}
	s.selected = id
	return nil
}

// Selected returns the selected annotation id, empty when nothing is selected
func (s *Store) Selected() string {
	return s.selected
}

// CanUndo reports whether Undo has something to revert
func (s *Store) CanUndo() bool { return s.history.canUndo() }

// CanRedo reports whether Redo has something to reapply
func (s *Store) CanRedo() bool { return s.history.canRedo() }

// Undo reverts the last entry. It returns false when the history is empty.
func (s *Store) Undo() (bool, error) {
	if s.batch != nil {
		return false, fmt.Errorf("%w: undo while a batch is open", domain.ErrState)
	}
	if !s.history.canUndo() {
		return false, nil
	}
	e := s.history.entries[s.history.cursor-1]
	e.comp.restore()
	inverse := e.inverse()
	if err := s.checkReplay(inverse); err != nil {
		e.comp.remove()
		return false, err
	}
	s.applyAll(inverse)
	s.history.cursor--
	return true, nil
}

// Redo reapplies the last undone entry. It returns false when there is none.
func (s *Store) Redo() (bool, error) {
	if s.batch != nil {
		return false, fmt.Errorf("%w: redo while a batch is open", domain.ErrState)
	}
	if !s.history.canRedo() {
		return false, nil
	}
	e := s.history.entries[s.history.cursor]
	if err := s.checkReplay(e.changes); err != nil {
		return false, err
	}
	s.applyAll(e.changes)
	e.comp.remove()
	s.history.cursor++
	return true, nil
}

// Batch groups every change made by fn into a single history entry. When fn
// returns an error the changes are rolled back and nothing is recorded.
func (s *Store) Batch(fn func() error) error {
	if s.batch != nil {
		return fmt.Errorf("%w: batches cannot be nested", domain.ErrState)
	}
	s.batch = &batch{}
	err := fn()
	b := s.batch
	s.batch = nil
	if err != nil {
		s.applyAll(entry{changes: b.changes}.inverse())
		return err
	}
	if len(b.changes) > 0 {
		s.history.push(entry{label: "batch", changes: b.changes})
	}
	return nil
}

// CountByCategory returns how many annotations use the category
func (s *Store) CountByCategory(id string) int {
	n := 0
	for _, rec := range s.items {
		if rec.ann.CategoryID == id {
			n++
		}
	}
	return n
}

// DropCategory detaches every annotation of category id, moving them to
// reassignTo or deleting them when reassignTo is empty. The change set and
// comp are recorded as one history entry; comp.Remove runs once the
// annotations are detached.
func (s *Store) DropCategory(id, reassignTo string, comp Compensation) (int, error) {
	if s.batch != nil {
		return 0, fmt.Errorf("%w: category removal inside a batch", domain.ErrState)
	}
	if reassignTo != "" {
		if err := s.checkCategory(reassignTo); err != nil {
			return 0, err
		}
	}
	var affected []record
	for _, rec := range s.items {
		if rec.ann.CategoryID == id {
			affected = append(affected, rec)
		}
	}
	sort.Slice(affected, func(i, j int) bool { return affected[i].seq < affected[j].seq })

	now := s.now().UTC()
	changes := make([]change, 0, len(affected))
	for _, rec := range affected {
		if reassignTo == "" {
			changes = append(changes, change{op: opRemove, before: rec})
			continue
		}
		next := rec.ann
		next.CategoryID = reassignTo
		next.UpdatedAt = now
		next.UpdatedBy = stringOr(s.user, next.UpdatedBy)
		changes = append(changes, change{op: opReplace, before: rec, after: record{ann: next, seq: rec.seq}})
	}
	s.applyAll(changes)
	comp.remove()
	s.history.push(entry{label: "drop category", changes: changes, comp: comp})
	return len(changes), nil
}

func (s *Store) checkCategory(id string) error {
	if id == "" || !s.categories.Exists(id) {
		return fmt.Errorf("%w: %q is not a known category", domain.ErrCategoryRequired, id)
	}
	return nil
}

// checkReplay refuses a replay that would break an invariant, which only
// happens when the contents were reloaded underneath the history.
func (s *Store) checkReplay(changes []change) error {
	for _, c := range changes {
		switch c.op {
		case opInsert:
			if _, ok := s.items[c.after.ann.ID]; ok {
				return fmt.Errorf("%w: annotation %s already exists", domain.ErrState, c.after.ann.ID)
			}
			if err := s.checkCategory(c.after.ann.CategoryID); err != nil {
				return err
			}
		case opReplace:
			if _, ok := s.items[c.before.ann.ID]; !ok {
				return fmt.Errorf("%w: annotation %s is gone", domain.ErrState, c.before.ann.ID)
			}
			if err := s.checkCategory(c.after.ann.CategoryID); err != nil {
				return err
			}
		case opRemove:
			if _, ok := s.items[c.before.ann.ID]; !ok {
				return fmt.Errorf("%w: annotation %s is gone", domain.ErrState, c.before.ann.ID)
			}
		}
	}
	return nil
}

func (s *Store) commit(e entry) {
	s.applyAll(e.changes)
	if s.batch != nil {
		s.batch.changes = append(s.batch.changes, e.changes...)
		return
	}
	s.history.push(e)
}

func (s *Store) applyAll(changes []change) {
	for _, c := range changes {
		s.apply(c)
	}
}

func (s *Store) apply(c change) {
	switch c.op {
	case opInsert:
		s.items[c.after.ann.ID] = c.after
		s.emit(Event{Kind: EventCreated, Annotation: c.after.ann})
	case opReplace:
		s.items[c.after.ann.ID] = c.after
		s.emit(Event{Kind: EventUpdated, Annotation: c.after.ann})
	case opRemove:
		delete(s.items, c.before.ann.ID)
		if s.selected == c.before.ann.ID {
			s.selected = ""
		}
		s.emit(Event{Kind: EventDeleted, Annotation: c.before.ann})
	}
}

func (s *Store) emit(ev Event) {
	for _, l := range s.listeners {
		l(ev)
	}
}

func (s *Store) collect(keep func(domain.Annotation) bool) []domain.Annotation {
	recs := make([]record, 0, len(s.items))
	for _, rec := range s.items {
		if keep(rec.ann) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	out := make([]domain.Annotation, len(recs))
	for i, rec := range recs {
		out[i] = rec.ann
	}
	return out
}

func stringOr(str, or string) string {
	if str != "" {
		return str
	}
	return or
}
