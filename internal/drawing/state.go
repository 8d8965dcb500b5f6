// Package drawing turns pointer gestures over an image into boxes. Step is a
// pure transition function; Machine drives it against an annotation store.
package drawing

import (
	"github.com/lewtec/demarcador/internal/domain"
	"github.com/lewtec/demarcador/internal/geometry"
)

// Phase is the gesture currently in progress
type Phase int

const (
	Idle Phase = iota
	Drawing
	Resizing
)

func (p Phase) String() string {
	switch p {
	case Drawing:
		return "drawing"
	case Resizing:
		return "resizing"
	default:
		return "idle"
	}
}

// Session is the in-flight gesture. Points are in image pixels.
type Session struct {
	ImageID    string
	CategoryID string
	Start      geometry.Point
	Current    geometry.Point

	AnnotationID string
	Handle       geometry.Handle
	Origin       geometry.Rect
}

// State is the whole machine state. The zero value is Idle with draw mode
// off; use NewState for the editor default.
type State struct {
	Phase    Phase
	DrawMode bool
	Session  Session
}

// NewState returns Idle with draw mode enabled
func NewState() State {
	return State{Phase: Idle, DrawMode: true}
}

// Event is an input to Step
type Event interface {
	event()
}

// PointerDown starts a new box when draw mode is on
type PointerDown struct {
	Point      geometry.Point
	ImageID    string
	CategoryID string
}

// ResizeStart grabs a handle of an existing box
type ResizeStart struct {
	Point        geometry.Point
	ImageID      string
	AnnotationID string
	Handle       geometry.Handle
	Rect         geometry.Rect
}

type PointerMove struct {
	Point geometry.Point
}

type PointerUp struct {
	Point geometry.Point
}

// Cancel aborts the gesture, e.g. on Escape
type Cancel struct{}

// ToggleDrawMode flips draw mode, aborting any gesture
type ToggleDrawMode struct{}

func (PointerDown) event()    {}
func (ResizeStart) event()    {}
func (PointerMove) event()    {}
func (PointerUp) event()      {}
func (Cancel) event()         {}
func (ToggleDrawMode) event() {}

// Commit is a finished gesture. AnnotationID is set for resizes.
type Commit struct {
	ImageID      string
	CategoryID   string
	AnnotationID string
	Rect         geometry.Rect
}

// Effect is what a transition asks the caller to do
type Effect struct {
	Preview   *geometry.Rect
	Commit    *Commit
	Cancelled bool
	Discarded bool
	Err       error
}

// Config holds the gesture thresholds in pixels
type Config struct {
	MinSize      float64
	HandleRadius float64
}

// DefaultConfig returns the standard thresholds
func DefaultConfig() Config {
	return Config{MinSize: geometry.DefaultMinSize, HandleRadius: geometry.DefaultHandleRadius}
}

// Step computes the next state for ev. Rejected events leave the state as is
// and report the reason in Effect.Err.
func (c Config) Step(s State, ev Event) (State, Effect) {
	switch ev := ev.(type) {
	case ToggleDrawMode:
		s.DrawMode = !s.DrawMode
		if s.Phase != Idle {
			return reset(s), Effect{Cancelled: true}
		}
		return s, Effect{}

	case PointerDown:
		if s.Phase != Idle {
			return s, Effect{Err: domain.ErrDrawingInProgress}
		}
		if !s.DrawMode {
			return s, Effect{}
		}
		if ev.CategoryID == "" {
			return s, Effect{Err: domain.ErrNoCategorySelected}
		}
		s.Phase = Drawing
		s.Session = Session{ImageID: ev.ImageID, CategoryID: ev.CategoryID, Start: ev.Point, Current: ev.Point}
		return s, preview(geometry.RectFromPoints(ev.Point, ev.Point))

	case ResizeStart:
		if s.Phase != Idle {
			return s, Effect{Err: domain.ErrDrawingInProgress}
		}
		s.Phase = Resizing
		s.Session = Session{
			ImageID:      ev.ImageID,
			AnnotationID: ev.AnnotationID,
			Handle:       ev.Handle,
			Origin:       ev.Rect,
			Start:        ev.Point,
			Current:      ev.Point,
		}
		return s, preview(ev.Rect)

	case PointerMove:
		if s.Phase == Idle {
			return s, Effect{}
		}
		s.Session.Current = ev.Point
		return s, preview(s.Session.rect())

	case PointerUp:
		if s.Phase == Idle {
			return s, Effect{}
		}
		s.Session.Current = ev.Point
		sess := s.Session
		s = reset(s)
		r := sess.rect()
		if !geometry.ValidateMinSize(r, c.MinSize) {
			return s, Effect{Discarded: true}
		}
		return s, Effect{Commit: &Commit{
			ImageID:      sess.ImageID,
			CategoryID:   sess.CategoryID,
			AnnotationID: sess.AnnotationID,
			Rect:         r,
		}}

	case Cancel:
		if s.Phase == Idle {
			return s, Effect{}
		}
		return reset(s), Effect{Cancelled: true}
	}
	return s, Effect{}
}

func (sess Session) rect() geometry.Rect {
	if sess.AnnotationID != "" {
		return geometry.ResizeRect(sess.Origin, sess.Handle, sess.Current)
	}
	return geometry.RectFromPoints(sess.Start, sess.Current)
}

func reset(s State) State {
	s.Phase = Idle
	s.Session = Session{}
	return s
}

func preview(r geometry.Rect) Effect {
	return Effect{Preview: &r}
}
