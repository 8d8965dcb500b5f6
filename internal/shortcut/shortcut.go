// Package shortcut maps keyboard events to editor operations.
package shortcut

import (
	"strings"
)

// Focus describes where keyboard focus is when a key is pressed
type Focus struct {
	WorkspaceFocused bool `json:"workspaceFocused"`
	EditableFocused  bool `json:"editableFocused"`
}

// KeyEvent is a key press. Key uses the DOM key names ("d", "Escape",
// "ArrowLeft", "3").
type KeyEvent struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl"`
	Shift bool   `json:"shift"`
	Alt   bool   `json:"alt"`
	Meta  bool   `json:"meta"`
	Focus Focus  `json:"focus"`
}

// Target receives the operations bound to keys
type Target interface {
	ToggleDrawMode() bool
	CancelDraw()
	DeleteSelected() error
	Undo() (bool, error)
	Redo() (bool, error)
	SelectCategoryAt(position int) bool
	PreviousImage() bool
	NextImage() bool
}

// Action names the operation a key was bound to
type Action string

const (
	ActionNone           Action = ""
	ActionToggleDrawMode Action = "toggle-draw-mode"
	ActionCancelDraw     Action = "cancel-draw"
	ActionDelete         Action = "delete-selected"
	ActionUndo           Action = "undo"
	ActionRedo           Action = "redo"
	ActionSelectCategory Action = "select-category"
	ActionPreviousImage  Action = "previous-image"
	ActionNextImage      Action = "next-image"
)

// Result tells the host whether the key was consumed. Handled keys must
// not trigger the default browser behavior.
type Result struct {
	Handled bool   `json:"handled"`
	Action  Action `json:"action,omitempty"`
}

// Dispatcher routes key events to the attached target
type Dispatcher struct {
	target Target
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Attach starts routing events to t
func (d *Dispatcher) Attach(t Target) {
	d.target = t
}

// Detach stops routing events
func (d *Dispatcher) Detach() {
	d.target = nil
}

// Attached reports whether a target is listening
func (d *Dispatcher) Attached() bool {
	return d.target != nil
}

// Dispatch runs the operation bound to ev. Keys typed into editable fields
// or pressed while the workspace lacks focus are left alone.
func (d *Dispatcher) Dispatch(ev KeyEvent) (Result, error) {
	if d.target == nil || !ev.Focus.WorkspaceFocused || ev.Focus.EditableFocused {
		return Result{}, nil
	}
	action, position := Resolve(ev)
	t := d.target

	switch action {
	case ActionToggleDrawMode:
		t.ToggleDrawMode()
	case ActionCancelDraw:
		t.CancelDraw()
	case ActionDelete:
		if err := t.DeleteSelected(); err != nil {
			return Result{Handled: true, Action: action}, err
		}
	case ActionUndo:
		if _, err := t.Undo(); err != nil {
			return Result{Handled: true, Action: action}, err
		}
	case ActionRedo:
		if _, err := t.Redo(); err != nil {
			return Result{Handled: true, Action: action}, err
		}
	case ActionSelectCategory:
		if !t.SelectCategoryAt(position) {
			return Result{}, nil
		}
	case ActionPreviousImage:
		t.PreviousImage()
	case ActionNextImage:
		t.NextImage()
	default:
		return Result{}, nil
	}
	return Result{Handled: true, Action: action}, nil
}

// Resolve returns the action bound to ev and, for category keys, the
// 1-based position
func Resolve(ev KeyEvent) (Action, int) {
	ctrl := ev.Ctrl || ev.Meta
	key := ev.Key

	if ctrl && strings.EqualFold(key, "z") {
		if ev.Shift {
			return ActionRedo, 0
		}
		return ActionUndo, 0
	}
	if ctrl || ev.Alt {
		return ActionNone, 0
	}

	switch key {
	case "d", "D":
		return ActionToggleDrawMode, 0
	case "Escape", "Esc":
		return ActionCancelDraw, 0
	case "Delete":
		return ActionDelete, 0
	case "ArrowLeft":
		return ActionPreviousImage, 0
	case "ArrowRight":
		return ActionNextImage, 0
	}
	if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
		return ActionSelectCategory, int(key[0] - '0')
	}
	return ActionNone, 0
}
