package shortcut

import (
	"errors"
	"testing"
)

type recorder struct {
	calls      []string
	categories int
	selected   int
	deleteErr  error
}

func (r *recorder) ToggleDrawMode() bool {
	r.calls = append(r.calls, "draw")
	return true
}

func (r *recorder) CancelDraw() {
	r.calls = append(r.calls, "cancel")
}

func (r *recorder) DeleteSelected() error {
	r.calls = append(r.calls, "delete")
	return r.deleteErr
}

func (r *recorder) Undo() (bool, error) {
	r.calls = append(r.calls, "undo")
	return true, nil
}

func (r *recorder) Redo() (bool, error) {
	r.calls = append(r.calls, "redo")
	return true, nil
}

func (r *recorder) PreviousImage() bool {
	r.calls = append(r.calls, "prev")
	return true
}

func (r *recorder) NextImage() bool {
	r.calls = append(r.calls, "next")
	return true
}

func (r *recorder) SelectCategoryAt(p int) bool {
	if p > r.categories {
		return false
	}
	r.selected = p
	r.calls = append(r.calls, "select")
	return true
}

var focused = Focus{WorkspaceFocused: true}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name    string
		ev      KeyEvent
		handled bool
		call    string
	}{
		{"d toggles draw mode", KeyEvent{Key: "d", Focus: focused}, true, "draw"},
		{"D toggles draw mode", KeyEvent{Key: "D", Shift: true, Focus: focused}, true, "draw"},
		{"escape cancels", KeyEvent{Key: "Escape", Focus: focused}, true, "cancel"},
		{"delete", KeyEvent{Key: "Delete", Focus: focused}, true, "delete"},
		{"ctrl+z undoes", KeyEvent{Key: "z", Ctrl: true, Focus: focused}, true, "undo"},
		{"ctrl+shift+z redoes", KeyEvent{Key: "Z", Ctrl: true, Shift: true, Focus: focused}, true, "redo"},
		{"meta+z undoes", KeyEvent{Key: "z", Meta: true, Focus: focused}, true, "undo"},
		{"arrow left", KeyEvent{Key: "ArrowLeft", Focus: focused}, true, "prev"},
		{"arrow right", KeyEvent{Key: "ArrowRight", Focus: focused}, true, "next"},
		{"ctrl+d is not bound", KeyEvent{Key: "d", Ctrl: true, Focus: focused}, false, ""},
		{"unbound key", KeyEvent{Key: "x", Focus: focused}, false, ""},
		{"editable focus", KeyEvent{Key: "d", Focus: Focus{WorkspaceFocused: true, EditableFocused: true}}, false, ""},
		{"workspace not focused", KeyEvent{Key: "d"}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{categories: 4}
			d := NewDispatcher()
			d.Attach(r)
			res, err := d.Dispatch(tt.ev)
			if err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}
			if res.Handled != tt.handled {
				t.Errorf("Handled = %v, want %v", res.Handled, tt.handled)
			}
			if tt.call == "" && len(r.calls) != 0 {
				t.Errorf("Got calls %v, want none", r.calls)
			}
			if tt.call != "" && (len(r.calls) != 1 || r.calls[0] != tt.call) {
				t.Errorf("Got calls %v, want [%s]", r.calls, tt.call)
			}
		})
	}
}

func TestDispatch_Categories(t *testing.T) {
	r := &recorder{categories: 4}
	d := NewDispatcher()
	d.Attach(r)

	t.Run("3 selects the third of four", func(t *testing.T) {
		res, _ := d.Dispatch(KeyEvent{Key: "3", Focus: focused})
		if !res.Handled || r.selected != 3 {
			t.Errorf("Got handled=%v selected=%d, want true, 3", res.Handled, r.selected)
		}
	})

	t.Run("position past the end is ignored", func(t *testing.T) {
		res, _ := d.Dispatch(KeyEvent{Key: "7", Focus: focused})
		if res.Handled || r.selected != 3 {
			t.Errorf("Got handled=%v selected=%d, want false, 3", res.Handled, r.selected)
		}
	})

	t.Run("0 is not bound", func(t *testing.T) {
		if res, _ := d.Dispatch(KeyEvent{Key: "0", Focus: focused}); res.Handled {
			t.Error("expected 0 to be ignored")
		}
	})
}

func TestDispatch_Detached(t *testing.T) {
	r := &recorder{}
	d := NewDispatcher()
	d.Attach(r)
	d.Detach()
	res, _ := d.Dispatch(KeyEvent{Key: "d", Focus: focused})
	if res.Handled || len(r.calls) != 0 {
		t.Errorf("Got %+v and calls %v, want nothing", res, r.calls)
	}
}

func TestDispatch_Error(t *testing.T) {
	boom := errors.New("boom")
	d := NewDispatcher()
	d.Attach(&recorder{deleteErr: boom})
	res, err := d.Dispatch(KeyEvent{Key: "Delete", Focus: focused})
	if !errors.Is(err, boom) || !res.Handled {
		t.Errorf("Got %+v, %v", res, err)
	}
}
