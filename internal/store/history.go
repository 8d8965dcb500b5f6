package store

type op uint8

const (
	opInsert op = iota + 1
	opReplace
	opRemove
)

// change is one annotation transition. insert only has after, remove only
// has before, replace has both.
type change struct {
	op     op
	before record
	after  record
}

func (c change) inverse() change {
	switch c.op {
	case opInsert:
		return change{op: opRemove, before: c.after}
	case opRemove:
		return change{op: opInsert, after: c.before}
	default:
		return change{op: opReplace, before: c.after, after: c.before}
	}
}

// Compensation keeps state living outside the store in step with a history
// entry. Remove runs after the entry is applied forward, Restore before it
// is reverted.
type Compensation struct {
	Restore func()
	Remove  func()
}

func (c Compensation) restore() {
	if c.Restore != nil {
		c.Restore()
	}
}

func (c Compensation) remove() {
	if c.Remove != nil {
		c.Remove()
	}
}

type entry struct {
	label   string
	changes []change
	comp    Compensation
}

func (e entry) inverse() []change {
	out := make([]change, len(e.changes))
	for i, c := range e.changes {
		out[len(e.changes)-1-i] = c.inverse()
	}
	return out
}

// history is a log of entries with a cursor: entries[:cursor] can be undone,
// entries[cursor:] redone.
type history struct {
	entries []entry
	cursor  int
}

func (h *history) push(e entry) {
	clear(h.entries[h.cursor:])
	h.entries = append(h.entries[:h.cursor], e)
	h.cursor++
}

func (h *history) canUndo() bool { return h.cursor > 0 }

func (h *history) canRedo() bool { return h.cursor < len(h.entries) }

func (h *history) reset() {
	h.entries = nil
	h.cursor = 0
}
