package geometry

import "math"

// Handle names a resize grip on a box
type Handle string

const (
	HandleNone Handle = ""
	HandleNW   Handle = "nw"
	HandleNE   Handle = "ne"
	HandleSW   Handle = "sw"
	HandleSE   Handle = "se"
	HandleN    Handle = "n"
	HandleS    Handle = "s"
	HandleE    Handle = "e"
	HandleW    Handle = "w"
)

// HitTestHandle finds the grip of r under p. Corners win over edges; an
// edge only matches inside the span of the perpendicular axis.
func HitTestHandle(p Point, r Rect, radius float64) Handle {
	near := func(a, b float64) bool { return math.Abs(a-b) <= radius }

	corners := []struct {
		handle Handle
		x, y   float64
	}{
		{HandleNW, r.Left, r.Top},
		{HandleNE, r.Right(), r.Top},
		{HandleSW, r.Left, r.Bottom()},
		{HandleSE, r.Right(), r.Bottom()},
	}
	for _, c := range corners {
		if near(p.X, c.x) && near(p.Y, c.y) {
			return c.handle
		}
	}

	withinX := p.X >= r.Left && p.X <= r.Right()
	withinY := p.Y >= r.Top && p.Y <= r.Bottom()
	switch {
	case withinX && near(p.Y, r.Top):
		return HandleN
	case withinX && near(p.Y, r.Bottom()):
		return HandleS
	case withinY && near(p.X, r.Right()):
		return HandleE
	case withinY && near(p.X, r.Left):
		return HandleW
	}
	return HandleNone
}

// ResizeRect moves the edges owned by h to p. Dragging past the opposite
// edge flips the box instead of producing a negative size.
func ResizeRect(r Rect, h Handle, p Point) Rect {
	left, top, right, bottom := r.Left, r.Top, r.Right(), r.Bottom()
	switch h {
	case HandleNW:
		left, top = p.X, p.Y
	case HandleNE:
		right, top = p.X, p.Y
	case HandleSW:
		left, bottom = p.X, p.Y
	case HandleSE:
		right, bottom = p.X, p.Y
	case HandleN:
		top = p.Y
	case HandleS:
		bottom = p.Y
	case HandleE:
		right = p.X
	case HandleW:
		left = p.X
	default:
		return r
	}
	return RectFromPoints(Point{X: left, Y: top}, Point{X: right, Y: bottom})
}
