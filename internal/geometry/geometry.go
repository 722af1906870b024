// Package geometry holds screen coordinate types tagged with their vertical
// origin, and the single place where the two conventions are reconciled.
//
// The accessibility APIs report rectangles measured from the top of the
// primary display downward (TopLeft). Window managers and display
// enumeration on macOS measure from the bottom upward (BottomLeft). A
// Rect[TopLeft] cannot be passed where a Rect[BottomLeft] is expected; the
// only way across is a Reconciler.
package geometry

import "math"

// Origin is the set of vertical origin conventions.
type Origin interface {
	TopLeft | BottomLeft
}

// TopLeft tags coordinates whose Y grows downward from the top edge of the
// primary display.
type TopLeft struct{}

// BottomLeft tags coordinates whose Y grows upward from the bottom edge of
// the primary display.
type BottomLeft struct{}

// Point is a screen point in the O convention.
type Point[O Origin] struct {
	X, Y float64
}

// Size is a width and height. It has no origin.
type Size struct {
	W, H float64
}

// Rect is a screen rectangle in the O convention. (X, Y) is the corner
// nearest the origin: top-left for TopLeft, bottom-left for BottomLeft.
type Rect[O Origin] struct {
	X, Y, W, H float64
}

// RectOf builds a rectangle from an origin point and a size.
func RectOf[O Origin](p Point[O], s Size) Rect[O] {
	return Rect[O]{X: p.X, Y: p.Y, W: s.W, H: s.H}
}

func (r Rect[O]) MinX() float64 { return r.X }
func (r Rect[O]) MaxX() float64 { return r.X + r.W }
func (r Rect[O]) MinY() float64 { return r.Y }
func (r Rect[O]) MaxY() float64 { return r.Y + r.H }

// Origin returns (X, Y).
func (r Rect[O]) Origin() Point[O] { return Point[O]{X: r.X, Y: r.Y} }

// Size returns the rectangle's extent.
func (r Rect[O]) Size() Size { return Size{W: r.W, H: r.H} }

// Center returns the midpoint.
func (r Rect[O]) Center() Point[O] {
	return Point[O]{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// IsZero reports whether every field is zero. Some applications answer a
// bounds query with this instead of an error.
func (r Rect[O]) IsZero() bool {
	return r == Rect[O]{}
}

// IsEmpty reports whether the rectangle encloses no area.
func (r Rect[O]) IsEmpty() bool {
	return r.W <= 0 || r.H <= 0
}

// Area returns W*H, or 0 for empty rectangles.
func (r Rect[O]) Area() float64 {
	if r.IsEmpty() {
		return 0
	}
	return r.W * r.H
}

// Contains reports whether p lies inside r. Edges on the max side are
// exclusive so adjacent displays never both contain a point.
func (r Rect[O]) Contains(p Point[O]) bool {
	return p.X >= r.MinX() && p.X < r.MaxX() && p.Y >= r.MinY() && p.Y < r.MaxY()
}

// ContainsRect reports whether o lies entirely inside r.
func (r Rect[O]) ContainsRect(o Rect[O]) bool {
	return o.MinX() >= r.MinX() && o.MaxX() <= r.MaxX() &&
		o.MinY() >= r.MinY() && o.MaxY() <= r.MaxY()
}

// Inset shrinks r by d on every side. The result never has negative size.
func (r Rect[O]) Inset(d float64) Rect[O] {
	out := Rect[O]{X: r.X + d, Y: r.Y + d, W: r.W - 2*d, H: r.H - 2*d}
	if out.W < 0 {
		out.X, out.W = r.X+r.W/2, 0
	}
	if out.H < 0 {
		out.Y, out.H = r.Y+r.H/2, 0
	}
	return out
}

// Offset translates r by (dx, dy).
func (r Rect[O]) Offset(dx, dy float64) Rect[O] {
	r.X += dx
	r.Y += dy
	return r
}

// Intersect returns the overlap of a and b, and false when they do not
// overlap.
func Intersect[O Origin](a, b Rect[O]) (Rect[O], bool) {
	x0 := math.Max(a.MinX(), b.MinX())
	y0 := math.Max(a.MinY(), b.MinY())
	x1 := math.Min(a.MaxX(), b.MaxX())
	y1 := math.Min(a.MaxY(), b.MaxY())
	if x1 <= x0 || y1 <= y0 {
		return Rect[O]{}, false
	}
	return Rect[O]{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}, true
}

// Union returns the smallest rectangle enclosing every rect. It returns the
// zero rectangle for no input.
func Union[O Origin](rects ...Rect[O]) Rect[O] {
	if len(rects) == 0 {
		return Rect[O]{}
	}
	x0, y0 := rects[0].MinX(), rects[0].MinY()
	x1, y1 := rects[0].MaxX(), rects[0].MaxY()
	for _, r := range rects[1:] {
		x0 = math.Min(x0, r.MinX())
		y0 = math.Min(y0, r.MinY())
		x1 = math.Max(x1, r.MaxX())
		y1 = math.Max(y1, r.MaxY())
	}
	return Rect[O]{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}
