package geometry

import "math"

// DisplayInfo describes one attached display in window-manager space.
type DisplayInfo struct {
	ID string

	// Frame is the full display area.
	Frame Rect[BottomLeft]

	// VisibleFrame excludes the menu bar, dock and panels. A zero value
	// means the whole Frame is usable.
	VisibleFrame Rect[BottomLeft]

	IsPrimary bool
}

// Usable returns VisibleFrame, or Frame when no visible frame is known.
func (d DisplayInfo) Usable() Rect[BottomLeft] {
	if d.VisibleFrame.IsEmpty() {
		return d.Frame
	}
	return d.VisibleFrame
}

// Primary returns the display flagged primary, else the first display.
func Primary(displays []DisplayInfo) (DisplayInfo, bool) {
	for _, d := range displays {
		if d.IsPrimary {
			return d, true
		}
	}
	if len(displays) > 0 {
		return displays[0], true
	}
	return DisplayInfo{}, false
}

// DisplayContaining returns the display whose frame contains p.
func DisplayContaining(p Point[BottomLeft], displays []DisplayInfo) (DisplayInfo, bool) {
	for _, d := range displays {
		if d.Frame.Contains(p) {
			return d, true
		}
	}
	return DisplayInfo{}, false
}

// displayFor picks the display for r: the one containing its center, else
// the one sharing the most area with it, else the primary.
func displayFor(r Rect[BottomLeft], displays []DisplayInfo) (DisplayInfo, bool) {
	if d, ok := DisplayContaining(r.Center(), displays); ok {
		return d, true
	}
	var (
		best     DisplayInfo
		bestArea float64
	)
	for _, d := range displays {
		if in, ok := Intersect(r, d.Frame); ok && in.Area() > bestArea {
			best, bestArea = d, in.Area()
		}
	}
	if bestArea > 0 {
		return best, true
	}
	return Primary(displays)
}

// Reconciler converts between the accessibility convention (TopLeft) and
// the window-manager convention (BottomLeft). Both are anchored on the
// primary display, so the conversion needs only its height.
type Reconciler struct {
	PrimaryHeight float64
}

// NewReconciler builds a Reconciler from the current display list.
func NewReconciler(displays []DisplayInfo) Reconciler {
	p, ok := Primary(displays)
	if !ok {
		return Reconciler{}
	}
	return Reconciler{PrimaryHeight: p.Frame.MaxY()}
}

// ToDisplaySpace converts an accessibility rectangle into window-manager
// space.
func (c Reconciler) ToDisplaySpace(r Rect[TopLeft]) Rect[BottomLeft] {
	return Rect[BottomLeft]{X: r.X, Y: c.PrimaryHeight - (r.Y + r.H), W: r.W, H: r.H}
}

// FromDisplaySpace is the inverse of ToDisplaySpace.
func (c Reconciler) FromDisplaySpace(r Rect[BottomLeft]) Rect[TopLeft] {
	return Rect[TopLeft]{X: r.X, Y: c.PrimaryHeight - (r.Y + r.H), W: r.W, H: r.H}
}

// PointToDisplaySpace converts a single accessibility point.
func (c Reconciler) PointToDisplaySpace(p Point[TopLeft]) Point[BottomLeft] {
	return Point[BottomLeft]{X: p.X, Y: c.PrimaryHeight - p.Y}
}

// PointFromDisplaySpace is the inverse of PointToDisplaySpace.
func (c Reconciler) PointFromDisplaySpace(p Point[BottomLeft]) Point[TopLeft] {
	return Point[TopLeft]{X: p.X, Y: c.PrimaryHeight - p.Y}
}

// ClampToVisibleDisplay moves r so it lies within the usable area of the
// display it belongs to. A rectangle larger than that area keeps its size
// and is pinned to the left and top edges. With no displays r is returned
// unchanged.
func (c Reconciler) ClampToVisibleDisplay(r Rect[BottomLeft], displays []DisplayInfo) Rect[BottomLeft] {
	d, ok := displayFor(r, displays)
	if !ok {
		return r
	}
	return ClampInto(r, d.Usable())
}

// ClampInto moves r inside bounds. Oversized axes are pinned to the left
// edge and the top edge.
func ClampInto(r, bounds Rect[BottomLeft]) Rect[BottomLeft] {
	r.X = clampAxis(r.X, r.W, bounds.MinX(), bounds.MaxX(), false)
	r.Y = clampAxis(r.Y, r.H, bounds.MinY(), bounds.MaxY(), true)
	return r
}

// clampAxis clamps a span [v, v+extent) into [lo, hi). When the span does
// not fit it is pinned to lo, or to hi when pinHigh is set.
func clampAxis(v, extent, lo, hi float64, pinHigh bool) float64 {
	if extent > hi-lo {
		if pinHigh {
			return hi - extent
		}
		return lo
	}
	return math.Min(math.Max(v, lo), hi-extent)
}
