// Package placement computes where the completion popup goes relative to
// the text cursor. Everything here is pure geometry in window-manager
// space.
package placement

import (
	"fmt"
	"math"
	"strings"

	"wordfill/internal/geometry"
)

// Preference is the side of the cursor the popup prefers.
type Preference int

const (
	Below Preference = iota
	Above
)

func (p Preference) String() string {
	if p == Above {
		return "above"
	}
	return "below"
}

// Flip returns the opposite side.
func (p Preference) Flip() Preference {
	if p == Above {
		return Below
	}
	return Above
}

// ParsePreference parses "above" or "below".
func ParsePreference(s string) (Preference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "below", "":
		return Below, nil
	case "above":
		return Above, nil
	default:
		return Below, fmt.Errorf("unknown placement preference %q", s)
	}
}

// Options tunes the placement distances, in points.
type Options struct {
	// Margin is the gap between the cursor and the popup.
	Margin float64
	// Inset is the minimum distance from every display edge.
	Inset float64
}

// DefaultOptions returns a 4pt margin and an 8pt inset.
func DefaultOptions() Options {
	return Options{Margin: 4, Inset: 8}
}

// Result is where the popup should be shown.
type Result struct {
	// Origin is the popup's bottom-left corner.
	Origin geometry.Point[geometry.BottomLeft]

	// ClampedToDisplay is set when the candidate position had to move to
	// stay on screen.
	ClampedToDisplay bool

	// Flipped is set when the popup ended up on the non-preferred side.
	Flipped bool

	// Above reports the side actually used.
	Above bool

	// Display is the usable area the popup was clamped into.
	Display geometry.Rect[geometry.BottomLeft]
}

// Frame returns the popup rectangle for the given size.
func (r Result) Frame(size geometry.Size) geometry.Rect[geometry.BottomLeft] {
	return geometry.RectOf(r.Origin, size)
}

// ComputePlacement places a popup of the given size next to cursor using
// DefaultOptions.
func ComputePlacement(cursor geometry.Rect[geometry.BottomLeft], pref Preference, size geometry.Size, displays []geometry.DisplayInfo) Result {
	return Compute(cursor, pref, size, displays, DefaultOptions())
}

// Compute places a popup next to cursor on the preferred side, clamped into
// the display holding the cursor. When clamping pushes the popup onto the
// cursor or moves it further than its own size, the opposite side is tried
// once and kept if it fares better.
func Compute(cursor geometry.Rect[geometry.BottomLeft], pref Preference, size geometry.Size, displays []geometry.DisplayInfo, opts Options) Result {
	d, ok := geometry.DisplayContaining(cursor.Origin(), displays)
	if !ok {
		d, ok = geometry.Primary(displays)
	}
	if !ok {
		origin := candidate(cursor, pref, size, opts.Margin)
		return Result{Origin: origin, Above: pref == Above}
	}

	first := place(cursor, pref, size, d.Usable(), opts)
	if !first.needsFlip(size) {
		return first.result
	}

	second := place(cursor, pref.Flip(), size, d.Usable(), opts)
	if second.better(first) {
		second.result.Flipped = true
		return second.result
	}
	return first.result
}

type attempt struct {
	result   Result
	dx, dy   float64
	overlaps bool
}

func (a attempt) needsFlip(size geometry.Size) bool {
	return a.overlaps || a.dx > size.W || a.dy > size.H
}

func (a attempt) better(o attempt) bool {
	if a.overlaps != o.overlaps {
		return !a.overlaps
	}
	return a.dx+a.dy < o.dx+o.dy
}

func candidate(cursor geometry.Rect[geometry.BottomLeft], pref Preference, size geometry.Size, margin float64) geometry.Point[geometry.BottomLeft] {
	p := geometry.Point[geometry.BottomLeft]{X: cursor.MinX()}
	if pref == Above {
		p.Y = cursor.MaxY() + margin
	} else {
		p.Y = cursor.MinY() - margin - size.H
	}
	return p
}

func place(cursor geometry.Rect[geometry.BottomLeft], pref Preference, size geometry.Size, usable geometry.Rect[geometry.BottomLeft], opts Options) attempt {
	want := geometry.RectOf(candidate(cursor, pref, size, opts.Margin), size)

	// The inset is dropped for a popup that only fits without it.
	bounds := usable.Inset(opts.Inset)
	if size.W > bounds.W || size.H > bounds.H {
		bounds = usable
	}
	if size.W > bounds.W || size.H > bounds.H {
		// Larger than the display: pin to the inset top-left corner.
		bounds = usable.Inset(opts.Inset)
	}
	got := geometry.ClampInto(want, bounds)

	// A caret is often reported zero-width.
	hit := cursor
	hit.W = math.Max(hit.W, 1)
	hit.H = math.Max(hit.H, 1)
	_, overlaps := geometry.Intersect(got, hit)
	return attempt{
		result: Result{
			Origin:           got.Origin(),
			ClampedToDisplay: got != want,
			Above:            pref == Above,
			Display:          usable,
		},
		dx:       math.Abs(got.X - want.X),
		dy:       math.Abs(got.Y - want.Y),
		overlaps: overlaps,
	}
}
