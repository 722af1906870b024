// Package element locates the focused UI element in another process and
// exposes the handful of attributes wordfill reads and writes on it.
//
// Platform backends live in element_darwin.go (Accessibility API) and
// element_linux.go (AT-SPI over D-Bus). Every text offset exchanged through
// a Handle is in UTF-16 code units.
package element

import (
	"context"
	"errors"
	"fmt"

	"wordfill/internal/geometry"
)

// Error kinds.
var (
	ErrPermissionDenied = errors.New("accessibility permission denied")
	ErrNoFocusedElement = errors.New("no focused element")
	ErrUnsupported      = errors.New("not supported on this platform")
	ErrAttributeMissing = errors.New("attribute not available")
	ErrWriteRejected    = errors.New("element rejected write")
	ErrElementReleased  = errors.New("element handle released")
)

// Error carries the failing operation alongside one of the kinds above.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op string, kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Range is a half-open span [Start, End) of UTF-16 code units.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns End-Start.
func (r Range) Len() int { return r.End - r.Start }

// IsEmpty reports a zero-length range.
func (r Range) IsEmpty() bool { return r.End <= r.Start }

// Shift moves both ends by d.
func (r Range) Shift(d int) Range { return Range{Start: r.Start + d, End: r.End + d} }

// Caret returns a zero-length range at offset.
func Caret(offset int) Range { return Range{Start: offset, End: offset} }

// Attr names an element attribute.
type Attr int

const (
	AttrValue Attr = iota
	AttrSelectedText
	AttrSelectedRange
	AttrTitle
	AttrDescription
	AttrCharacterCount
	AttrRole
)

var attrNames = [...]string{
	AttrValue:          "value",
	AttrSelectedText:   "selected_text",
	AttrSelectedRange:  "selected_range",
	AttrTitle:          "title",
	AttrDescription:    "description",
	AttrCharacterCount: "character_count",
	AttrRole:           "role",
}

func (a Attr) String() string {
	if int(a) < len(attrNames) {
		return attrNames[a]
	}
	return fmt.Sprintf("attr(%d)", int(a))
}

type valueKind uint8

const (
	kindNone valueKind = iota
	kindString
	kindRange
	kindInt
)

// Value is an attribute value: a string, a Range or an integer.
type Value struct {
	kind valueKind
	s    string
	r    Range
	n    int
}

func StringValue(s string) Value { return Value{kind: kindString, s: s} }
func RangeValue(r Range) Value   { return Value{kind: kindRange, r: r} }
func IntValue(n int) Value       { return Value{kind: kindInt, n: n} }

func (v Value) String() (string, bool) { return v.s, v.kind == kindString }
func (v Value) Range() (Range, bool)   { return v.r, v.kind == kindRange }
func (v Value) Int() (int, bool)       { return v.n, v.kind == kindInt }

// Handle is a borrowed reference to one element in another process. It is
// valid for a single trigger cycle and must be released by whoever located
// it. Identity is not stable across calls.
type Handle interface {
	Attribute(ctx context.Context, attr Attr) (Value, error)

	// BoundsForRange returns the screen rectangle of the text in r, in
	// accessibility space.
	BoundsForRange(ctx context.Context, r Range) (geometry.Rect[geometry.TopLeft], error)

	SetValue(ctx context.Context, value string) error
	SetSelectedRange(ctx context.Context, r Range) error

	// Application names the owning process, or "" if unknown.
	Application() string

	Release()
}

// Locator finds the element that currently has keyboard focus.
type Locator interface {
	LocateFocusedElement(ctx context.Context) (Handle, error)
}

// StringAttr reads attr and requires a string value.
func StringAttr(ctx context.Context, h Handle, attr Attr) (string, error) {
	v, err := h.Attribute(ctx, attr)
	if err != nil {
		return "", err
	}
	s, ok := v.String()
	if !ok {
		return "", newError(attr.String(), ErrAttributeMissing, errors.New("not a string"))
	}
	return s, nil
}

// RangeAttr reads attr and requires a Range value.
func RangeAttr(ctx context.Context, h Handle, attr Attr) (Range, error) {
	v, err := h.Attribute(ctx, attr)
	if err != nil {
		return Range{}, err
	}
	r, ok := v.Range()
	if !ok {
		return Range{}, newError(attr.String(), ErrAttributeMissing, errors.New("not a range"))
	}
	return r, nil
}

// IsPermissionDenied reports whether err carries ErrPermissionDenied.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
