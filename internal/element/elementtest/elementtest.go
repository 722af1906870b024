// Package elementtest provides in-memory element handles and locators for
// tests.
package elementtest

import (
	"context"
	"sync"
	"unicode/utf16"

	"wordfill/internal/element"
	"wordfill/internal/geometry"
)

// WriteMode controls how a Handle reacts to SetValue.
type WriteMode int

const (
	// WriteApply stores the value.
	WriteApply WriteMode = iota
	// WriteIgnore accepts the write and keeps the old value.
	WriteIgnore
	// WriteReject fails the write.
	WriteReject
	// WriteDelayed stores the value only after the next read.
	WriteDelayed
)

// Handle is a scriptable element.Handle. The zero value exposes nothing.
type Handle struct {
	mu sync.Mutex

	text         *string
	valueHidden  bool
	selection    *element.Range
	selectedText *string
	title        *string
	description  *string
	bounds       *geometry.Rect[geometry.TopLeft]
	app          string

	writeMode WriteMode
	pending   *string

	released bool
	writes   []string
	reads    int
}

// New returns a handle holding text with the caret at cursor (UTF-16).
func New(text string, cursor int) *Handle {
	sel := element.Caret(cursor)
	return &Handle{text: &text, selection: &sel, app: "com.example.editor"}
}

// WithSelectedText exposes a selected-text attribute.
func (h *Handle) WithSelectedText(s string, r element.Range) *Handle {
	h.selectedText = &s
	h.selection = &r
	return h
}

// WithoutValue hides the value attribute. Key events still edit the
// underlying text, which Text reports.
func (h *Handle) WithoutValue() *Handle {
	h.valueHidden = true
	return h
}

// WithoutSelection hides the selected-range attribute.
func (h *Handle) WithoutSelection() *Handle {
	h.selection = nil
	return h
}

func (h *Handle) WithTitle(s string) *Handle {
	h.title = &s
	return h
}

func (h *Handle) WithDescription(s string) *Handle {
	h.description = &s
	return h
}

// WithBounds makes BoundsForRange return r.
func (h *Handle) WithBounds(r geometry.Rect[geometry.TopLeft]) *Handle {
	h.bounds = &r
	return h
}

func (h *Handle) WithWriteMode(m WriteMode) *Handle {
	h.writeMode = m
	return h
}

func (h *Handle) WithApplication(app string) *Handle {
	h.app = app
	return h
}

// Text returns the current value.
func (h *Handle) Text() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.text == nil {
		return ""
	}
	return *h.text
}

// SetText replaces the value as if another actor edited it.
func (h *Handle) SetText(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.text = &s
}

// Cursor returns the caret offset, or -1 when unknown.
func (h *Handle) Cursor() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.selection == nil {
		return -1
	}
	return h.selection.End
}

// Writes returns every value passed to SetValue.
func (h *Handle) Writes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.writes...)
}

// Released reports whether Release was called.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

func (h *Handle) Application() string { return h.app }

func (h *Handle) Release() {
	h.mu.Lock()
	h.released = true
	h.mu.Unlock()
}

func (h *Handle) Attribute(ctx context.Context, attr element.Attr) (element.Value, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return element.Value{}, &element.Error{Op: attr.String(), Kind: element.ErrElementReleased}
	}

	missing := &element.Error{Op: attr.String(), Kind: element.ErrAttributeMissing}
	switch attr {
	case element.AttrValue:
		h.reads++
		if h.pending != nil && h.reads > 1 {
			h.text, h.pending = h.pending, nil
		}
		if h.text == nil || h.valueHidden {
			return element.Value{}, missing
		}
		return element.StringValue(*h.text), nil
	case element.AttrSelectedRange:
		if h.selection == nil {
			return element.Value{}, missing
		}
		return element.RangeValue(*h.selection), nil
	case element.AttrSelectedText:
		if h.selectedText == nil {
			return element.Value{}, missing
		}
		return element.StringValue(*h.selectedText), nil
	case element.AttrTitle:
		if h.title == nil {
			return element.Value{}, missing
		}
		return element.StringValue(*h.title), nil
	case element.AttrDescription:
		if h.description == nil {
			return element.Value{}, missing
		}
		return element.StringValue(*h.description), nil
	case element.AttrCharacterCount:
		if h.text == nil || h.valueHidden {
			return element.Value{}, missing
		}
		return element.IntValue(len(utf16.Encode([]rune(*h.text)))), nil
	}
	return element.Value{}, missing
}

func (h *Handle) BoundsForRange(ctx context.Context, r element.Range) (geometry.Rect[geometry.TopLeft], error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bounds == nil {
		return geometry.Rect[geometry.TopLeft]{}, &element.Error{Op: "bounds_for_range", Kind: element.ErrAttributeMissing}
	}
	return *h.bounds, nil
}

func (h *Handle) SetValue(ctx context.Context, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.writes = append(h.writes, value)
	switch h.writeMode {
	case WriteReject:
		return &element.Error{Op: "set_value", Kind: element.ErrWriteRejected}
	case WriteIgnore:
		return nil
	case WriteDelayed:
		h.pending = &value
		h.reads = 0
		return nil
	}
	h.text = &value
	return nil
}

func (h *Handle) SetSelectedRange(ctx context.Context, r element.Range) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writeMode == WriteReject {
		return &element.Error{Op: "set_selected_range", Kind: element.ErrWriteRejected}
	}
	h.selection = &r
	return nil
}

// DeleteBackward removes n code points before the caret, as a user
// pressing backspace would. An active selection is removed by the first
// press.
func (h *Handle) DeleteBackward(n int) {
	h.edit(func(units []uint16, caret int, cut bool) ([]uint16, int) {
		if cut {
			n--
		}
		for ; n > 0 && caret > 0; n-- {
			w := 1
			if caret >= 2 && utf16.IsSurrogate(rune(units[caret-1])) {
				w = 2
			}
			units = append(units[:caret-w], units[caret:]...)
			caret -= w
		}
		return units, caret
	})
}

// DeleteForward removes n code points after the caret. An active
// selection is removed by the first press.
func (h *Handle) DeleteForward(n int) {
	h.edit(func(units []uint16, caret int, cut bool) ([]uint16, int) {
		if cut {
			n--
		}
		for ; n > 0 && caret < len(units); n-- {
			w := 1
			if caret+1 < len(units) && utf16.IsSurrogate(rune(units[caret])) {
				w = 2
			}
			units = append(units[:caret], units[caret+w:]...)
		}
		return units, caret
	})
}

// TypeAtCaret inserts s at the caret and advances it, replacing an active
// selection.
func (h *Handle) TypeAtCaret(s string) {
	h.edit(func(units []uint16, caret int, _ bool) ([]uint16, int) {
		ins := utf16.Encode([]rune(s))
		out := make([]uint16, 0, len(units)+len(ins))
		out = append(out, units[:caret]...)
		out = append(out, ins...)
		out = append(out, units[caret:]...)
		return out, caret + len(ins)
	})
}

// edit removes any selected text, then applies fn at the caret. cut
// reports whether a selection was removed.
func (h *Handle) edit(fn func(units []uint16, caret int, cut bool) ([]uint16, int)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.text == nil || h.selection == nil {
		return
	}
	units := utf16.Encode([]rune(*h.text))
	start := min(max(h.selection.Start, 0), len(units))
	end := min(max(h.selection.End, start), len(units))
	cut := start < end
	if cut {
		units = append(units[:start], units[end:]...)
	}
	units, caret := fn(units, start, cut)
	text := string(utf16.Decode(units))
	h.text = &text
	sel := element.Caret(caret)
	h.selection = &sel
	if h.selectedText != nil {
		empty := ""
		h.selectedText = &empty
	}
}

// Locator hands out a fixed handle or error.
type Locator struct {
	mu     sync.Mutex
	Handle element.Handle
	Err    error
	calls  int
}

func (l *Locator) LocateFocusedElement(ctx context.Context) (element.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.Err != nil {
		return nil, l.Err
	}
	if l.Handle == nil {
		return nil, &element.Error{Op: "locate", Kind: element.ErrNoFocusedElement}
	}
	return l.Handle, nil
}

// Calls returns how many times the locator was asked.
func (l *Locator) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// Set swaps the handle or error returned next.
func (l *Locator) Set(h element.Handle, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Handle, l.Err = h, err
}
