//go:build linux

package element

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"wordfill/internal/geometry"
	"wordfill/internal/logging"
)

type atspiLocator struct {
	bus         a11yBus
	timeout     time.Duration
	maxDepth    int
	maxChildren int
	logger      *logging.Logger
}

func newPlatformLocator(opts Options) Locator {
	return &atspiLocator{
		timeout:     opts.MessagingTimeout,
		maxDepth:    opts.MaxDepth,
		maxChildren: opts.MaxChildren,
		logger:      opts.logger(),
	}
}

func (l *atspiLocator) LocateFocusedElement(ctx context.Context) (Handle, error) {
	enabled, err := AccessibilityEnabled(ctx)
	if err != nil || !enabled {
		return nil, newError("locate", ErrPermissionDenied, err)
	}
	conn, err := l.bus.get(ctx)
	if err != nil {
		return nil, newError("locate", ErrPermissionDenied, err)
	}

	apps, err := children(ctx, conn.Object(atspiRegistry, atspiRootPath))
	if err != nil {
		return nil, newError("locate", ErrNoFocusedElement, err)
	}

	for _, app := range apps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if app.null() {
			continue
		}
		appObj := conn.Object(app.Name, app.Path)
		frames, err := children(ctx, appObj)
		if err != nil {
			continue
		}
		for _, frame := range l.limit(frames) {
			obj := conn.Object(frame.Name, frame.Path)
			st, err := states(ctx, obj)
			if err != nil || !st.has(stateActive) {
				continue
			}
			if ref, ok := l.findFocused(ctx, conn, frame, 0); ok {
				h := &atspiHandle{obj: conn.Object(ref.Name, ref.Path), timeout: l.timeout}
				h.app = accessibleName(ctx, appObj)
				l.logger.Debug("focused element", "application", h.app, "path", string(ref.Path))
				return h, nil
			}
		}
	}
	return nil, newError("locate", ErrNoFocusedElement, nil)
}

// Close drops the accessibility bus connection.
func (l *atspiLocator) Close() error {
	return l.bus.Close()
}

func (l *atspiLocator) limit(refs []accessibleRef) []accessibleRef {
	if len(refs) > l.maxChildren {
		return refs[:l.maxChildren]
	}
	return refs
}

// findFocused walks showing descendants of ref depth first.
func (l *atspiLocator) findFocused(ctx context.Context, conn *dbus.Conn, ref accessibleRef, depth int) (accessibleRef, bool) {
	if depth > l.maxDepth || ctx.Err() != nil || ref.null() {
		return accessibleRef{}, false
	}
	obj := conn.Object(ref.Name, ref.Path)
	st, err := states(ctx, obj)
	if err != nil {
		return accessibleRef{}, false
	}
	if st.has(stateFocused) && st.has(stateEditable) {
		return ref, true
	}
	if depth > 0 && !st.has(stateShowing) {
		return accessibleRef{}, false
	}

	kids, err := children(ctx, obj)
	if err != nil {
		return accessibleRef{}, false
	}
	for _, kid := range l.limit(kids) {
		if found, ok := l.findFocused(ctx, conn, kid, depth+1); ok {
			return found, true
		}
	}
	return accessibleRef{}, false
}

func accessibleName(ctx context.Context, obj dbus.BusObject) string {
	v, err := getProperty(ctx, obj, ifaceAccessible, "Name")
	if err != nil {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

// atspiHandle converts between AT-SPI character offsets and UTF-16 units
// using the element's current text.
type atspiHandle struct {
	mu       sync.Mutex
	obj      dbus.BusObject
	app      string
	timeout  time.Duration
	released bool
}

func (h *atspiHandle) Application() string { return h.app }

func (h *atspiHandle) Release() {
	h.mu.Lock()
	h.released = true
	h.mu.Unlock()
}

func (h *atspiHandle) call(ctx context.Context, op, method string, args ...any) (*dbus.Call, error) {
	h.mu.Lock()
	released := h.released
	h.mu.Unlock()
	if released {
		return nil, newError(op, ErrElementReleased, nil)
	}
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	c := h.obj.CallWithContext(ctx, method, 0, args...)
	if c.Err != nil {
		return nil, newError(op, ErrAttributeMissing, c.Err)
	}
	return c, nil
}

func (h *atspiHandle) text(ctx context.Context) (string, error) {
	c, err := h.call(ctx, "value", ifaceText+".GetText", int32(0), wholeTextEnd)
	if err != nil {
		return "", err
	}
	var s string
	if err := c.Store(&s); err != nil {
		return "", newError("value", ErrAttributeMissing, err)
	}
	return s, nil
}

// selection returns the first selection, or the caret when nothing is
// selected, in character offsets.
func (h *atspiHandle) selection(ctx context.Context) (int32, int32, error) {
	c, err := h.call(ctx, "selected_range", ifaceText+".GetNSelections")
	if err != nil {
		return 0, 0, err
	}
	var n int32
	if err := c.Store(&n); err != nil {
		return 0, 0, newError("selected_range", ErrAttributeMissing, err)
	}
	if n > 0 {
		c, err := h.call(ctx, "selected_range", ifaceText+".GetSelection", int32(0))
		if err != nil {
			return 0, 0, err
		}
		var start, end int32
		if err := c.Store(&start, &end); err != nil {
			return 0, 0, newError("selected_range", ErrAttributeMissing, err)
		}
		return start, end, nil
	}

	var caret dbus.Variant
	c, err = h.call(ctx, "selected_range", ifaceProperties+".Get", ifaceText, "CaretOffset")
	if err != nil {
		return 0, 0, err
	}
	if err := c.Store(&caret); err != nil {
		return 0, 0, newError("selected_range", ErrAttributeMissing, err)
	}
	off, ok := caret.Value().(int32)
	if !ok || off < 0 {
		return 0, 0, newError("selected_range", ErrAttributeMissing, errors.New("no caret"))
	}
	return off, off, nil
}

func (h *atspiHandle) stringProperty(ctx context.Context, op, name string) (string, error) {
	c, err := h.call(ctx, op, ifaceProperties+".Get", ifaceAccessible, name)
	if err != nil {
		return "", err
	}
	var v dbus.Variant
	if err := c.Store(&v); err != nil {
		return "", newError(op, ErrAttributeMissing, err)
	}
	s, ok := v.Value().(string)
	if !ok {
		return "", newError(op, ErrAttributeMissing, errors.New("not a string"))
	}
	return s, nil
}

func (h *atspiHandle) Attribute(ctx context.Context, attr Attr) (Value, error) {
	switch attr {
	case AttrValue:
		s, err := h.text(ctx)
		if err != nil {
			return Value{}, err
		}
		return StringValue(s), nil

	case AttrSelectedText, AttrSelectedRange:
		text, err := h.text(ctx)
		if err != nil {
			return Value{}, err
		}
		start, end, err := h.selection(ctx)
		if err != nil {
			return Value{}, err
		}
		if attr == AttrSelectedRange {
			return RangeValue(Range{Start: RuneToUTF16(text, int(start)), End: RuneToUTF16(text, int(end))}), nil
		}
		runes := []rune(text)
		s, e := clampRunes(int(start), len(runes)), clampRunes(int(end), len(runes))
		if s >= e {
			return Value{}, newError(attr.String(), ErrAttributeMissing, errors.New("empty selection"))
		}
		return StringValue(string(runes[s:e])), nil

	case AttrCharacterCount:
		text, err := h.text(ctx)
		if err != nil {
			return Value{}, err
		}
		return IntValue(RuneToUTF16(text, len(text))), nil

	case AttrTitle:
		s, err := h.stringProperty(ctx, attr.String(), "Name")
		if err != nil {
			return Value{}, err
		}
		return StringValue(s), nil

	case AttrDescription:
		s, err := h.stringProperty(ctx, attr.String(), "Description")
		if err != nil {
			return Value{}, err
		}
		return StringValue(s), nil

	case AttrRole:
		c, err := h.call(ctx, attr.String(), ifaceAccessible+".GetRoleName")
		if err != nil {
			return Value{}, err
		}
		var s string
		if err := c.Store(&s); err != nil {
			return Value{}, newError(attr.String(), ErrAttributeMissing, err)
		}
		return StringValue(s), nil
	}
	return Value{}, newError(attr.String(), ErrAttributeMissing, nil)
}

func clampRunes(i, n int) int {
	return max(0, min(i, n))
}

func (h *atspiHandle) BoundsForRange(ctx context.Context, r Range) (geometry.Rect[geometry.TopLeft], error) {
	text, err := h.text(ctx)
	if err != nil {
		return geometry.Rect[geometry.TopLeft]{}, err
	}
	start := int32(UTF16ToRune(text, r.Start))
	end := int32(UTF16ToRune(text, r.End))

	var c *dbus.Call
	if end > start {
		c, err = h.call(ctx, "bounds_for_range", ifaceText+".GetRangeExtents", start, end, coordTypeScreen)
	} else {
		c, err = h.call(ctx, "bounds_for_range", ifaceText+".GetCharacterExtents", start, coordTypeScreen)
	}
	if err != nil {
		return geometry.Rect[geometry.TopLeft]{}, err
	}
	var x, y, w, hgt int32
	if err := c.Store(&x, &y, &w, &hgt); err != nil {
		return geometry.Rect[geometry.TopLeft]{}, newError("bounds_for_range", ErrAttributeMissing, err)
	}
	if end <= start {
		w = 0
	}
	return geometry.Rect[geometry.TopLeft]{X: float64(x), Y: float64(y), W: float64(w), H: float64(hgt)}, nil
}

func (h *atspiHandle) SetValue(ctx context.Context, value string) error {
	c, err := h.call(ctx, "set_value", ifaceEditable+".SetTextContents", value)
	if err != nil {
		return newError("set_value", ErrWriteRejected, err)
	}
	var ok bool
	if err := c.Store(&ok); err != nil || !ok {
		return newError("set_value", ErrWriteRejected, err)
	}
	return nil
}

func (h *atspiHandle) SetSelectedRange(ctx context.Context, r Range) error {
	text, err := h.text(ctx)
	if err != nil {
		return err
	}
	start := int32(UTF16ToRune(text, r.Start))
	end := int32(UTF16ToRune(text, r.End))

	var c *dbus.Call
	if end > start {
		c, err = h.call(ctx, "set_selected_range", ifaceText+".SetSelection", int32(0), start, end)
	} else {
		c, err = h.call(ctx, "set_selected_range", ifaceText+".SetCaretOffset", start)
	}
	if err != nil {
		return newError("set_selected_range", ErrWriteRejected, err)
	}
	var ok bool
	if err := c.Store(&ok); err != nil || !ok {
		return newError("set_selected_range", ErrWriteRejected, fmt.Errorf("range %d-%d refused", start, end))
	}
	return nil
}
