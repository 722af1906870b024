//go:build darwin && cgo

package element

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework ApplicationServices -framework Foundation -framework AppKit

#include <ApplicationServices/ApplicationServices.h>
#include <AppKit/AppKit.h>
#include <stdlib.h>

static char* wf_cstring(CFStringRef s) {
    CFIndex length = CFStringGetLength(s);
    CFIndex maxSize = CFStringGetMaximumSizeForEncoding(length, kCFStringEncodingUTF8) + 1;
    char* out = malloc(maxSize);
    if (out && !CFStringGetCString(s, out, maxSize, kCFStringEncodingUTF8)) {
        free(out);
        out = NULL;
    }
    return out;
}

static CFStringRef wf_attr(const char* name) {
    return CFStringCreateWithCString(NULL, name, kCFStringEncodingUTF8);
}

// status: 0 ok, 1 not trusted, 2 nothing focused
static AXUIElementRef wf_focused_element(float timeout, int* status, pid_t* pid) {
    *status = 0;
    if (!AXIsProcessTrusted()) {
        *status = 1;
        return NULL;
    }

    CFTypeRef focused = NULL;
    AXUIElementRef sys = AXUIElementCreateSystemWide();
    if (timeout > 0) AXUIElementSetMessagingTimeout(sys, timeout);
    AXError err = AXUIElementCopyAttributeValue(sys, kAXFocusedUIElementAttribute, &focused);
    CFRelease(sys);
    if (err == kAXErrorAPIDisabled) {
        *status = 1;
        return NULL;
    }

    if (err != kAXErrorSuccess || focused == NULL) {
        @autoreleasepool {
            NSRunningApplication* app = [[NSWorkspace sharedWorkspace] frontmostApplication];
            if (app) {
                AXUIElementRef appElement = AXUIElementCreateApplication(app.processIdentifier);
                if (appElement) {
                    if (timeout > 0) AXUIElementSetMessagingTimeout(appElement, timeout);
                    err = AXUIElementCopyAttributeValue(appElement, kAXFocusedUIElementAttribute, &focused);
                    CFRelease(appElement);
                }
            }
        }
    }
    if (err != kAXErrorSuccess || focused == NULL) {
        *status = 2;
        return NULL;
    }

    AXUIElementRef el = (AXUIElementRef)focused;
    if (timeout > 0) AXUIElementSetMessagingTimeout(el, timeout);
    AXUIElementGetPid(el, pid);
    return el;
}

static int wf_copy_string(AXUIElementRef el, const char* name, char** out) {
    CFStringRef attr = wf_attr(name);
    CFTypeRef v = NULL;
    AXError err = AXUIElementCopyAttributeValue(el, attr, &v);
    CFRelease(attr);
    if (err != kAXErrorSuccess) return err;
    if (v == NULL) return kAXErrorNoValue;
    if (CFGetTypeID(v) != CFStringGetTypeID()) {
        CFRelease(v);
        return kAXErrorIllegalArgument;
    }
    *out = wf_cstring((CFStringRef)v);
    CFRelease(v);
    return *out ? kAXErrorSuccess : kAXErrorFailure;
}

static int wf_copy_range(AXUIElementRef el, const char* name, long* loc, long* len) {
    CFStringRef attr = wf_attr(name);
    CFTypeRef v = NULL;
    AXError err = AXUIElementCopyAttributeValue(el, attr, &v);
    CFRelease(attr);
    if (err != kAXErrorSuccess) return err;
    if (v == NULL) return kAXErrorNoValue;

    int rc = kAXErrorIllegalArgument;
    if (CFGetTypeID(v) == AXValueGetTypeID() && AXValueGetType((AXValueRef)v) == kAXValueCFRangeType) {
        CFRange r;
        if (AXValueGetValue((AXValueRef)v, kAXValueCFRangeType, &r)) {
            *loc = r.location;
            *len = r.length;
            rc = kAXErrorSuccess;
        }
    }
    CFRelease(v);
    return rc;
}

static int wf_copy_int(AXUIElementRef el, const char* name, long* n) {
    CFStringRef attr = wf_attr(name);
    CFTypeRef v = NULL;
    AXError err = AXUIElementCopyAttributeValue(el, attr, &v);
    CFRelease(attr);
    if (err != kAXErrorSuccess) return err;
    if (v == NULL) return kAXErrorNoValue;

    int rc = kAXErrorIllegalArgument;
    if (CFGetTypeID(v) == CFNumberGetTypeID() && CFNumberGetValue((CFNumberRef)v, kCFNumberLongType, n)) {
        rc = kAXErrorSuccess;
    }
    CFRelease(v);
    return rc;
}

static int wf_bounds_for_range(AXUIElementRef el, long loc, long len, double* x, double* y, double* w, double* h) {
    CFRange r = CFRangeMake(loc, len);
    AXValueRef param = AXValueCreate(kAXValueCFRangeType, &r);
    if (param == NULL) return kAXErrorFailure;

    CFTypeRef v = NULL;
    AXError err = AXUIElementCopyParameterizedAttributeValue(el, kAXBoundsForRangeParameterizedAttribute, param, &v);
    CFRelease(param);
    if (err != kAXErrorSuccess) return err;
    if (v == NULL) return kAXErrorNoValue;

    int rc = kAXErrorIllegalArgument;
    if (CFGetTypeID(v) == AXValueGetTypeID() && AXValueGetType((AXValueRef)v) == kAXValueCGRectType) {
        CGRect rect;
        if (AXValueGetValue((AXValueRef)v, kAXValueCGRectType, &rect)) {
            *x = rect.origin.x;
            *y = rect.origin.y;
            *w = rect.size.width;
            *h = rect.size.height;
            rc = kAXErrorSuccess;
        }
    }
    CFRelease(v);
    return rc;
}

static int wf_set_string(AXUIElementRef el, const char* name, const char* value) {
    CFStringRef attr = wf_attr(name);
    CFStringRef s = CFStringCreateWithCString(NULL, value, kCFStringEncodingUTF8);
    if (s == NULL) {
        CFRelease(attr);
        return kAXErrorIllegalArgument;
    }
    AXError err = AXUIElementSetAttributeValue(el, attr, s);
    CFRelease(s);
    CFRelease(attr);
    return err;
}

static int wf_set_range(AXUIElementRef el, const char* name, long loc, long len) {
    CFStringRef attr = wf_attr(name);
    CFRange r = CFRangeMake(loc, len);
    AXValueRef v = AXValueCreate(kAXValueCFRangeType, &r);
    if (v == NULL) {
        CFRelease(attr);
        return kAXErrorFailure;
    }
    AXError err = AXUIElementSetAttributeValue(el, attr, v);
    CFRelease(v);
    CFRelease(attr);
    return err;
}

static char* wf_app_name(pid_t pid) {
    @autoreleasepool {
        NSRunningApplication* app = [NSRunningApplication runningApplicationWithProcessIdentifier:pid];
        if (!app) return NULL;
        NSString* name = app.bundleIdentifier ? app.bundleIdentifier : app.localizedName;
        return name ? strdup([name UTF8String]) : NULL;
    }
}

static void wf_release(AXUIElementRef el) {
    if (el) CFRelease(el);
}
*/
import "C"

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"wordfill/internal/geometry"
	"wordfill/internal/logging"
)

var darwinAttrNames = map[Attr]string{
	AttrValue:          "AXValue",
	AttrSelectedText:   "AXSelectedText",
	AttrSelectedRange:  "AXSelectedTextRange",
	AttrTitle:          "AXTitle",
	AttrDescription:    "AXDescription",
	AttrCharacterCount: "AXNumberOfCharacters",
	AttrRole:           "AXRole",
}

// AXError values from AXError.h.
const (
	axErrorFailure              = -25200
	axErrorIllegalArgument      = -25201
	axErrorCannotComplete       = -25204
	axErrorAttributeUnsupported = -25205
	axErrorAPIDisabled          = -25211
	axErrorNoValue              = -25212
)

type axError int

func (e axError) Error() string {
	switch int(e) {
	case axErrorFailure:
		return "AXError failure"
	case axErrorIllegalArgument:
		return "AXError illegal argument"
	case axErrorCannotComplete:
		return "AXError cannot complete"
	case axErrorAttributeUnsupported:
		return "AXError attribute unsupported"
	case axErrorAPIDisabled:
		return "AXError API disabled"
	case axErrorNoValue:
		return "AXError no value"
	default:
		return fmt.Sprintf("AXError %d", int(e))
	}
}

func axKind(rc C.int, write bool) error {
	switch {
	case int(rc) == axErrorAPIDisabled:
		return ErrPermissionDenied
	case write:
		return ErrWriteRejected
	default:
		return ErrAttributeMissing
	}
}

type darwinLocator struct {
	timeout float32
	logger  *logging.Logger
}

func newPlatformLocator(opts Options) Locator {
	return &darwinLocator{
		timeout: float32(opts.MessagingTimeout.Seconds()),
		logger:  opts.logger(),
	}
}

func (l *darwinLocator) LocateFocusedElement(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var status C.int
	var pid C.pid_t
	ref := C.wf_focused_element(C.float(l.timeout), &status, &pid)
	switch status {
	case 1:
		return nil, newError("locate", ErrPermissionDenied, nil)
	case 2:
		return nil, newError("locate", ErrNoFocusedElement, nil)
	}

	h := &darwinHandle{ref: ref}
	if cName := C.wf_app_name(pid); cName != nil {
		h.app = C.GoString(cName)
		C.free(unsafe.Pointer(cName))
	}
	l.logger.Debug("focused element", "application", h.app, "pid", int(pid))
	return h, nil
}

type darwinHandle struct {
	mu       sync.Mutex
	ref      C.AXUIElementRef
	app      string
	released bool
}

func (h *darwinHandle) Application() string { return h.app }

func (h *darwinHandle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.released {
		C.wf_release(h.ref)
		h.released = true
	}
}

// with runs fn against the live reference.
func (h *darwinHandle) with(ctx context.Context, op string, fn func(C.AXUIElementRef) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return newError(op, ErrElementReleased, nil)
	}
	return fn(h.ref)
}

func (h *darwinHandle) Attribute(ctx context.Context, attr Attr) (Value, error) {
	name, ok := darwinAttrNames[attr]
	if !ok {
		return Value{}, newError(attr.String(), ErrAttributeMissing, nil)
	}
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	var out Value
	err := h.with(ctx, attr.String(), func(ref C.AXUIElementRef) error {
		switch attr {
		case AttrSelectedRange:
			var loc, length C.long
			if rc := C.wf_copy_range(ref, cName, &loc, &length); rc != 0 {
				return newError(attr.String(), axKind(rc, false), axError(rc))
			}
			out = RangeValue(Range{Start: int(loc), End: int(loc + length)})
		case AttrCharacterCount:
			var n C.long
			if rc := C.wf_copy_int(ref, cName, &n); rc != 0 {
				return newError(attr.String(), axKind(rc, false), axError(rc))
			}
			out = IntValue(int(n))
		default:
			var cs *C.char
			if rc := C.wf_copy_string(ref, cName, &cs); rc != 0 {
				return newError(attr.String(), axKind(rc, false), axError(rc))
			}
			out = StringValue(C.GoString(cs))
			C.free(unsafe.Pointer(cs))
		}
		return nil
	})
	return out, err
}

func (h *darwinHandle) BoundsForRange(ctx context.Context, r Range) (geometry.Rect[geometry.TopLeft], error) {
	var rect geometry.Rect[geometry.TopLeft]
	err := h.with(ctx, "bounds_for_range", func(ref C.AXUIElementRef) error {
		var x, y, w, hgt C.double
		if rc := C.wf_bounds_for_range(ref, C.long(r.Start), C.long(r.Len()), &x, &y, &w, &hgt); rc != 0 {
			return newError("bounds_for_range", axKind(rc, false), axError(rc))
		}
		rect = geometry.Rect[geometry.TopLeft]{X: float64(x), Y: float64(y), W: float64(w), H: float64(hgt)}
		return nil
	})
	return rect, err
}

func (h *darwinHandle) SetValue(ctx context.Context, value string) error {
	if strings.IndexByte(value, 0) >= 0 {
		return newError("set_value", ErrWriteRejected, fmt.Errorf("value contains NUL"))
	}
	cName := C.CString(darwinAttrNames[AttrValue])
	defer C.free(unsafe.Pointer(cName))
	cValue := C.CString(value)
	defer C.free(unsafe.Pointer(cValue))

	return h.with(ctx, "set_value", func(ref C.AXUIElementRef) error {
		if rc := C.wf_set_string(ref, cName, cValue); rc != 0 {
			return newError("set_value", axKind(rc, true), axError(rc))
		}
		return nil
	})
}

func (h *darwinHandle) SetSelectedRange(ctx context.Context, r Range) error {
	cName := C.CString(darwinAttrNames[AttrSelectedRange])
	defer C.free(unsafe.Pointer(cName))

	return h.with(ctx, "set_selected_range", func(ref C.AXUIElementRef) error {
		if rc := C.wf_set_range(ref, cName, C.long(r.Start), C.long(r.Len())); rc != 0 {
			return newError("set_selected_range", axKind(rc, true), axError(rc))
		}
		return nil
	})
}
