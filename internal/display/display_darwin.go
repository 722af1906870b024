//go:build darwin && cgo

package display

/*
#cgo CFLAGS: -x objective-c -fobjc-arc
#cgo LDFLAGS: -framework AppKit -framework ApplicationServices

#import <AppKit/AppKit.h>
#import <ApplicationServices/ApplicationServices.h>

typedef struct {
	double x, y, w, h;
	double vx, vy, vw, vh;
	unsigned int id;
} wf_screen;

static int wf_screens(wf_screen *out, int max) {
	@autoreleasepool {
		int n = 0;
		for (NSScreen *s in [NSScreen screens]) {
			if (n >= max) {
				break;
			}
			NSRect f = [s frame];
			NSRect v = [s visibleFrame];
			NSNumber *num = [s deviceDescription][@"NSScreenNumber"];
			out[n].x = f.origin.x;
			out[n].y = f.origin.y;
			out[n].w = f.size.width;
			out[n].h = f.size.height;
			out[n].vx = v.origin.x;
			out[n].vy = v.origin.y;
			out[n].vw = v.size.width;
			out[n].vh = v.size.height;
			out[n].id = num ? [num unsignedIntValue] : 0;
			n++;
		}
		return n;
	}
}

static int wf_trusted(int prompt) {
	NSDictionary *opts = @{(__bridge NSString *)kAXTrustedCheckOptionPrompt: @(prompt != 0)};
	return AXIsProcessTrustedWithOptions((__bridge CFDictionaryRef)opts) ? 1 : 0;
}
*/
import "C"

import (
	"context"
	"errors"
	"strconv"

	"wordfill/internal/geometry"
)

const maxScreens = 16

type screenEnumerator struct{}

// NewEnumerator lists NSScreen frames. The first screen is the primary.
func NewEnumerator() Enumerator {
	return screenEnumerator{}
}

func (screenEnumerator) Displays(context.Context) ([]geometry.DisplayInfo, error) {
	var buf [maxScreens]C.wf_screen
	n := int(C.wf_screens(&buf[0], maxScreens))
	if n == 0 {
		return nil, errors.New("no screens attached")
	}
	out := make([]geometry.DisplayInfo, n)
	for i := range n {
		s := buf[i]
		out[i] = geometry.DisplayInfo{
			ID: strconv.FormatUint(uint64(s.id), 10),
			Frame: geometry.Rect[geometry.BottomLeft]{
				X: float64(s.x), Y: float64(s.y), W: float64(s.w), H: float64(s.h),
			},
			VisibleFrame: geometry.Rect[geometry.BottomLeft]{
				X: float64(s.vx), Y: float64(s.vy), W: float64(s.vw), H: float64(s.vh),
			},
			IsPrimary: i == 0,
		}
	}
	return out, nil
}

// ReconcilerFor returns the reconciler for displays: the accessibility
// origin is the primary screen's top-left corner.
func ReconcilerFor(displays []geometry.DisplayInfo) geometry.Reconciler {
	return geometry.NewReconciler(displays)
}

type axAuthorizer struct{}

// NewAuthorizer checks the Accessibility privacy setting.
func NewAuthorizer() Authorizer {
	return axAuthorizer{}
}

func (axAuthorizer) IsIntrospectionAuthorized() bool {
	return C.wf_trusted(0) == 1
}

func (axAuthorizer) Prompt() bool {
	return C.wf_trusted(1) == 1
}
