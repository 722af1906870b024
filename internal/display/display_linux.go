package display

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"wordfill/internal/element"
	"wordfill/internal/geometry"
)

type xrandrEnumerator struct{}

// NewEnumerator lists X outputs with xrandr.
func NewEnumerator() Enumerator {
	return xrandrEnumerator{}
}

func (xrandrEnumerator) Displays(ctx context.Context) ([]geometry.DisplayInfo, error) {
	out, err := exec.CommandContext(ctx, "xrandr", "--query").Output()
	if err != nil {
		return nil, fmt.Errorf("xrandr: %w", err)
	}
	outputs, err := ParseXrandr(out)
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("xrandr reported no active outputs")
	}

	var work *geometry.Rect[geometry.TopLeft]
	if raw, err := exec.CommandContext(ctx, "xprop", "-root", "_NET_WORKAREA").Output(); err == nil {
		if r, ok := ParseWorkArea(raw); ok {
			work = &r
		}
	}
	return x11Layout(outputs, work), nil
}

// ReconcilerFor returns the reconciler matching displays from
// NewEnumerator. AT-SPI reports X screen coordinates, whose origin is the
// top of the whole screen rather than of the primary output.
func ReconcilerFor(displays []geometry.DisplayInfo) geometry.Reconciler {
	return x11Reconciler(displays)
}

type atspiAuthorizer struct {
	timeout time.Duration
}

// NewAuthorizer checks the AT-SPI status on the session bus.
func NewAuthorizer() Authorizer {
	return atspiAuthorizer{timeout: time.Second}
}

func (a atspiAuthorizer) IsIntrospectionAuthorized() bool {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	ok, err := element.AccessibilityEnabled(ctx)
	return err == nil && ok
}

func (a atspiAuthorizer) Prompt() bool {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := element.EnableAccessibility(ctx); err != nil {
		return false
	}
	return a.IsIntrospectionAuthorized()
}
