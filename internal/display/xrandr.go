package display

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"wordfill/internal/geometry"
)

// "DP-1 connected primary 2560x1440+1920+0 (normal left ...) 597mm x 336mm"
var xrandrOutput = regexp.MustCompile(`^(\S+) connected (primary )?(\d+)x(\d+)\+(-?\d+)\+(-?\d+)`)

// Output is one connected and active X output.
type Output struct {
	Name    string
	Rect    geometry.Rect[geometry.TopLeft]
	Primary bool
}

// ParseXrandr reads `xrandr --query` output. Outputs that are connected but
// switched off are skipped. When no output is flagged primary the first one
// is.
func ParseXrandr(out []byte) ([]Output, error) {
	var outputs []Output
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		m := xrandrOutput.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		var v [4]float64
		for i, s := range m[3:7] {
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("parse %q: %w", m[0], err)
			}
			v[i] = float64(n)
		}
		outputs = append(outputs, Output{
			Name:    m[1],
			Rect:    geometry.Rect[geometry.TopLeft]{X: v[2], Y: v[3], W: v[0], H: v[1]},
			Primary: m[2] != "",
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(outputs, func(o Output) bool { return o.Primary }) && len(outputs) > 0 {
		outputs[0].Primary = true
	}
	return outputs, nil
}

// ParseWorkArea reads the first rectangle of `xprop -root _NET_WORKAREA`:
// "_NET_WORKAREA(CARDINAL) = 0, 27, 3840, 1413, 0, 27, ...".
func ParseWorkArea(out []byte) (geometry.Rect[geometry.TopLeft], bool) {
	_, list, ok := strings.Cut(string(out), "=")
	if !ok {
		return geometry.Rect[geometry.TopLeft]{}, false
	}
	fields := strings.Split(list, ",")
	if len(fields) < 4 {
		return geometry.Rect[geometry.TopLeft]{}, false
	}
	var v [4]float64
	for i := range v {
		n, err := strconv.Atoi(strings.TrimSpace(fields[i]))
		if err != nil {
			return geometry.Rect[geometry.TopLeft]{}, false
		}
		v[i] = float64(n)
	}
	return geometry.Rect[geometry.TopLeft]{X: v[0], Y: v[1], W: v[2], H: v[3]}, true
}

// x11Layout converts X outputs into display infos. The bottom of the X
// screen becomes y=0. The work area, when known, bounds every display's
// visible frame.
func x11Layout(outputs []Output, work *geometry.Rect[geometry.TopLeft]) []geometry.DisplayInfo {
	var screen float64
	for _, o := range outputs {
		screen = max(screen, o.Rect.MaxY())
	}
	rec := geometry.Reconciler{PrimaryHeight: screen}

	out := make([]geometry.DisplayInfo, len(outputs))
	for i, o := range outputs {
		d := geometry.DisplayInfo{
			ID:        o.Name,
			Frame:     rec.ToDisplaySpace(o.Rect),
			IsPrimary: o.Primary,
		}
		if work != nil {
			if vis, ok := geometry.Intersect(o.Rect, *work); ok {
				d.VisibleFrame = rec.ToDisplaySpace(vis)
			}
		}
		out[i] = d
	}
	return out
}

// x11Reconciler anchors conversions on the top of the X screen, which
// maps to the highest top edge in bottom-left space.
func x11Reconciler(displays []geometry.DisplayInfo) geometry.Reconciler {
	var h float64
	for _, d := range displays {
		h = max(h, d.Frame.MaxY())
	}
	return geometry.Reconciler{PrimaryHeight: h}
}
