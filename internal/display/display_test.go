package display

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordfill/internal/geometry"
)

const xrandrSample = `Screen 0: minimum 8 x 8, current 3200 x 1080, maximum 32767 x 32767
eDP-1 connected primary 1920x1080+0+0 (normal left inverted right x axis y axis) 309mm x 174mm
   1920x1080     60.02*+
HDMI-1 connected 1280x1024+1920+0 (normal left inverted right x axis y axis) 376mm x 301mm
   1280x1024     60.02*+
DP-1 connected (normal left inverted right x axis y axis)
   2560x1440     59.95 +
DP-2 disconnected (normal left inverted right x axis y axis)
`

func TestParseXrandr(t *testing.T) {
	outputs, err := ParseXrandr([]byte(xrandrSample))
	require.NoError(t, err)
	require.Len(t, outputs, 2)

	assert.Equal(t, Output{
		Name:    "eDP-1",
		Rect:    geometry.Rect[geometry.TopLeft]{X: 0, Y: 0, W: 1920, H: 1080},
		Primary: true,
	}, outputs[0])
	assert.Equal(t, Output{
		Name: "HDMI-1",
		Rect: geometry.Rect[geometry.TopLeft]{X: 1920, Y: 0, W: 1280, H: 1024},
	}, outputs[1])
}

func TestParseXrandrDefaultsPrimary(t *testing.T) {
	outputs, err := ParseXrandr([]byte("VGA-0 connected 1024x768+0+0 (normal) 0mm x 0mm\n"))
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.True(t, outputs[0].Primary)

	outputs, err = ParseXrandr(nil)
	require.NoError(t, err)
	assert.Empty(t, outputs)
}

func TestParseWorkArea(t *testing.T) {
	r, ok := ParseWorkArea([]byte("_NET_WORKAREA(CARDINAL) = 0, 27, 3200, 1053, 0, 27, 3200, 1053\n"))
	require.True(t, ok)
	assert.Equal(t, geometry.Rect[geometry.TopLeft]{X: 0, Y: 27, W: 3200, H: 1053}, r)

	for _, in := range []string{
		"",
		"_NET_WORKAREA:  not found.",
		"_NET_WORKAREA(CARDINAL) = 0, 27",
		"_NET_WORKAREA(CARDINAL) = a, b, c, d",
	} {
		_, ok := ParseWorkArea([]byte(in))
		assert.False(t, ok, in)
	}
}

func TestX11Layout(t *testing.T) {
	outputs, err := ParseXrandr([]byte(xrandrSample))
	require.NoError(t, err)
	work := geometry.Rect[geometry.TopLeft]{X: 0, Y: 27, W: 3200, H: 1053}

	displays := x11Layout(outputs, &work)
	require.Len(t, displays, 2)

	assert.Equal(t, "eDP-1", displays[0].ID)
	assert.True(t, displays[0].IsPrimary)
	assert.Equal(t, geometry.Rect[geometry.BottomLeft]{X: 0, Y: 0, W: 1920, H: 1080}, displays[0].Frame)
	assert.Equal(t, geometry.Rect[geometry.BottomLeft]{X: 0, Y: 0, W: 1920, H: 1053}, displays[0].VisibleFrame)

	// The shorter output hangs from the top of the X screen.
	assert.Equal(t, geometry.Rect[geometry.BottomLeft]{X: 1920, Y: 56, W: 1280, H: 1024}, displays[1].Frame)
	assert.Equal(t, geometry.Rect[geometry.BottomLeft]{X: 1920, Y: 56, W: 1280, H: 997}, displays[1].VisibleFrame)
}

func TestX11LayoutWithoutWorkArea(t *testing.T) {
	outputs, err := ParseXrandr([]byte(xrandrSample))
	require.NoError(t, err)

	displays := x11Layout(outputs, nil)
	for _, d := range displays {
		assert.True(t, d.VisibleFrame.IsZero())
		assert.Equal(t, d.Frame, d.Usable())
	}
}

func TestX11ReconcilerRoundTrip(t *testing.T) {
	outputs, err := ParseXrandr([]byte(xrandrSample))
	require.NoError(t, err)
	displays := x11Layout(outputs, nil)
	rec := x11Reconciler(displays)
	assert.Equal(t, 1080.0, rec.PrimaryHeight)

	for i, o := range outputs {
		assert.Equal(t, o.Rect, rec.FromDisplaySpace(displays[i].Frame), o.Name)
	}

	// A caret on the second output, 100px below the X screen top.
	caret := geometry.Rect[geometry.TopLeft]{X: 2000, Y: 100, W: 2, H: 16}
	bl := rec.ToDisplaySpace(caret)
	d, ok := geometry.DisplayContaining(bl.Origin(), displays)
	require.True(t, ok)
	assert.Equal(t, "HDMI-1", d.ID)
}

type countingEnumerator struct {
	calls    int
	displays []geometry.DisplayInfo
	err      error
}

func (c *countingEnumerator) Displays(context.Context) ([]geometry.DisplayInfo, error) {
	c.calls++
	return c.displays, c.err
}

func TestCached(t *testing.T) {
	next := &countingEnumerator{displays: []geometry.DisplayInfo{{ID: "a", IsPrimary: true}}}
	c := NewCached(next, time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	for range 3 {
		d, err := c.Displays(context.Background())
		require.NoError(t, err)
		assert.Len(t, d, 1)
	}
	assert.Equal(t, 1, next.calls)

	now = now.Add(2 * time.Minute)
	_, err := c.Displays(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)

	c.Invalidate()
	_, err = c.Displays(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, next.calls)
}

func TestCachedDoesNotKeepFailures(t *testing.T) {
	boom := errors.New("boom")
	next := &countingEnumerator{err: boom}
	c := NewCached(next, time.Minute)

	_, err := c.Displays(context.Background())
	assert.ErrorIs(t, err, boom)
	_, err = c.Displays(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, next.calls)
}

func TestStaticCopies(t *testing.T) {
	s := Static{{ID: "a"}}
	d, err := s.Displays(context.Background())
	require.NoError(t, err)
	d[0].ID = "b"
	assert.Equal(t, "a", s[0].ID)
}

func TestFixedAuthorizer(t *testing.T) {
	assert.True(t, Fixed(true).IsIntrospectionAuthorized())
	assert.False(t, Fixed(false).Prompt())
}
