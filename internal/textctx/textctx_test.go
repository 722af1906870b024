package textctx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordfill/internal/element"
	"wordfill/internal/element/elementtest"
	"wordfill/internal/geometry"
)

func fullHD(context.Context) (geometry.Reconciler, error) {
	return geometry.Reconciler{PrimaryHeight: 1080}, nil
}

func TestExtractFromValue(t *testing.T) {
	h := elementtest.New("please say helo", 15).
		WithBounds(geometry.Rect[geometry.TopLeft]{X: 10, Y: 10, W: 2, H: 14})
	ex := NewExtractor(Options{Reconciler: fullHD})

	tc, err := ex.Extract(context.Background(), h)
	require.NoError(t, err)

	assert.Equal(t, "please say helo", tc.FullText)
	assert.Equal(t, 15, tc.CursorOffset)
	assert.Equal(t, element.Range{Start: 11, End: 15}, tc.WordRange)
	assert.Equal(t, "helo", tc.Word)
	assert.True(t, tc.HasWord())
	assert.Equal(t, StrategyValue, tc.Strategy)
	assert.Equal(t, "com.example.editor", tc.Application)
	assert.Nil(t, tc.SelectedText)

	require.NotNil(t, tc.CursorRect)
	assert.Equal(t, geometry.Rect[geometry.BottomLeft]{X: 10, Y: 1056, W: 2, H: 14}, *tc.CursorRect)
}

func TestExtractCursorDefaultsToEnd(t *testing.T) {
	h := elementtest.New("abc def", 0).WithoutSelection()

	tc, err := NewExtractor(Options{}).Extract(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, 7, tc.CursorOffset)
	assert.Equal(t, "def", tc.Word)
	assert.Nil(t, tc.CursorRect, "no reconciler means no rect")
}

func TestExtractFallsBackToSelection(t *testing.T) {
	h := elementtest.New("", 0).
		WithoutValue().
		WithSelectedText("wonderfu", element.Range{Start: 20, End: 28})

	tc, err := NewExtractor(Options{}).Extract(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, StrategySelection, tc.Strategy)
	assert.Equal(t, "wonderfu", tc.Word)
	assert.Equal(t, element.Range{Start: 20, End: 28}, tc.ElementWordRange())
	require.NotNil(t, tc.SelectedText)
}

func TestExtractFallsBackToTitle(t *testing.T) {
	h := elementtest.New("", 0).WithoutValue().WithTitle("Search quer")

	tc, err := NewExtractor(Options{}).Extract(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, StrategyTitle, tc.Strategy)
	assert.Equal(t, "quer", tc.Word)

	h = elementtest.New("", 0).WithoutValue().WithTitle("").WithDescription("labe")
	tc, err = NewExtractor(Options{}).Extract(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, "labe", tc.Word)
}

func TestExtractExhaustion(t *testing.T) {
	h := elementtest.New("", 0).WithoutValue()

	_, err := NewExtractor(Options{}).Extract(context.Background(), h)
	require.ErrorIs(t, err, ErrTextExtractionFailed)

	var xe *ExtractionError
	require.ErrorAs(t, err, &xe)
	assert.Len(t, xe.Reasons, 3)
	assert.Contains(t, xe.Reasons[0], "value")
}

func TestExtractEmptyValueFallsThrough(t *testing.T) {
	h := elementtest.New("", 0).WithTitle("Subjec")

	tc, err := NewExtractor(Options{}).Extract(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, StrategyTitle, tc.Strategy)
}

func TestExtractZeroRectIsUnavailable(t *testing.T) {
	h := elementtest.New("helo", 4).WithBounds(geometry.Rect[geometry.TopLeft]{})

	tc, err := NewExtractor(Options{Reconciler: fullHD}).Extract(context.Background(), h)
	require.NoError(t, err)
	assert.Nil(t, tc.CursorRect)
}

func TestExtractReconcilerFailure(t *testing.T) {
	h := elementtest.New("helo", 4).WithBounds(geometry.Rect[geometry.TopLeft]{X: 1, Y: 1, W: 1, H: 1})
	broken := func(context.Context) (geometry.Reconciler, error) {
		return geometry.Reconciler{}, errors.New("no displays")
	}

	tc, err := NewExtractor(Options{Reconciler: broken}).Extract(context.Background(), h)
	require.NoError(t, err)
	assert.Nil(t, tc.CursorRect)
}

func TestExtractWindowsLongText(t *testing.T) {
	long := make([]byte, 0, 5000)
	for len(long) < 4990 {
		long = append(long, "lorem "...)
	}
	text := string(long) + "ipsu"
	h := elementtest.New(text, Len16(text))

	tc, err := NewExtractor(Options{MaxTextLength: 64}).Extract(context.Background(), h)
	require.NoError(t, err)
	assert.LessOrEqual(t, Len16(tc.FullText), 64)
	assert.Equal(t, "ipsu", tc.Word)

	got, ok := Slice16(text, tc.ElementWordRange())
	require.True(t, ok)
	assert.Equal(t, "ipsu", got)
	assert.Equal(t, Len16(text), tc.ElementCursor())
}

func TestExtractStopsOnPermissionDenied(t *testing.T) {
	calls := 0
	denied := Strategy{Name: "denied", Extract: func(context.Context, element.Handle) (Partial, error) {
		calls++
		return Partial{}, &element.Error{Op: "value", Kind: element.ErrPermissionDenied}
	}}
	never := Strategy{Name: "never", Extract: func(context.Context, element.Handle) (Partial, error) {
		calls++
		return Partial{Text: "x"}, nil
	}}

	_, err := NewExtractor(Options{Strategies: []Strategy{denied, never}}).Extract(context.Background(), elementtest.New("", 0))
	assert.ErrorIs(t, err, element.ErrPermissionDenied)
	assert.Equal(t, 1, calls)
}

func TestStrategiesByName(t *testing.T) {
	s, err := StrategiesByName([]string{"title", "value"})
	require.NoError(t, err)
	ex := NewExtractor(Options{Strategies: s})
	assert.Equal(t, []string{"title", "value"}, ex.Strategies())

	_, err = StrategiesByName([]string{"ocr"})
	assert.Error(t, err)
}
