package element

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("bus gone")
	err := error(newError("locate", ErrPermissionDenied, cause))

	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNoFocusedElement)
	assert.True(t, IsPermissionDenied(err))
	assert.Equal(t, "locate: accessibility permission denied: bus gone", err.Error())

	var e *Error
	assert.ErrorAs(t, err, &e)
	assert.Equal(t, "locate", e.Op)

	assert.Equal(t, "locate: no focused element", newError("locate", ErrNoFocusedElement, nil).Error())
}

func TestValueAccessors(t *testing.T) {
	s, ok := StringValue("x").String()
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	_, ok = StringValue("x").Range()
	assert.False(t, ok)

	r, ok := RangeValue(Range{Start: 2, End: 5}).Range()
	assert.True(t, ok)
	assert.Equal(t, 3, r.Len())

	n, ok := IntValue(7).Int()
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	_, ok = Value{}.String()
	assert.False(t, ok)
}

func TestRange(t *testing.T) {
	assert.True(t, Caret(4).IsEmpty())
	assert.Equal(t, Range{Start: 5, End: 8}, Range{Start: 2, End: 5}.Shift(3))
	assert.Equal(t, "selected_range", AttrSelectedRange.String())
	assert.Equal(t, "attr(99)", Attr(99).String())
}

func TestOffsetConversion(t *testing.T) {
	// "a😀b": the emoji is one code point and two UTF-16 units.
	s := "a\U0001F600b"

	tests := []struct {
		runes, units int
	}{
		{0, 0},
		{1, 1},
		{2, 3},
		{3, 4},
		{10, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.units, RuneToUTF16(s, tt.runes), "runes=%d", tt.runes)
	}

	assert.Equal(t, 0, UTF16ToRune(s, 0))
	assert.Equal(t, 1, UTF16ToRune(s, 1))
	assert.Equal(t, 1, UTF16ToRune(s, 2), "inside the surrogate pair")
	assert.Equal(t, 2, UTF16ToRune(s, 3))
	assert.Equal(t, 3, UTF16ToRune(s, 40))
}

func TestNewLocatorFillsDefaults(t *testing.T) {
	assert.NotNil(t, NewLocator(Options{}))
}
