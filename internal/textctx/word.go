package textctx

import (
	"unicode"
	"unicode/utf16"

	"wordfill/internal/element"
)

// WordAt returns the maximal run of word characters touching cursor, where
// cursor and the returned range are UTF-16 offsets into text. A cursor
// outside the text is clamped, and one landing inside a surrogate pair is
// moved to the pair's start. When no word touches the cursor the range is
// empty at the cursor and the word is "".
//
// Word characters are letters, marks, digits and connector punctuation. An
// apostrophe counts when it has a letter on both sides.
func WordAt(text string, cursor int) (element.Range, string) {
	u := units(text)
	cursor = snap(u, clamp(cursor, 0, len(u)))

	start := cursor
	for start > 0 {
		r, w := runeBefore(u, start)
		if isWordRune(r) || (isApostrophe(r) && letterBefore(u, start-w) && letterAt(u, start)) {
			start -= w
			continue
		}
		break
	}

	end := cursor
	for end < len(u) {
		r, w := runeAt(u, end)
		if isWordRune(r) || (isApostrophe(r) && letterBefore(u, end) && letterAt(u, end+w)) {
			end += w
			continue
		}
		break
	}

	if start == end {
		return element.Caret(cursor), ""
	}
	return element.Range{Start: start, End: end}, string(utf16.Decode(u[start:end]))
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsDigit(r) || unicode.Is(unicode.Pc, r)
}

func isApostrophe(r rune) bool {
	return r == '\'' || r == '’'
}

func letterBefore(u []uint16, i int) bool {
	if i <= 0 {
		return false
	}
	r, _ := runeBefore(u, i)
	return unicode.IsLetter(r)
}

func letterAt(u []uint16, i int) bool {
	if i >= len(u) {
		return false
	}
	r, _ := runeAt(u, i)
	return unicode.IsLetter(r)
}

// runeAt decodes the code point starting at i.
func runeAt(u []uint16, i int) (rune, int) {
	if i+1 < len(u) && isHigh(u[i]) && isLow(u[i+1]) {
		return utf16.DecodeRune(rune(u[i]), rune(u[i+1])), 2
	}
	return rune(u[i]), 1
}

// runeBefore decodes the code point ending at i.
func runeBefore(u []uint16, i int) (rune, int) {
	if i >= 2 && isLow(u[i-1]) && isHigh(u[i-2]) {
		return utf16.DecodeRune(rune(u[i-2]), rune(u[i-1])), 2
	}
	return rune(u[i-1]), 1
}

func isHigh(c uint16) bool { return c >= 0xD800 && c < 0xDC00 }
func isLow(c uint16) bool  { return c >= 0xDC00 && c < 0xE000 }

// snap moves an offset that splits a surrogate pair back to the pair start.
func snap(u []uint16, i int) int {
	if i > 0 && i < len(u) && isLow(u[i]) && isHigh(u[i-1]) {
		return i - 1
	}
	return i
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
