package element

import "unicode/utf8"

// RuneToUTF16 converts a code point offset into s to a UTF-16 offset.
// Offsets past the end clamp to the end.
func RuneToUTF16(s string, runes int) int {
	n := 0
	for i, r := range []rune(s) {
		if i >= runes {
			break
		}
		n += utf16Len(r)
	}
	return n
}

// UTF16ToRune converts a UTF-16 offset into s to a code point offset. An
// offset inside a surrogate pair maps to the start of that code point.
func UTF16ToRune(s string, units int) int {
	n, i := 0, 0
	for _, r := range s {
		w := utf16Len(r)
		if n+w > units {
			break
		}
		n += w
		i++
	}
	return i
}

func utf16Len(r rune) int {
	if r >= 0x10000 && r <= utf8.MaxRune {
		return 2
	}
	return 1
}
