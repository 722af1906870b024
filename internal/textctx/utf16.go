package textctx

import (
	"unicode/utf16"

	"wordfill/internal/element"
)

func units(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

// Len16 returns the length of s in UTF-16 code units.
func Len16(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// Slice16 returns the part of s covered by r, and false when r does not lie
// within s.
func Slice16(s string, r element.Range) (string, bool) {
	u := units(s)
	if r.Start < 0 || r.End > len(u) || r.Start > r.End {
		return "", false
	}
	return string(utf16.Decode(u[r.Start:r.End])), true
}

// Splice16 replaces the part of s covered by r with repl. It returns false
// when r does not lie within s.
func Splice16(s string, r element.Range, repl string) (string, bool) {
	u := units(s)
	if r.Start < 0 || r.End > len(u) || r.Start > r.End {
		return "", false
	}
	out := make([]uint16, 0, len(u)-r.Len()+Len16(repl))
	out = append(out, u[:r.Start]...)
	out = append(out, units(repl)...)
	out = append(out, u[r.End:]...)
	return string(utf16.Decode(out)), true
}

// window cuts s down to at most limit UTF-16 units around cursor. It
// returns the cut text, the cursor relative to it and the offset of the cut
// within s.
func window(s string, cursor, limit int) (string, int, int) {
	u := units(s)
	if limit <= 0 || len(u) <= limit {
		return s, cursor, 0
	}
	start := clamp(cursor-limit/2, 0, len(u)-limit)
	end := start + limit
	if start > 0 && isLow(u[start]) {
		start++
	}
	if end < len(u) && isLow(u[end]) {
		end--
	}
	return string(utf16.Decode(u[start:end])), cursor - start, start
}
