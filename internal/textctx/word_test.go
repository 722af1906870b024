package textctx

import (
	"testing"

	"wordfill/internal/element"
)

func TestWordAt(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		cursor int
		want   element.Range
		word   string
	}{
		{"end of word", "say helo", 8, element.Range{Start: 4, End: 8}, "helo"},
		{"middle of word", "say helo there", 6, element.Range{Start: 4, End: 8}, "helo"},
		{"start of word", "say helo", 4, element.Range{Start: 4, End: 8}, "helo"},
		{"punctuation both sides", "(helo).", 3, element.Range{Start: 1, End: 5}, "helo"},
		{"between spaces", "a  b", 2, element.Caret(2), ""},
		{"empty text", "", 0, element.Caret(0), ""},
		{"cursor past end", "helo", 99, element.Range{Start: 0, End: 4}, "helo"},
		{"negative cursor", "helo", -3, element.Range{Start: 0, End: 4}, "helo"},
		{"digits and underscore", "x = foo_bar2", 12, element.Range{Start: 4, End: 12}, "foo_bar2"},
		{"inner apostrophe", "I don't", 7, element.Range{Start: 2, End: 7}, "don't"},
		{"typographic apostrophe", "it’s", 4, element.Range{Start: 0, End: 4}, "it’s"},
		{"trailing apostrophe", "dogs'", 5, element.Caret(5), ""},
		{"trailing apostrophe before cursor", "dogs' x", 4, element.Range{Start: 0, End: 4}, "dogs"},
		{"leading apostrophe", "'tis", 4, element.Range{Start: 1, End: 4}, "tis"},
		{"accented letters", "café au", 4, element.Range{Start: 0, End: 4}, "café"},
		{"combining mark", "cafe\u0301 au", 5, element.Range{Start: 0, End: 5}, "cafe\u0301"},
		{"cyrillic", "привет мир", 3, element.Range{Start: 0, End: 6}, "привет"},
		{"cjk", "日本語です", 2, element.Range{Start: 0, End: 5}, "日本語です"},
		{"hyphen splits", "well-known", 10, element.Range{Start: 5, End: 10}, "known"},
		{"astral letters", "𝒜𝒞 x", 4, element.Range{Start: 0, End: 4}, "𝒜𝒞"},
		{"cursor inside surrogate pair", "𝒜𝒞 x", 1, element.Range{Start: 0, End: 4}, "𝒜𝒞"},
		{"emoji is not a word", "hi 😀", 5, element.Caret(5), ""},
		{"word after emoji", "😀abc", 5, element.Range{Start: 2, End: 5}, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, word := WordAt(tt.text, tt.cursor)
			if got != tt.want || word != tt.word {
				t.Errorf("WordAt(%q, %d) = %v %q, want %v %q", tt.text, tt.cursor, got, word, tt.want, tt.word)
			}
		})
	}
}

// Every cursor inside a maximal run yields exactly that run.
func TestWordAtMaximalRun(t *testing.T) {
	text := "¿Qué? naïve_coder42, l’été!"
	runs := []struct {
		r    element.Range
		word string
	}{
		{element.Range{Start: 1, End: 4}, "Qué"},
		{element.Range{Start: 6, End: 19}, "naïve_coder42"},
		{element.Range{Start: 21, End: 26}, "l’été"},
	}
	for _, run := range runs {
		for c := run.r.Start; c <= run.r.End; c++ {
			got, word := WordAt(text, c)
			if got != run.r || word != run.word {
				t.Errorf("cursor %d: got %v %q, want %v %q", c, got, word, run.r, run.word)
			}
		}
	}
}

func TestSpliceAndSlice(t *testing.T) {
	s := "a😀 helo"
	got, ok := Slice16(s, element.Range{Start: 4, End: 8})
	if !ok || got != "helo" {
		t.Fatalf("Slice16 = %q %v", got, ok)
	}
	if _, ok := Slice16(s, element.Range{Start: 4, End: 9}); ok {
		t.Fatal("out of range slice accepted")
	}

	out, ok := Splice16(s, element.Range{Start: 4, End: 8}, "hello")
	if !ok || out != "a😀 hello" {
		t.Fatalf("Splice16 = %q %v", out, ok)
	}
	if Len16(s) != 8 {
		t.Fatalf("Len16 = %d", Len16(s))
	}
}

func TestWindow(t *testing.T) {
	text := "0123456789"
	got, cursor, base := window(text, 9, 4)
	if got != "6789" || cursor != 3 || base != 6 {
		t.Fatalf("window = %q %d %d", got, cursor, base)
	}

	got, cursor, base = window(text, 5, 4)
	if got != "3456" || cursor != 2 || base != 3 {
		t.Fatalf("window = %q %d %d", got, cursor, base)
	}

	got, _, _ = window(text, 5, 0)
	if got != text {
		t.Fatalf("unbounded window cut text: %q", got)
	}
}
