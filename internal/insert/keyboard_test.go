//go:build linux

package insert

import "testing"

func TestLookupKey(t *testing.T) {
	tests := []struct {
		r     rune
		code  int
		shift bool
		ok    bool
	}{
		{'a', 30, false, true},
		{'A', 30, true, true},
		{'1', 2, false, true},
		{'!', 2, true, true},
		{'"', 40, true, true},
		{' ', 57, false, true},
		{'é', 0, false, false},
		{'😀', 0, false, false},
	}
	for _, tt := range tests {
		got, ok := lookupKey(tt.r)
		if ok != tt.ok || got.code != tt.code || got.shift != tt.shift {
			t.Errorf("lookupKey(%q) = %+v %v, want %d/%v %v", tt.r, got, ok, tt.code, tt.shift, tt.ok)
		}
	}
}
