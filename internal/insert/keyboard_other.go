//go:build !linux && !(darwin && cgo)

package insert

import (
	"errors"
	"time"
)

// NewKeyboard is unavailable on this platform.
func NewKeyboard(time.Duration) (Synthesizer, error) {
	return nil, errors.New("keyboard synthesis not supported on this platform")
}
