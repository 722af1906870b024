package insert

import (
	"errors"

	"github.com/atotto/clipboard"
)

// SystemClipboard is the OS clipboard (pbcopy/pbpaste on macOS, xclip,
// xsel or wl-clipboard on Linux).
type SystemClipboard struct{}

// NewSystemClipboard returns the OS clipboard, or an error when no
// clipboard tool is available.
func NewSystemClipboard() (*SystemClipboard, error) {
	if clipboard.Unsupported {
		return nil, errors.New("no clipboard utility found")
	}
	return &SystemClipboard{}, nil
}

func (SystemClipboard) Read() (string, error) { return clipboard.ReadAll() }

func (SystemClipboard) Write(s string) error { return clipboard.WriteAll(s) }
