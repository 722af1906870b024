//go:build linux || (darwin && cgo)

package insert

import (
	"fmt"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
)

type key struct {
	code  int
	shift bool
}

// shifted maps US-layout shifted characters to the key that produces them.
var shifted = map[rune]rune{
	'!': '1', '@': '2', '#': '3', '$': '4', '%': '5',
	'^': '6', '&': '7', '*': '8', '(': '9', ')': '0',
	'_': '-', '+': '=', '{': '[', '}': ']', '|': '\\',
	':': ';', '"': '\'', '<': ',', '>': '.', '?': '/',
	'~': '`',
}

func lookupKey(r rune) (key, bool) {
	if c, ok := baseKeys[r]; ok {
		return key{code: c}, true
	}
	if r >= 'A' && r <= 'Z' {
		c, ok := baseKeys[r-'A'+'a']
		return key{code: c, shift: true}, ok
	}
	if b, ok := shifted[r]; ok {
		c, ok := baseKeys[b]
		return key{code: c, shift: true}, ok
	}
	return key{}, false
}

// Keyboard synthesizes key events through a virtual keyboard (uinput on
// Linux, CGEvent on macOS). It assumes a US layout.
type Keyboard struct {
	mu    sync.Mutex
	kb    keybd_event.KeyBonding
	delay time.Duration
}

// NewKeyboard creates the virtual keyboard. delay is the pause after each
// key event.
func NewKeyboard(delay time.Duration) (Synthesizer, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("create virtual keyboard: %w", err)
	}
	// The kernel needs a moment before a new uinput device delivers events.
	time.Sleep(settleDelay)
	return &Keyboard{kb: kb, delay: delay}, nil
}

func (k *Keyboard) tap(c key) error {
	k.kb.SetKeys(c.code)
	k.kb.HasSHIFT(c.shift)
	err := k.kb.Launching()
	k.kb.HasSHIFT(false)
	if k.delay > 0 {
		time.Sleep(k.delay)
	}
	return err
}

func (k *Keyboard) repeat(code, n int) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for range n {
		if err := k.tap(key{code: code}); err != nil {
			return err
		}
	}
	return nil
}

func (k *Keyboard) Backspace(n int) error { return k.repeat(keyBackspace, n) }

func (k *Keyboard) ForwardDelete(n int) error { return k.repeat(keyForwardDelete, n) }

func (k *Keyboard) CanType(r rune) bool {
	_, ok := lookupKey(r)
	return ok
}

func (k *Keyboard) TypeRune(r rune) error {
	c, ok := lookupKey(r)
	if !ok {
		return fmt.Errorf("no key for %q", r)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tap(c)
}

func (k *Keyboard) Paste() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.kb.SetKeys(keyV)
	pasteModifier(&k.kb, true)
	err := k.kb.Launching()
	pasteModifier(&k.kb, false)
	return err
}
