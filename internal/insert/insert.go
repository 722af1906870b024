// Package insert writes a chosen completion back into the focused element.
//
// Two strategies are tried in order. Structured replacement splices the
// element's value through the accessibility API and verifies the result by
// reading it back. Synthesized input deletes the partial word with key
// events and types the completion, pasting characters the keyboard layout
// cannot produce. Both refuse to touch the element when the word under the
// cursor no longer matches what was extracted.
package insert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rivo/uniseg"

	"wordfill/internal/element"
	"wordfill/internal/logging"
	"wordfill/internal/textctx"
)

// ErrInsertionFailed is returned when no strategy could insert the text.
var ErrInsertionFailed = errors.New("insertion failed")

var (
	errWordChanged  = errors.New("word under cursor changed")
	errNoEffect     = errors.New("write had no effect")
	errUnverifiable = errors.New("element exposes neither value nor selection")
	errNoKeyboard   = errors.New("no input synthesizer")
)

// Strategy is one way of writing text into an element.
type Strategy int

const (
	StrategyStructured Strategy = iota
	StrategySynthesized
)

func (s Strategy) String() string {
	switch s {
	case StrategyStructured:
		return "structured"
	case StrategySynthesized:
		return "synthesized"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy parses "structured" or "synthesized".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "structured":
		return StrategyStructured, nil
	case "synthesized":
		return StrategySynthesized, nil
	}
	return 0, fmt.Errorf("unknown insertion strategy %q", s)
}

// ParseStrategies parses an ordered strategy list.
func ParseStrategies(names []string) ([]Strategy, error) {
	out := make([]Strategy, 0, len(names))
	for _, n := range names {
		s, err := ParseStrategy(n)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// DefaultStrategies returns structured, then synthesized.
func DefaultStrategies() []Strategy {
	return []Strategy{StrategyStructured, StrategySynthesized}
}

// Target is the word being completed, in element value offsets.
type Target struct {
	Range  element.Range
	Word   string
	Cursor int
}

// Result describes a successful insertion.
type Result struct {
	Strategy Strategy
	// SkippedRunes counts characters that could neither be typed nor
	// pasted.
	SkippedRunes int
}

// Synthesizer emits keyboard events into whatever has focus.
type Synthesizer interface {
	Backspace(n int) error
	ForwardDelete(n int) error
	// CanType reports whether r is reachable on the keyboard layout.
	CanType(r rune) bool
	TypeRune(r rune) error
	// Paste sends the platform paste shortcut.
	Paste() error
}

// Clipboard is the system pasteboard.
type Clipboard interface {
	Read() (string, error)
	Write(s string) error
}

// Options configures an Inserter.
type Options struct {
	Strategies []Strategy

	// VerifyDelay is the wait before re-reading a structured write that
	// did not show up on the first read.
	VerifyDelay time.Duration

	Synthesizer Synthesizer

	// Clipboard enables the paste fallback. Nil skips characters the
	// synthesizer cannot type.
	Clipboard             Clipboard
	ClipboardRestoreDelay time.Duration

	Logger *logging.Logger
}

// Inserter runs the strategy list.
type Inserter struct {
	strategies   []Strategy
	verifyDelay  time.Duration
	synth        Synthesizer
	clipboard    Clipboard
	restoreDelay time.Duration
	logger       *logging.Logger
}

// New builds an Inserter. With no strategies the defaults are used.
func New(opts Options) *Inserter {
	if len(opts.Strategies) == 0 {
		opts.Strategies = DefaultStrategies()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Inserter{
		strategies:   opts.Strategies,
		verifyDelay:  opts.VerifyDelay,
		synth:        opts.Synthesizer,
		clipboard:    opts.Clipboard,
		restoreDelay: opts.ClipboardRestoreDelay,
		logger:       logger.WithComponent("insert"),
	}
}

// Insert replaces the target word with replacement.
func (in *Inserter) Insert(ctx context.Context, h element.Handle, t Target, replacement string) error {
	_, err := in.InsertDetailed(ctx, h, t, replacement)
	return err
}

// InsertDetailed is Insert reporting which strategy succeeded.
func (in *Inserter) InsertDetailed(ctx context.Context, h element.Handle, t Target, replacement string) (Result, error) {
	if t.Range.Start < 0 || t.Range.End < t.Range.Start || textctx.Len16(t.Word) != t.Range.Len() {
		return Result{}, fmt.Errorf("%w: invalid target range %v", ErrInsertionFailed, t.Range)
	}

	var errs []error
	for _, s := range in.strategies {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		var (
			res Result
			err error
		)
		switch s {
		case StrategyStructured:
			err = in.structured(ctx, h, t, replacement)
		case StrategySynthesized:
			res, err = in.synthesized(ctx, h, t, replacement)
		default:
			err = fmt.Errorf("unknown strategy %v", s)
		}
		if err == nil {
			res.Strategy = s
			in.logger.Debug("inserted", "strategy", s.String(), "skipped_runes", res.SkippedRunes)
			return res, nil
		}
		in.logger.Debug("strategy failed", "strategy", s.String(), "error", err)
		if errors.Is(err, errWordChanged) {
			return Result{}, fmt.Errorf("%w: %s: %w", ErrInsertionFailed, s, err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", s, err))
	}
	return Result{}, fmt.Errorf("%w: %w", ErrInsertionFailed, errors.Join(errs...))
}

// structured splices the value and verifies by read-back.
func (in *Inserter) structured(ctx context.Context, h element.Handle, t Target, replacement string) error {
	text, err := element.StringAttr(ctx, h, element.AttrValue)
	if err != nil {
		return fmt.Errorf("read value: %w", err)
	}
	if cur, ok := textctx.Slice16(text, t.Range); !ok || cur != t.Word {
		return errWordChanged
	}
	updated, _ := textctx.Splice16(text, t.Range, replacement)

	if err := h.SetValue(ctx, updated); err != nil {
		return fmt.Errorf("set value: %w", err)
	}
	caret := element.Caret(t.Range.Start + textctx.Len16(replacement))
	if err := h.SetSelectedRange(ctx, caret); err != nil {
		in.logger.Debug("caret not moved", "error", err)
	}

	err = in.verify(ctx, h, text, updated)
	if errors.Is(err, errNoEffect) {
		// Put the caret back so synthesized input starts where the user
		// left it.
		_ = h.SetSelectedRange(ctx, element.Caret(t.Cursor))
	}
	return err
}

// verify reads the value back, once immediately and once after the verify
// delay for applications that apply writes asynchronously.
func (in *Inserter) verify(ctx context.Context, h element.Handle, before, want string) error {
	got, err := element.StringAttr(ctx, h, element.AttrValue)
	if err == nil && got == want {
		return nil
	}
	if in.verifyDelay > 0 {
		select {
		case <-time.After(in.verifyDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	got, err = element.StringAttr(ctx, h, element.AttrValue)
	switch {
	case err != nil:
		return fmt.Errorf("read back: %w", err)
	case got == want:
		return nil
	case got == before:
		return errNoEffect
	}
	// Neither the old nor the new value: another writer got there first.
	return errWordChanged
}

// synthesized deletes the word with key events and types the replacement.
// A failure after the word was deleted types the original back.
func (in *Inserter) synthesized(ctx context.Context, h element.Handle, t Target, replacement string) (Result, error) {
	if in.synth == nil {
		return Result{}, errNoKeyboard
	}
	selected, err := in.recheck(ctx, h, t)
	if err != nil {
		return Result{}, err
	}

	if selected {
		// One keypress replaces the whole selection.
		if err := in.synth.Backspace(1); err != nil {
			return Result{}, fmt.Errorf("backspace: %w", err)
		}
	} else {
		split := min(max(t.Cursor-t.Range.Start, 0), t.Range.Len())
		before, _ := textctx.Slice16(t.Word, element.Range{Start: 0, End: split})
		after, _ := textctx.Slice16(t.Word, element.Range{Start: split, End: t.Range.Len()})

		if n := uniseg.GraphemeClusterCount(before); n > 0 {
			if err := in.synth.Backspace(n); err != nil {
				return Result{}, fmt.Errorf("backspace: %w", err)
			}
		}
		if n := uniseg.GraphemeClusterCount(after); n > 0 {
			if err := in.synth.ForwardDelete(n); err != nil {
				return Result{}, in.rollback(fmt.Errorf("forward delete: %w", err), "", before)
			}
		}
	}

	typed, skipped, err := in.typeText(ctx, replacement)
	if err != nil {
		return Result{}, in.rollback(err, typed, t.Word)
	}
	return Result{SkippedRunes: skipped}, nil
}

// typeText types s, pasting runs the layout cannot produce. It returns
// what actually reached the element and how many runes were skipped.
func (in *Inserter) typeText(ctx context.Context, s string) (string, int, error) {
	var typed strings.Builder
	skipped := 0
	runes := []rune(s)
	for i := 0; i < len(runes); {
		if err := ctx.Err(); err != nil {
			return typed.String(), skipped, err
		}
		if in.synth.CanType(runes[i]) {
			if err := in.synth.TypeRune(runes[i]); err != nil {
				return typed.String(), skipped, fmt.Errorf("type %q: %w", runes[i], err)
			}
			typed.WriteRune(runes[i])
			i++
			continue
		}
		j := i
		for j < len(runes) && !in.synth.CanType(runes[j]) {
			j++
		}
		if err := in.paste(string(runes[i:j])); err != nil {
			in.logger.Warn("characters skipped", "count", j-i, "error", err)
			skipped += j - i
		} else {
			typed.WriteString(string(runes[i:j]))
		}
		i = j
	}
	return typed.String(), skipped, nil
}

// rollback removes typed and types original in its place, so a failed
// insertion leaves the text as it was. The caret ends after original.
func (in *Inserter) rollback(cause error, typed, original string) error {
	if n := uniseg.GraphemeClusterCount(typed); n > 0 {
		if err := in.synth.Backspace(n); err != nil {
			return fmt.Errorf("%w (rollback failed: %v)", cause, err)
		}
	}
	_, skipped, err := in.typeText(context.Background(), original)
	switch {
	case err != nil:
		return fmt.Errorf("%w (rollback failed: %v)", cause, err)
	case skipped > 0:
		return fmt.Errorf("%w (rollback skipped %d characters)", cause, skipped)
	}
	in.logger.Debug("synthesized input rolled back", "error", cause)
	return cause
}

// recheck confirms the word and caret are where extraction left them. It
// reports whether the word is selected rather than behind a caret. An
// element that exposes neither its value nor its selection cannot be
// checked and is refused.
func (in *Inserter) recheck(ctx context.Context, h element.Handle, t Target) (bool, error) {
	text, valueErr := element.StringAttr(ctx, h, element.AttrValue)
	if valueErr == nil {
		if cur, ok := textctx.Slice16(text, t.Range); !ok || cur != t.Word {
			return false, errWordChanged
		}
	}
	r, err := element.RangeAttr(ctx, h, element.AttrSelectedRange)
	switch {
	case err != nil && valueErr != nil:
		return false, errUnverifiable
	case err != nil:
		return false, nil
	case r == element.Caret(t.Cursor):
		return false, nil
	case r == t.Range && !r.IsEmpty():
		return true, nil
	}
	return false, errWordChanged
}

// paste inserts s through the clipboard and restores its previous content.
func (in *Inserter) paste(s string) error {
	if in.clipboard == nil {
		return errors.New("clipboard fallback disabled")
	}
	saved, err := in.clipboard.Read()
	if err != nil {
		return fmt.Errorf("read clipboard: %w", err)
	}
	if err := in.clipboard.Write(s); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	pasteErr := in.synth.Paste()
	if in.restoreDelay > 0 {
		time.Sleep(in.restoreDelay)
	}
	if err := in.clipboard.Write(saved); err != nil {
		in.logger.Warn("clipboard not restored", "error", err)
	}
	return pasteErr
}
