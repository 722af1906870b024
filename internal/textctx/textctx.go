// Package textctx extracts a snapshot of the focused element's text, the
// word under the cursor and where the cursor is on screen.
package textctx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wordfill/internal/element"
	"wordfill/internal/geometry"
	"wordfill/internal/logging"
)

var (
	ErrTextExtractionFailed      = errors.New("text extraction failed")
	ErrCursorPositionUnavailable = errors.New("cursor position unavailable")
)

// ExtractionError lists why each strategy failed.
type ExtractionError struct {
	Reasons []string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%v: %s", ErrTextExtractionFailed, strings.Join(e.Reasons, "; "))
}

func (e *ExtractionError) Is(target error) bool {
	return target == ErrTextExtractionFailed
}

// TextContext is one snapshot of a focused element. All offsets are UTF-16
// code units relative to FullText.
type TextContext struct {
	FullText     string
	SelectedText *string
	CursorOffset int
	WordRange    element.Range
	Word         string

	// CursorRect is the caret in window-manager space, nil when the
	// element could not report it.
	CursorRect *geometry.Rect[geometry.BottomLeft]

	// BaseOffset locates FullText inside the element's value. It is
	// non-zero when a long value was windowed or when the text came from
	// the selection alone.
	BaseOffset int

	Strategy    string
	Application string
}

// HasWord reports whether a word touches the cursor.
func (c TextContext) HasWord() bool {
	return c.Word != "" && !c.WordRange.IsEmpty()
}

// ElementWordRange is WordRange in element value offsets.
func (c TextContext) ElementWordRange() element.Range {
	return c.WordRange.Shift(c.BaseOffset)
}

// ElementCursor is CursorOffset in element value offsets.
func (c TextContext) ElementCursor() int {
	return c.CursorOffset + c.BaseOffset
}

// Partial is what a single strategy recovers.
type Partial struct {
	Text     string
	Selected *string
	Cursor   int
	Base     int
}

// Strategy reads text from an element one particular way. Failures are
// ordinary; the next strategy is tried.
type Strategy struct {
	Name    string
	Extract func(ctx context.Context, h element.Handle) (Partial, error)
}

// ReconcilerFunc supplies the coordinate reconciler for the current
// display layout.
type ReconcilerFunc func(ctx context.Context) (geometry.Reconciler, error)

// Options configures an Extractor.
type Options struct {
	Strategies    []Strategy
	MaxTextLength int
	Reconciler    ReconcilerFunc
	Logger        *logging.Logger
}

// Extractor runs the strategy list against a handle.
type Extractor struct {
	strategies []Strategy
	maxLen     int
	reconciler ReconcilerFunc
	logger     *logging.Logger
}

// DefaultMaxTextLength bounds the text kept around the cursor.
const DefaultMaxTextLength = 1 << 20

// NewExtractor builds an extractor. With no strategies the defaults are
// used.
func NewExtractor(opts Options) *Extractor {
	if len(opts.Strategies) == 0 {
		opts.Strategies = DefaultStrategies()
	}
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = DefaultMaxTextLength
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Extractor{
		strategies: opts.Strategies,
		maxLen:     opts.MaxTextLength,
		reconciler: opts.Reconciler,
		logger:     logger.WithComponent("textctx"),
	}
}

// Strategies returns the names of the configured strategies in order.
func (e *Extractor) Strategies() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name
	}
	return names
}

// Extract builds a TextContext from the first strategy that yields text.
func (e *Extractor) Extract(ctx context.Context, h element.Handle) (TextContext, error) {
	var reasons []string
	for _, s := range e.strategies {
		if err := ctx.Err(); err != nil {
			return TextContext{}, err
		}
		p, err := s.Extract(ctx, h)
		if err == nil && p.Text == "" {
			err = errors.New("empty")
		}
		if err != nil {
			if element.IsPermissionDenied(err) {
				return TextContext{}, err
			}
			e.logger.Debug("strategy failed", "strategy", s.Name, "error", err)
			reasons = append(reasons, fmt.Sprintf("%s: %v", s.Name, err))
			continue
		}
		return e.build(ctx, h, s.Name, p), nil
	}
	return TextContext{}, &ExtractionError{Reasons: reasons}
}

func (e *Extractor) build(ctx context.Context, h element.Handle, strategy string, p Partial) TextContext {
	text, cursor, cut := window(p.Text, clamp(p.Cursor, 0, Len16(p.Text)), e.maxLen)
	wr, word := WordAt(text, cursor)

	tc := TextContext{
		FullText:     text,
		SelectedText: p.Selected,
		CursorOffset: cursor,
		WordRange:    wr,
		Word:         word,
		BaseOffset:   p.Base + cut,
		Strategy:     strategy,
		Application:  h.Application(),
	}

	rect, err := e.cursorRect(ctx, h, tc.ElementCursor())
	if err != nil {
		e.logger.Debug("cursor rect unavailable", "error", err)
	} else {
		tc.CursorRect = &rect
	}
	return tc
}

// cursorRect asks for the bounds of the character before the caret, or an
// empty range at the start of the text.
func (e *Extractor) cursorRect(ctx context.Context, h element.Handle, cursor int) (geometry.Rect[geometry.BottomLeft], error) {
	if e.reconciler == nil {
		return geometry.Rect[geometry.BottomLeft]{}, ErrCursorPositionUnavailable
	}
	r := element.Caret(cursor)
	if cursor > 0 {
		r = element.Range{Start: cursor - 1, End: cursor}
	}
	raw, err := h.BoundsForRange(ctx, r)
	if err != nil {
		return geometry.Rect[geometry.BottomLeft]{}, fmt.Errorf("%w: %w", ErrCursorPositionUnavailable, err)
	}
	if raw.IsZero() {
		return geometry.Rect[geometry.BottomLeft]{}, ErrCursorPositionUnavailable
	}
	rec, err := e.reconciler(ctx)
	if err != nil {
		return geometry.Rect[geometry.BottomLeft]{}, fmt.Errorf("%w: %w", ErrCursorPositionUnavailable, err)
	}
	return rec.ToDisplaySpace(raw), nil
}
