package orchestrator

import (
	"context"
	"sync"

	"wordfill/internal/display"
	"wordfill/internal/element"
	"wordfill/internal/geometry"
	"wordfill/internal/insert"
	"wordfill/internal/textctx"
)

// Extractor reads a TextContext from a handle.
type Extractor interface {
	Extract(ctx context.Context, h element.Handle) (textctx.TextContext, error)
}

// Resolver turns a word into completions.
type Resolver interface {
	Resolve(ctx context.Context, word, locale string) ([]string, error)
}

// Inserter writes a chosen completion into the element.
type Inserter interface {
	InsertDetailed(ctx context.Context, h element.Handle, t insert.Target, replacement string) (insert.Result, error)
}

// Presenter is the popup front-end. Calls arrive on the main executor.
type Presenter interface {
	Show(c Cycle)
	Dismiss(cycleID, reason string)
	Inserted(cycleID string, r insert.Result)
	Failed(cycleID string, err error)
}

// Dismiss reasons.
const (
	ReasonSuperseded = "superseded"
	ReasonDismissed  = "dismissed"
)

// NopPresenter shows nothing.
type NopPresenter struct{}

func (NopPresenter) Show(Cycle)                     {}
func (NopPresenter) Dismiss(string, string)         {}
func (NopPresenter) Inserted(string, insert.Result) {}
func (NopPresenter) Failed(string, error)           {}

// Prompter asks the user for introspection access at most once per
// process.
type Prompter interface {
	PromptOnce()
}

// OncePrompter prompts through an Authorizer the first time it is asked
// and reports the answer to notify.
type OncePrompter struct {
	auth   display.Authorizer
	notify func(granted bool)
	once   sync.Once
}

// NewOncePrompter wraps auth. notify may be nil.
func NewOncePrompter(auth display.Authorizer, notify func(granted bool)) *OncePrompter {
	return &OncePrompter{auth: auth, notify: notify}
}

func (p *OncePrompter) PromptOnce() {
	p.once.Do(func() {
		granted := p.auth.Prompt()
		if p.notify != nil {
			p.notify(granted)
		}
	})
}

// PointerLocator supplies an anchor rectangle when the element cannot
// report its caret.
type PointerLocator interface {
	PointerRect(ctx context.Context, h element.Handle, tc textctx.TextContext, displays []geometry.DisplayInfo) (geometry.Rect[geometry.BottomLeft], bool)
}

// ElementPointer anchors on the bounds of the whole word, then on the
// centre of the primary display.
type ElementPointer struct {
	Reconciler func(displays []geometry.DisplayInfo) geometry.Reconciler
}

func (p ElementPointer) PointerRect(ctx context.Context, h element.Handle, tc textctx.TextContext, displays []geometry.DisplayInfo) (geometry.Rect[geometry.BottomLeft], bool) {
	if p.Reconciler != nil && len(displays) > 0 && !tc.WordRange.IsEmpty() {
		if r, err := h.BoundsForRange(ctx, tc.ElementWordRange()); err == nil && !r.IsZero() {
			return p.Reconciler(displays).ToDisplaySpace(r), true
		}
	}
	d, ok := geometry.Primary(displays)
	if !ok {
		return geometry.Rect[geometry.BottomLeft]{}, false
	}
	c := d.Usable().Center()
	return geometry.Rect[geometry.BottomLeft]{X: c.X, Y: c.Y}, true
}
