// Package orchestrator drives one completion cycle: locate the focused
// element, extract the word at the cursor, resolve completions, place and
// show the popup, and route the user's choice back into the element.
//
// A cycle's element handle lives until the cycle is selected, dismissed or
// superseded by a newer trigger. Insertion always uses that same handle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"wordfill/internal/cache"
	"wordfill/internal/display"
	"wordfill/internal/element"
	"wordfill/internal/geometry"
	"wordfill/internal/insert"
	"wordfill/internal/logging"
	"wordfill/internal/metrics"
	"wordfill/internal/placement"
	"wordfill/internal/textctx"
	"wordfill/internal/tracing"
)

// ErrUnknownCycle is returned for a selection on a cycle that is not the
// one currently shown.
var ErrUnknownCycle = errors.New("unknown or superseded cycle")

// Outcome is how a cycle ended.
type Outcome string

const (
	OutcomeShown         Outcome = "shown"
	OutcomeUnauthorized  Outcome = "unauthorized"
	OutcomeNoFocus       Outcome = "no_focus"
	OutcomeNoText        Outcome = "no_text"
	OutcomeNoWord        Outcome = "no_word"
	OutcomeNoCompletions Outcome = "no_completions"
	OutcomeNoCursor      Outcome = "no_cursor"
	OutcomeSuperseded    Outcome = "superseded"
	OutcomeCancelled     Outcome = "cancelled"
	OutcomeFailed        Outcome = "failed"
	OutcomeInserted      Outcome = "inserted"
	OutcomeInsertFailed  Outcome = "insert_failed"
	OutcomeDismissed     Outcome = "dismissed"
)

// Cycle is what the popup front-end needs to render one trigger.
type Cycle struct {
	ID          string
	Context     textctx.TextContext
	Completions []string
	Application string

	// Cursor is the anchor the popup was placed against. FromPointer is
	// set when it came from the PointerLocator rather than the caret.
	Cursor      geometry.Rect[geometry.BottomLeft]
	FromPointer bool

	Placement placement.Result
	Size      geometry.Size
	StartedAt time.Time
}

// Report summarises a trigger for callers that wait on it.
type Report struct {
	CycleID     string
	Outcome     Outcome
	Completions int
	Reason      string
}

// PlacementOptions are the popup geometry settings.
type PlacementOptions struct {
	Preference placement.Preference
	Size       geometry.Size
	Options    placement.Options
}

// Options wires an Orchestrator. Locator, Extractor, Resolver and Inserter
// are required.
type Options struct {
	Locator    element.Locator
	Extractor  Extractor
	Resolver   Resolver
	Inserter   Inserter
	Displays   display.Enumerator
	Authorizer display.Authorizer
	Presenter  Presenter
	Prompter   Prompter
	Pointer    PointerLocator
	Main       Executor

	Locale    string
	Placement PlacementOptions

	Metrics *metrics.Metrics
	Tracer  trace.Tracer
	Logger  *logging.Logger
}

type active struct {
	cycle  Cycle
	handle element.Handle
	target insert.Target
}

// Orchestrator runs trigger and selection cycles.
type Orchestrator struct {
	locator   element.Locator
	extractor Extractor
	resolver  Resolver
	inserter  Inserter
	displays  display.Enumerator
	auth      display.Authorizer
	presenter Presenter
	prompter  Prompter
	pointer   PointerLocator
	main      Executor

	metrics *metrics.Metrics
	tracer  trace.Tracer
	logger  *logging.Logger
	now     func() time.Time

	mu     sync.Mutex
	locale string
	place  PlacementOptions
	latest string
	active *active
}

// New validates opts and fills in defaults for the optional collaborators.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Locator == nil:
		return nil, errors.New("orchestrator: locator is required")
	case opts.Extractor == nil:
		return nil, errors.New("orchestrator: extractor is required")
	case opts.Resolver == nil:
		return nil, errors.New("orchestrator: resolver is required")
	case opts.Inserter == nil:
		return nil, errors.New("orchestrator: inserter is required")
	}

	o := &Orchestrator{
		locator:   opts.Locator,
		extractor: opts.Extractor,
		resolver:  opts.Resolver,
		inserter:  opts.Inserter,
		displays:  opts.Displays,
		auth:      opts.Authorizer,
		presenter: opts.Presenter,
		prompter:  opts.Prompter,
		pointer:   opts.Pointer,
		main:      opts.Main,
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		logger:    opts.Logger,
		now:       time.Now,
		locale:    opts.Locale,
		place:     opts.Placement,
	}
	if o.displays == nil {
		o.displays = display.Static(nil)
	}
	if o.auth == nil {
		o.auth = display.Fixed(true)
	}
	if o.presenter == nil {
		o.presenter = NopPresenter{}
	}
	if o.prompter == nil {
		o.prompter = NewOncePrompter(o.auth, nil)
	}
	if o.pointer == nil {
		o.pointer = ElementPointer{Reconciler: geometry.NewReconciler}
	}
	if o.main == nil {
		o.main = &Serial{}
	}
	if o.tracer == nil {
		o.tracer = (*tracing.Provider)(nil).Tracer()
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}
	o.logger = o.logger.WithComponent("orchestrator")
	if o.place.Size.W <= 0 || o.place.Size.H <= 0 {
		o.place.Size = geometry.Size{W: 240, H: 180}
	}
	if o.place.Options == (placement.Options{}) {
		o.place.Options = placement.DefaultOptions()
	}
	return o, nil
}

// SetPlacement replaces the popup geometry for future cycles.
func (o *Orchestrator) SetPlacement(p PlacementOptions) {
	o.mu.Lock()
	o.place = p
	o.mu.Unlock()
}

// SetLocale changes the locale passed to the resolver.
func (o *Orchestrator) SetLocale(locale string) {
	o.mu.Lock()
	o.locale = locale
	o.mu.Unlock()
}

// Active returns the cycle whose popup is showing.
func (o *Orchestrator) Active() (Cycle, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return Cycle{}, false
	}
	return o.active.cycle, true
}

// OnTrigger starts a new cycle, superseding any cycle still on screen.
// Expected failures end the cycle silently and are described in the
// report; the error is non-nil only when ctx ends the cycle.
func (o *Orchestrator) OnTrigger(ctx context.Context) (Report, error) {
	id := ulid.Make().String()
	start := o.now()
	logger := o.logger.WithRequestID(id)
	ctx = logging.ContextWithRequestID(ctx, id)
	ctx, span := o.tracer.Start(ctx, "trigger", trace.WithAttributes(tracing.AttrCycleID.String(id)))

	o.mu.Lock()
	o.latest = id
	o.mu.Unlock()
	o.main.Do(o.supersede)

	rep, err := o.run(ctx, id, start, logger)
	rep.CycleID = id

	span.SetAttributes(
		tracing.AttrOutcome.String(string(rep.Outcome)),
		tracing.AttrCompletions.Int(rep.Completions),
	)
	tracing.End(span, err)
	elapsed := o.now().Sub(start)
	o.metrics.Cycle(string(rep.Outcome), elapsed)
	logger.Debug("trigger finished",
		"outcome", rep.Outcome,
		"completions", rep.Completions,
		"reason", rep.Reason,
		"elapsed", elapsed,
	)
	return rep, err
}

// supersede closes the popup of the previous cycle. It runs on the main
// executor.
func (o *Orchestrator) supersede() {
	o.mu.Lock()
	prev := o.active
	o.active = nil
	o.mu.Unlock()
	if prev == nil {
		return
	}
	o.presenter.Dismiss(prev.cycle.ID, ReasonSuperseded)
	prev.handle.Release()
}

func (o *Orchestrator) stale(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latest != id
}

func (o *Orchestrator) run(ctx context.Context, id string, start time.Time, logger *logging.Logger) (Report, error) {
	var (
		h     element.Handle
		tc    textctx.TextContext
		abort *Report
		err   error
	)
	o.main.Do(func() {
		h, tc, abort, err = o.introspect(ctx, logger)
	})
	if abort != nil {
		return *abort, err
	}

	o.mu.Lock()
	locale, place := o.locale, o.place
	o.mu.Unlock()

	completions, err := o.resolve(ctx, tc.Word, locale, logger)
	if err != nil {
		h.Release()
		return o.fail(ctx, err, logger)
	}
	if o.stale(id) {
		h.Release()
		return Report{Outcome: OutcomeSuperseded}, nil
	}
	if len(completions) == 0 {
		h.Release()
		return Report{Outcome: OutcomeNoCompletions}, nil
	}

	displays, err := o.displays.Displays(ctx)
	if err != nil {
		logger.Debug("display enumeration failed", "error", err)
		displays = nil
	}

	c := Cycle{
		ID:          id,
		Context:     tc,
		Completions: completions,
		Application: h.Application(),
		Size:        place.Size,
		StartedAt:   start,
	}
	if tc.CursorRect != nil {
		c.Cursor = *tc.CursorRect
	} else {
		var ok bool
		o.main.Do(func() {
			c.Cursor, ok = o.pointer.PointerRect(ctx, h, tc, displays)
		})
		if !ok {
			h.Release()
			return Report{Outcome: OutcomeNoCursor, Reason: textctx.ErrCursorPositionUnavailable.Error()}, nil
		}
		c.FromPointer = true
	}

	_, span := o.tracer.Start(ctx, "place")
	c.Placement = placement.Compute(c.Cursor, place.Preference, place.Size, displays, place.Options)
	span.End()

	var superseded bool
	o.main.Do(func() {
		o.mu.Lock()
		if o.latest != id {
			o.mu.Unlock()
			superseded = true
			return
		}
		o.active = &active{
			cycle:  c,
			handle: h,
			target: insert.Target{Range: tc.ElementWordRange(), Word: tc.Word, Cursor: tc.ElementCursor()},
		}
		o.mu.Unlock()
		o.presenter.Show(c)
	})
	if superseded {
		h.Release()
		return Report{Outcome: OutcomeSuperseded}, nil
	}
	return Report{Outcome: OutcomeShown, Completions: len(completions)}, nil
}

// introspect checks authorization, locates the focused element and
// extracts its text. On a nil abort the caller owns h.
func (o *Orchestrator) introspect(ctx context.Context, logger *logging.Logger) (element.Handle, textctx.TextContext, *Report, error) {
	if !o.auth.IsIntrospectionAuthorized() {
		o.prompter.PromptOnce()
		return nil, textctx.TextContext{}, &Report{Outcome: OutcomeUnauthorized, Reason: element.ErrPermissionDenied.Error()}, nil
	}

	h, err := o.locator.LocateFocusedElement(ctx)
	if err != nil {
		rep, err := o.fail(ctx, err, logger)
		return nil, textctx.TextContext{}, &rep, err
	}

	ectx, span := o.tracer.Start(ctx, "extract", trace.WithAttributes(tracing.AttrApplication.String(h.Application())))
	tc, err := o.extractor.Extract(ectx, h)
	if err == nil {
		span.SetAttributes(
			tracing.AttrStrategy.String(tc.Strategy),
			tracing.AttrWordLength.Int(textctx.Len16(tc.Word)),
		)
	}
	tracing.End(span, err)
	if err != nil {
		h.Release()
		rep, err := o.fail(ctx, err, logger)
		return nil, textctx.TextContext{}, &rep, err
	}
	if !tc.HasWord() {
		h.Release()
		return nil, textctx.TextContext{}, &Report{Outcome: OutcomeNoWord}, nil
	}
	return h, tc, nil, nil
}

// resolve asks the resolver off the main executor. An unavailable
// suggestion service counts as no completions.
func (o *Orchestrator) resolve(ctx context.Context, word, locale string, logger *logging.Logger) ([]string, error) {
	rctx, span := o.tracer.Start(ctx, "resolve")
	out, err := o.resolver.Resolve(rctx, word, locale)
	if errors.Is(err, cache.ErrSuggestionServiceUnavailable) && ctx.Err() == nil {
		logger.Debug("suggestion service unavailable", "error", err)
		span.AddEvent("service unavailable")
		out, err = nil, nil
	}
	span.SetAttributes(tracing.AttrCompletions.Int(len(out)))
	tracing.End(span, err)
	return out, err
}

// fail maps an error to the outcome the user sees, which is nothing except
// for a first permission refusal.
func (o *Orchestrator) fail(ctx context.Context, err error, logger *logging.Logger) (Report, error) {
	rep := Report{Reason: err.Error()}
	switch {
	case ctx.Err() != nil:
		rep.Outcome = OutcomeCancelled
		return rep, ctx.Err()
	case element.IsPermissionDenied(err):
		rep.Outcome = OutcomeUnauthorized
		o.prompter.PromptOnce()
	case errors.Is(err, element.ErrNoFocusedElement):
		rep.Outcome = OutcomeNoFocus
	case errors.Is(err, textctx.ErrTextExtractionFailed):
		rep.Outcome = OutcomeNoText
	default:
		rep.Outcome = OutcomeFailed
		logger.Warn("trigger failed", "error", err)
	}
	return rep, nil
}

// OnSelection finishes cycleID. A nil completion dismisses the popup; any
// other value is written into the cycle's element. The handle is released
// either way.
func (o *Orchestrator) OnSelection(ctx context.Context, cycleID string, completion *string) (insert.Result, error) {
	o.mu.Lock()
	a := o.active
	if a == nil || a.cycle.ID != cycleID {
		o.mu.Unlock()
		return insert.Result{}, fmt.Errorf("%w: %s", ErrUnknownCycle, cycleID)
	}
	o.active = nil
	o.mu.Unlock()

	logger := o.logger.WithRequestID(cycleID)
	if completion == nil {
		o.main.Do(func() {
			o.presenter.Dismiss(cycleID, ReasonDismissed)
			a.handle.Release()
		})
		o.metrics.Cycle(string(OutcomeDismissed), 0)
		logger.Debug("cycle dismissed")
		return insert.Result{}, nil
	}

	ctx = logging.ContextWithRequestID(ctx, cycleID)
	ctx, span := o.tracer.Start(ctx, "insert", trace.WithAttributes(tracing.AttrCycleID.String(cycleID)))

	var (
		res insert.Result
		err error
	)
	o.main.Do(func() {
		defer a.handle.Release()
		res, err = o.inserter.InsertDetailed(ctx, a.handle, a.target, *completion)
		if err != nil {
			o.presenter.Failed(cycleID, err)
			return
		}
		o.presenter.Inserted(cycleID, res)
	})

	strategy := ""
	outcome := OutcomeInsertFailed
	if err == nil {
		strategy = res.Strategy.String()
		outcome = OutcomeInserted
		span.SetAttributes(tracing.AttrStrategy.String(strategy))
	}
	span.SetAttributes(tracing.AttrOutcome.String(string(outcome)))
	tracing.End(span, err)
	o.metrics.Insert(strategy, err == nil, res.SkippedRunes)
	o.metrics.Cycle(string(outcome), 0)

	if err != nil {
		logger.Info("insertion failed", "error", err)
		return res, err
	}
	logger.Debug("completion inserted", "strategy", strategy, "skipped_runes", res.SkippedRunes)
	return res, nil
}

// Dismiss closes cycleID without inserting.
func (o *Orchestrator) Dismiss(ctx context.Context, cycleID string) error {
	_, err := o.OnSelection(ctx, cycleID, nil)
	return err
}

// Close releases the handle of the cycle on screen, if any.
func (o *Orchestrator) Close() {
	o.main.Do(o.supersede)
}
