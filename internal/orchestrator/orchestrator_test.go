package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordfill/internal/cache"
	"wordfill/internal/display"
	"wordfill/internal/element"
	"wordfill/internal/element/elementtest"
	"wordfill/internal/geometry"
	"wordfill/internal/insert"
	"wordfill/internal/placement"
	"wordfill/internal/suggest"
	"wordfill/internal/textctx"
)

var fullHD = display.Static{{
	ID:        "main",
	Frame:     geometry.Rect[geometry.BottomLeft]{W: 1920, H: 1080},
	IsPrimary: true,
}}

type recordingPresenter struct {
	mu        sync.Mutex
	shown     []Cycle
	dismissed []string
	reasons   []string
	inserted  []insert.Result
	failed    []error
}

func (p *recordingPresenter) Show(c Cycle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = append(p.shown, c)
}

func (p *recordingPresenter) Dismiss(id, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dismissed = append(p.dismissed, id)
	p.reasons = append(p.reasons, reason)
}

func (p *recordingPresenter) Inserted(id string, r insert.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inserted = append(p.inserted, r)
}

func (p *recordingPresenter) Failed(id string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, err)
}

type countingAuthorizer struct {
	mu         sync.Mutex
	authorized bool
	prompts    int
}

func (a *countingAuthorizer) IsIntrospectionAuthorized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authorized
}

func (a *countingAuthorizer) Prompt() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prompts++
	return a.authorized
}

type fixture struct {
	orch      *Orchestrator
	locator   *elementtest.Locator
	presenter *recordingPresenter
	auth      *countingAuthorizer
}

func newFixture(t *testing.T, h element.Handle, svc suggest.Service, mutate func(*Options)) *fixture {
	t.Helper()
	c, err := cache.New(svc, cache.DefaultConfig())
	require.NoError(t, err)

	f := &fixture{
		locator:   &elementtest.Locator{Handle: h},
		presenter: &recordingPresenter{},
		auth:      &countingAuthorizer{authorized: true},
	}
	opts := Options{
		Locator: f.locator,
		Extractor: textctx.NewExtractor(textctx.Options{
			Reconciler: func(context.Context) (geometry.Reconciler, error) {
				return geometry.NewReconciler(fullHD), nil
			},
		}),
		Resolver:   c,
		Inserter:   insert.New(insert.Options{Strategies: []insert.Strategy{insert.StrategyStructured}}),
		Displays:   fullHD,
		Authorizer: f.auth,
		Presenter:  f.presenter,
		Locale:     "en",
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.orch, err = New(opts)
	require.NoError(t, err)
	return f
}

func heloService() suggest.Service {
	return suggest.Func(func(ctx context.Context, word, locale string) ([]string, error) {
		if word == "helo" {
			return []string{"hello", "help"}, nil
		}
		return nil, nil
	})
}

func heloHandle() *elementtest.Handle {
	return elementtest.New("please say helo", 15).
		WithBounds(geometry.Rect[geometry.TopLeft]{X: 10, Y: 10, W: 2, H: 14})
}

func TestTriggerShowsPopup(t *testing.T) {
	h := heloHandle()
	f := newFixture(t, h, heloService(), nil)

	rep, err := f.orch.OnTrigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeShown, rep.Outcome)
	assert.Equal(t, 2, rep.Completions)
	assert.NotEmpty(t, rep.CycleID)

	require.Len(t, f.presenter.shown, 1)
	c := f.presenter.shown[0]
	assert.Equal(t, rep.CycleID, c.ID)
	assert.Equal(t, []string{"hello", "help"}, c.Completions)
	assert.Equal(t, "helo", c.Context.Word)
	assert.False(t, c.FromPointer)
	assert.Equal(t, geometry.Rect[geometry.BottomLeft]{X: 10, Y: 1056, W: 2, H: 14}, c.Cursor)

	// Below the caret, inside the display.
	assert.Equal(t, geometry.Point[geometry.BottomLeft]{X: 10, Y: 872}, c.Placement.Origin)
	assert.False(t, c.Placement.Above)
	frame := c.Placement.Frame(c.Size)
	assert.True(t, fullHD[0].Frame.ContainsRect(frame))
	assert.LessOrEqual(t, frame.MaxY(), c.Cursor.MinY())

	active, ok := f.orch.Active()
	require.True(t, ok)
	assert.Equal(t, rep.CycleID, active.ID)
	assert.False(t, h.Released())
}

func TestSelectionInsertsWithSameHandle(t *testing.T) {
	h := heloHandle()
	f := newFixture(t, h, heloService(), nil)
	rep, err := f.orch.OnTrigger(context.Background())
	require.NoError(t, err)

	// Focus moves elsewhere before the user picks.
	f.locator.Set(elementtest.New("other field", 5), nil)

	choice := "hello"
	res, err := f.orch.OnSelection(context.Background(), rep.CycleID, &choice)
	require.NoError(t, err)
	assert.Equal(t, insert.StrategyStructured, res.Strategy)
	assert.Equal(t, "please say hello", h.Text())
	assert.True(t, h.Released())
	require.Len(t, f.presenter.inserted, 1)

	_, ok := f.orch.Active()
	assert.False(t, ok)

	_, err = f.orch.OnSelection(context.Background(), rep.CycleID, &choice)
	assert.ErrorIs(t, err, ErrUnknownCycle)
}

func TestSelectionUnknownCycle(t *testing.T) {
	f := newFixture(t, heloHandle(), heloService(), nil)
	choice := "hello"
	_, err := f.orch.OnSelection(context.Background(), "01NOPE", &choice)
	assert.ErrorIs(t, err, ErrUnknownCycle)
}

func TestDismissLeavesTextAlone(t *testing.T) {
	h := heloHandle()
	f := newFixture(t, h, heloService(), nil)
	rep, err := f.orch.OnTrigger(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.orch.Dismiss(context.Background(), rep.CycleID))
	assert.Equal(t, "please say helo", h.Text())
	assert.Empty(t, h.Writes())
	assert.True(t, h.Released())
	assert.Equal(t, []string{ReasonDismissed}, f.presenter.reasons)
}

func TestInsertionFailureIsReported(t *testing.T) {
	h := heloHandle().WithWriteMode(elementtest.WriteReject)
	f := newFixture(t, h, heloService(), nil)
	rep, err := f.orch.OnTrigger(context.Background())
	require.NoError(t, err)

	choice := "hello"
	_, err = f.orch.OnSelection(context.Background(), rep.CycleID, &choice)
	assert.ErrorIs(t, err, insert.ErrInsertionFailed)
	assert.Equal(t, "please say helo", h.Text())
	require.Len(t, f.presenter.failed, 1)
	assert.Empty(t, f.presenter.inserted)
	assert.True(t, h.Released())
}

func TestUnauthorizedPromptsOnce(t *testing.T) {
	f := newFixture(t, heloHandle(), heloService(), nil)
	f.auth.authorized = false

	for range 3 {
		rep, err := f.orch.OnTrigger(context.Background())
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnauthorized, rep.Outcome)
	}
	assert.Equal(t, 1, f.auth.prompts)
	assert.Equal(t, 0, f.locator.Calls())
	assert.Empty(t, f.presenter.shown)
}

func TestPermissionDeniedByLocator(t *testing.T) {
	f := newFixture(t, nil, heloService(), nil)
	f.locator.Set(nil, &element.Error{Op: "locate", Kind: element.ErrPermissionDenied})

	for range 2 {
		rep, err := f.orch.OnTrigger(context.Background())
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnauthorized, rep.Outcome)
	}
	assert.Equal(t, 1, f.auth.prompts)
}

func TestSilentAborts(t *testing.T) {
	empty := suggest.Func(func(context.Context, string, string) ([]string, error) { return nil, nil })
	down := suggest.Func(func(context.Context, string, string) ([]string, error) {
		return nil, errors.New("service down")
	})

	tests := []struct {
		name   string
		handle *elementtest.Handle
		svc    suggest.Service
		want   Outcome
	}{
		{"no focus", nil, heloService(), OutcomeNoFocus},
		{"no text", &elementtest.Handle{}, heloService(), OutcomeNoText},
		{"no word", elementtest.New("please ", 7), heloService(), OutcomeNoWord},
		{"no completions", heloHandle(), empty, OutcomeNoCompletions},
		{"service unavailable", heloHandle(), down, OutcomeNoCompletions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h element.Handle
			if tt.handle != nil {
				h = tt.handle
			}
			f := newFixture(t, h, tt.svc, nil)

			rep, err := f.orch.OnTrigger(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, rep.Outcome)
			assert.Empty(t, f.presenter.shown)
			assert.Empty(t, f.auth.prompts)
			if tt.handle != nil {
				assert.True(t, tt.handle.Released())
				assert.Empty(t, tt.handle.Writes())
			}
			_, ok := f.orch.Active()
			assert.False(t, ok)
		})
	}
}

func TestCancelledTrigger(t *testing.T) {
	f := newFixture(t, heloHandle(), heloService(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := f.orch.OnTrigger(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeCancelled, rep.Outcome)
}

func TestNewTriggerSupersedesPopup(t *testing.T) {
	first := heloHandle()
	f := newFixture(t, first, heloService(), nil)
	rep1, err := f.orch.OnTrigger(context.Background())
	require.NoError(t, err)

	second := heloHandle()
	f.locator.Set(second, nil)
	rep2, err := f.orch.OnTrigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeShown, rep2.Outcome)

	assert.Equal(t, []string{rep1.CycleID}, f.presenter.dismissed)
	assert.Equal(t, []string{ReasonSuperseded}, f.presenter.reasons)
	assert.True(t, first.Released())
	assert.False(t, second.Released())
	assert.Len(t, f.presenter.shown, 2)

	choice := "hello"
	_, err = f.orch.OnSelection(context.Background(), rep1.CycleID, &choice)
	assert.ErrorIs(t, err, ErrUnknownCycle)
	assert.Equal(t, "please say helo", first.Text())
}

// blockingResolver parks the first resolution until release is closed.
type blockingResolver struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *blockingResolver) Resolve(ctx context.Context, word, locale string) ([]string, error) {
	first := false
	r.once.Do(func() { first = true })
	if first {
		close(r.entered)
		<-r.release
	}
	return []string{word + "p"}, nil
}

func TestStaleResolutionIsDiscarded(t *testing.T) {
	res := &blockingResolver{entered: make(chan struct{}), release: make(chan struct{})}
	first := heloHandle()
	f := newFixture(t, first, nil, func(o *Options) { o.Resolver = res })

	type result struct {
		rep Report
		err error
	}
	done := make(chan result, 1)
	go func() {
		rep, err := f.orch.OnTrigger(context.Background())
		done <- result{rep, err}
	}()

	select {
	case <-res.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first trigger never reached the resolver")
	}

	second := elementtest.New("say wor", 7).
		WithBounds(geometry.Rect[geometry.TopLeft]{X: 100, Y: 100, W: 2, H: 14})
	f.locator.Set(second, nil)
	rep2, err := f.orch.OnTrigger(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeShown, rep2.Outcome)

	close(res.release)
	var r1 result
	select {
	case r1 = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first trigger did not finish")
	}
	require.NoError(t, r1.err)
	assert.Equal(t, OutcomeSuperseded, r1.rep.Outcome)
	assert.True(t, first.Released())
	assert.False(t, second.Released())

	require.Len(t, f.presenter.shown, 1)
	assert.Equal(t, rep2.CycleID, f.presenter.shown[0].ID)
	active, ok := f.orch.Active()
	require.True(t, ok)
	assert.Equal(t, rep2.CycleID, active.ID)
}

func TestCursorFallsBackToPointer(t *testing.T) {
	h := elementtest.New("please say helo", 15)
	f := newFixture(t, h, heloService(), nil)

	rep, err := f.orch.OnTrigger(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeShown, rep.Outcome)

	c := f.presenter.shown[0]
	assert.True(t, c.FromPointer)
	assert.Equal(t, geometry.Rect[geometry.BottomLeft]{X: 960, Y: 540}, c.Cursor)
}

func TestNoCursorWithoutDisplays(t *testing.T) {
	h := elementtest.New("please say helo", 15)
	f := newFixture(t, h, heloService(), func(o *Options) { o.Displays = display.Static(nil) })

	rep, err := f.orch.OnTrigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoCursor, rep.Outcome)
	assert.True(t, h.Released())
}

func TestPlacementPreferenceUpdates(t *testing.T) {
	f := newFixture(t, heloHandle(), heloService(), nil)
	p := f.orch.place
	p.Preference = placement.Above
	f.orch.SetPlacement(p)

	_, err := f.orch.OnTrigger(context.Background())
	require.NoError(t, err)

	// The caret sits at the top of the display, so "above" cannot fit.
	c := f.presenter.shown[0]
	assert.True(t, c.Placement.Flipped)
	assert.False(t, c.Placement.Above)
	assert.LessOrEqual(t, c.Placement.Frame(c.Size).MaxY(), c.Cursor.MinY())
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestOncePrompter(t *testing.T) {
	auth := &countingAuthorizer{authorized: true}
	var got []bool
	p := NewOncePrompter(auth, func(granted bool) { got = append(got, granted) })
	p.PromptOnce()
	p.PromptOnce()
	assert.Equal(t, 1, auth.prompts)
	assert.Equal(t, []bool{true}, got)
}

func TestMainThreadExecutor(t *testing.T) {
	m := NewMainThread()
	var order []int
	for i := range 5 {
		m.Do(func() { order = append(order, i) })
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)

	m.Close()
	ran := false
	m.Do(func() { ran = true })
	assert.True(t, ran)
}
