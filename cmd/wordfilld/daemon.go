package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"wordfill/internal/cache"
	"wordfill/internal/config"
	"wordfill/internal/display"
	"wordfill/internal/element"
	"wordfill/internal/geometry"
	"wordfill/internal/health"
	"wordfill/internal/insert"
	"wordfill/internal/ipc"
	"wordfill/internal/logging"
	"wordfill/internal/metrics"
	"wordfill/internal/orchestrator"
	"wordfill/internal/placement"
	"wordfill/internal/suggest"
	"wordfill/internal/textctx"
	"wordfill/internal/tracing"
)

// platform holds the OS-facing collaborators. Tests substitute fakes.
type platform struct {
	Locator       element.Locator
	Displays      display.Enumerator
	Authorizer    display.Authorizer
	ReconcilerFor func([]geometry.DisplayInfo) geometry.Reconciler
	System        func() (suggest.Service, error)
	Synthesizer   func(delay time.Duration) (insert.Synthesizer, error)
	Clipboard     func() (insert.Clipboard, error)
	Main          orchestrator.Executor
}

// displayTTL bounds how long a display layout is reused between triggers.
const displayTTL = 2 * time.Second

func nativePlatform(logger *logging.Logger) platform {
	opts := element.DefaultOptions()
	opts.Logger = logger
	return platform{
		Locator:       element.NewLocator(opts),
		Displays:      display.NewCached(display.NewEnumerator(), displayTTL),
		Authorizer:    display.NewAuthorizer(),
		ReconcilerFor: display.ReconcilerFor,
		System:        suggest.System,
		Synthesizer:   insert.NewKeyboard,
		Clipboard: func() (insert.Clipboard, error) {
			cb, err := insert.NewSystemClipboard()
			if err != nil {
				return nil, err
			}
			return cb, nil
		},
		Main: orchestrator.NewMainThread(),
	}
}

// daemon owns every long-lived component and answers IPC requests.
type daemon struct {
	version    string
	configPath string
	platform   platform
	logger     *logging.Logger

	cache   *cache.Cache
	orch    *orchestrator.Orchestrator
	metrics *metrics.Metrics
	tracing *tracing.Provider
	server  *ipc.Server
	health  *health.Checker
	loader  *config.Loader
	crash   *logging.CrashHandler

	// levelOverride pins the log level given on the command line.
	levelOverride string

	mu        sync.Mutex
	cfg       *config.Config
	providers []string
	ctx       context.Context
	startedAt time.Time
}

func newDaemon(ctx context.Context, cfg *config.Config, p platform, logger *logging.Logger) (*daemon, error) {
	d := &daemon{
		version:   version,
		platform:  p,
		logger:    logger,
		cfg:       cfg,
		ctx:       ctx,
		startedAt: time.Now(),
		metrics:   metrics.New(),
		health:    health.NewChecker(),
	}

	tp, err := tracing.New(cfg.Tracing, "wordfilld")
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	d.tracing = tp

	svc, names := buildService(ctx, cfg.Suggest, p.System, logger)
	if svc == nil {
		logger.Warn("no suggestion provider loaded; triggers will find no completions")
	}
	d.providers = names

	d.cache, err = cache.New(svc, cache.Config{
		MaxEntries:         cfg.Cache.MaxEntries,
		MaxBytes:           cfg.Cache.MaxBytes,
		SuggestTimeout:     cfg.SuggestTimeout(),
		PreloadConcurrency: cfg.Preload.Concurrency,
		PreloadRate:        cfg.Preload.RatePerSec,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	d.cache.SetObserver(d.metrics)

	strategies, err := textctx.StrategiesByName(cfg.Extract.Strategies)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	extractor := textctx.NewExtractor(textctx.Options{
		Strategies:    strategies,
		MaxTextLength: cfg.Extract.MaxTextLength,
		Reconciler:    d.reconciler,
		Logger:        logger,
	})

	inserter, err := d.newInserter(cfg.Insert)
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}

	place, err := placementOptions(cfg.Placement)
	if err != nil {
		return nil, err
	}

	d.orch, err = orchestrator.New(orchestrator.Options{
		Locator:    p.Locator,
		Extractor:  extractor,
		Resolver:   d.cache,
		Inserter:   inserter,
		Displays:   p.Displays,
		Authorizer: p.Authorizer,
		Presenter:  &ipcPresenter{broadcast: d.broadcast, logger: logger},
		Prompter:   orchestrator.NewOncePrompter(p.Authorizer, d.permissionChanged),
		Pointer:    orchestrator.ElementPointer{Reconciler: p.ReconcilerFor},
		Main:       p.Main,
		Locale:     cfg.Suggest.Locale,
		Placement:  place,
		Metrics:    d.metrics,
		Tracer:     tp.Tracer(),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	d.server = ipc.NewServer(ipc.ServerConfig{
		SocketPath:     cfg.IPC.SocketPath,
		SocketMode:     cfg.SocketMode(),
		Version:        version,
		ReadTimeout:    cfg.IPCTimeout(),
		WriteTimeout:   5 * time.Second,
		MaxConnections: cfg.IPC.MaxConnections,
	}, ipc.NewDaemonHandler(d, logger), logger)
	d.registerHealth()
	return d, nil
}

func (d *daemon) reconciler(ctx context.Context) (geometry.Reconciler, error) {
	displays, err := d.platform.Displays.Displays(ctx)
	if err != nil {
		return geometry.Reconciler{}, err
	}
	return d.platform.ReconcilerFor(displays), nil
}

func (d *daemon) newInserter(cfg config.InsertConfig) (*insert.Inserter, error) {
	strategies, err := insert.ParseStrategies(cfg.Strategies)
	if err != nil {
		return nil, err
	}
	opts := insert.Options{
		Strategies:            strategies,
		VerifyDelay:           time.Duration(cfg.VerifyDelayMs) * time.Millisecond,
		ClipboardRestoreDelay: time.Duration(cfg.ClipboardRestoreMs) * time.Millisecond,
		Logger:                d.logger,
	}
	if slices.Contains(strategies, insert.StrategySynthesized) && d.platform.Synthesizer != nil {
		synth, err := d.platform.Synthesizer(time.Duration(cfg.KeyDelayMs) * time.Millisecond)
		if err != nil {
			d.logger.Warn("key synthesis unavailable", "error", err)
		} else {
			opts.Synthesizer = synth
		}
	}
	if cfg.ClipboardFallback && opts.Synthesizer != nil && d.platform.Clipboard != nil {
		cb, err := d.platform.Clipboard()
		if err != nil {
			d.logger.Warn("clipboard unavailable", "error", err)
		} else {
			opts.Clipboard = cb
		}
	}
	return insert.New(opts), nil
}

func placementOptions(cfg config.PlacementConfig) (orchestrator.PlacementOptions, error) {
	pref, err := placement.ParsePreference(cfg.Preference)
	if err != nil {
		return orchestrator.PlacementOptions{}, fmt.Errorf("placement: %w", err)
	}
	return orchestrator.PlacementOptions{
		Preference: pref,
		Size:       geometry.Size{W: cfg.PopupWidth, H: cfg.PopupHeight},
		Options:    placement.Options{Margin: cfg.Margin, Inset: cfg.Inset},
	}, nil
}

// start opens the control socket and launches the background work.
func (d *daemon) start() error {
	if err := d.server.Start(); err != nil {
		return fmt.Errorf("start ipc server: %w", err)
	}
	d.health.SetReady(true)
	d.logger.Info("daemon started",
		"socket", d.server.SocketPath(),
		"providers", d.providers,
		"version", d.version,
	)

	cfg := d.config()
	if cfg.Metrics.Enabled {
		go func() {
			if err := d.metrics.Serve(d.ctx, cfg.Metrics.Listen, d.logger, d.healthRoutes()...); err != nil {
				d.logger.Error("metrics listener failed", "listen", cfg.Metrics.Listen, "error", err)
			}
		}()
	}
	if cfg.Preload.Enabled {
		d.background(func() { d.preload(cfg) })
	}
	return nil
}

func (d *daemon) preload(cfg *config.Config) {
	words, err := seedWords(cfg.Preload.WordsFile)
	if err != nil {
		d.logger.Warn("preload skipped", "error", err)
		return
	}
	n, err := d.cache.Preload(d.ctx, words, cfg.Suggest.Locale)
	if err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("preload incomplete", "loaded", n, "error", err)
		return
	}
	d.logger.Info("cache preloaded", "requested", len(words), "loaded", n)
}

// shutdown tells subscribers the daemon is going away and stops every
// component. It is safe to call once.
func (d *daemon) shutdown(ctx context.Context) error {
	if ev, err := ipc.NewEvent(ipc.EventDaemonShutdown, "", nil); err == nil {
		d.broadcast(ev)
	}
	d.health.SetReady(false)
	var errs []error
	if d.loader != nil {
		errs = append(errs, d.loader.Close())
	}
	d.orch.Close()
	errs = append(errs, d.server.Stop())
	if c, ok := d.platform.Main.(interface{ Close() }); ok {
		c.Close()
	}
	errs = append(errs, d.tracing.Shutdown(ctx))
	return errors.Join(errs...)
}

func (d *daemon) background(fn func()) {
	if d.crash != nil {
		d.crash.Go("", fn)
		return
	}
	go fn()
}

func (d *daemon) config() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

func (d *daemon) broadcast(ev *ipc.Event) {
	if d.server != nil {
		d.server.Broadcast(ev)
	}
}

func (d *daemon) permissionChanged(granted bool) {
	if !granted {
		d.logger.Warn("accessibility access not granted")
	}
	if ev, err := ipc.NewEvent(ipc.EventPermission, "", ipc.PermissionEvent{Authorized: granted, Prompted: true}); err == nil {
		d.broadcast(ev)
	}
}

// watch installs loader and applies every successful reload.
func (d *daemon) watch(loader *config.Loader) {
	d.loader = loader
	loader.OnChange(d.apply)
	if err := loader.Watch(); err != nil {
		d.logger.Warn("config hot reload disabled", "path", loader.Path(), "error", err)
		return
	}
	go func() {
		for {
			select {
			case <-d.ctx.Done():
				return
			case err := <-loader.Errors():
				d.logger.Warn("config reload failed", "error", err)
			}
		}
	}()
}

// apply brings the running components in line with a new configuration.
// Socket, metrics and tracing settings need a restart.
func (d *daemon) apply(old, cfg *config.Config) {
	if d.levelOverride == "" {
		if lvl, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
			d.logger.SetLevel(lvl)
		}
	}

	if err := d.cache.Resize(cfg.Cache.MaxEntries, cfg.Cache.MaxBytes); err != nil {
		d.logger.Warn("cache resize rejected", "error", err)
	}
	d.cache.SetTimeout(cfg.SuggestTimeout())

	if !sameSuggest(old.Suggest, cfg.Suggest) {
		svc, names := buildService(d.ctx, cfg.Suggest, d.platform.System, d.logger)
		d.cache.SetService(svc)
		d.cache.Clear()
		d.orch.SetLocale(cfg.Suggest.Locale)
		d.mu.Lock()
		d.providers = names
		d.mu.Unlock()
	}

	if place, err := placementOptions(cfg.Placement); err == nil {
		d.orch.SetPlacement(place)
	} else {
		d.logger.Warn("placement unchanged", "error", err)
	}

	if old.IPC != cfg.IPC || old.Metrics != cfg.Metrics || old.Tracing != cfg.Tracing {
		d.logger.Info("ipc, metrics and tracing changes apply after restart")
	}

	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()

	d.logger.Info("configuration reloaded")
	if ev, err := ipc.NewEvent(ipc.EventConfigChanged, "", nil); err == nil {
		d.broadcast(ev)
	}
}

func sameSuggest(a, b config.SuggestConfig) bool {
	return slices.Equal(a.Providers, b.Providers) &&
		a.Locale == b.Locale &&
		a.WordList == b.WordList &&
		a.SQLitePath == b.SQLitePath &&
		a.MaxResults == b.MaxResults &&
		a.MinPrefix == b.MinPrefix
}

// ipc.Backend

func (d *daemon) Status(ctx context.Context) (*ipc.StatusResponse, error) {
	n := 0
	if displays, err := d.platform.Displays.Displays(ctx); err == nil {
		n = len(displays)
	}
	d.mu.Lock()
	providers := append([]string(nil), d.providers...)
	d.mu.Unlock()

	resp := &ipc.StatusResponse{
		Version:    d.version,
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		Uptime:     time.Since(d.startedAt),
		StartedAt:  d.startedAt,
		Authorized: d.platform.Authorizer.IsIntrospectionAuthorized(),
		Displays:   n,
		Providers:  providers,
		Clients:    d.server.ClientCount(),
		ConfigPath: d.configPath,
	}
	if c, ok := d.orch.Active(); ok {
		resp.ActiveCycle = c.ID
	}
	d.health.Check(ctx)
	resp.Health = string(d.health.OverallStatus())
	return resp, nil
}

func (d *daemon) Permission(ctx context.Context, prompt bool) (*ipc.PermissionResponse, error) {
	resp := &ipc.PermissionResponse{Authorized: d.platform.Authorizer.IsIntrospectionAuthorized()}
	if resp.Authorized || !prompt {
		return resp, nil
	}
	d.platform.Main.Do(func() {
		resp.Authorized = d.platform.Authorizer.Prompt()
	})
	resp.Prompted = true
	if ev, err := ipc.NewEvent(ipc.EventPermission, "", ipc.PermissionEvent{Authorized: resp.Authorized, Prompted: true}); err == nil {
		d.broadcast(ev)
	}
	return resp, nil
}

// outcomeStarted reports a trigger that was not waited on.
const outcomeStarted = "started"

func (d *daemon) Trigger(ctx context.Context, req *ipc.TriggerRequest) (*ipc.TriggerResponse, error) {
	if !req.Wait {
		d.background(func() {
			if _, err := d.orch.OnTrigger(d.ctx); err != nil {
				d.logger.Debug("trigger ended", "error", err)
			}
		})
		return &ipc.TriggerResponse{Outcome: outcomeStarted}, nil
	}
	rep, err := d.orch.OnTrigger(ctx)
	if err != nil {
		return nil, err
	}
	return &ipc.TriggerResponse{
		CycleID:     rep.CycleID,
		Outcome:     string(rep.Outcome),
		Completions: rep.Completions,
		Reason:      rep.Reason,
	}, nil
}

func (d *daemon) Select(ctx context.Context, req *ipc.SelectRequest) (*ipc.SelectResponse, error) {
	completion := req.Completion
	if completion == nil && req.Index != nil {
		c, ok := d.orch.Active()
		if !ok || c.ID != req.CycleID {
			return nil, fmt.Errorf("%w: %s", ipc.ErrNotFoundCycle, req.CycleID)
		}
		if *req.Index < 0 || *req.Index >= len(c.Completions) {
			return nil, fmt.Errorf("index %d out of range: cycle has %d completions", *req.Index, len(c.Completions))
		}
		completion = &c.Completions[*req.Index]
	}

	res, err := d.orch.OnSelection(ctx, req.CycleID, completion)
	switch {
	case errors.Is(err, orchestrator.ErrUnknownCycle):
		return nil, fmt.Errorf("%w: %s", ipc.ErrNotFoundCycle, req.CycleID)
	case err != nil:
		return &ipc.SelectResponse{Error: err.Error()}, nil
	case completion == nil:
		return &ipc.SelectResponse{}, nil
	}
	return &ipc.SelectResponse{
		Inserted:     true,
		Strategy:     res.Strategy.String(),
		SkippedRunes: res.SkippedRunes,
	}, nil
}

func (d *daemon) Dismiss(ctx context.Context, cycleID string) error {
	if cycleID == "" {
		c, ok := d.orch.Active()
		if !ok {
			return nil
		}
		cycleID = c.ID
	}
	if err := d.orch.Dismiss(ctx, cycleID); err != nil {
		if errors.Is(err, orchestrator.ErrUnknownCycle) {
			return fmt.Errorf("%w: %s", ipc.ErrNotFoundCycle, cycleID)
		}
		return err
	}
	return nil
}

func (d *daemon) Stats(ctx context.Context, verbose bool) (*ipc.StatsResponse, error) {
	s := d.cache.Statistics()
	maxEntries, maxBytes := d.cache.Limits()
	resp := &ipc.StatsResponse{
		Hits:       s.Hits,
		Misses:     s.Misses,
		Evictions:  s.Evictions,
		Entries:    s.Entries,
		Bytes:      s.Bytes,
		MaxEntries: maxEntries,
		MaxBytes:   maxBytes,
		HitRate:    s.HitRate(),
	}
	if verbose {
		for _, e := range d.cache.Entries() {
			resp.Items = append(resp.Items, ipc.CacheEntryInfo{
				Word:        e.Key.Word,
				Locale:      e.Key.Locale,
				Completions: len(e.Entry.Completions),
				Cost:        e.Entry.Cost,
				InsertedAt:  e.Entry.InsertedAt,
			})
		}
	}
	return resp, nil
}

func (d *daemon) Preload(ctx context.Context, req *ipc.PreloadRequest) (*ipc.PreloadResponse, error) {
	words := req.Words
	if len(words) == 0 {
		var err error
		if words, err = seedWords(d.config().Preload.WordsFile); err != nil {
			return nil, err
		}
	}
	locale := req.Locale
	if locale == "" {
		locale = d.config().Suggest.Locale
	}
	n, err := d.cache.Preload(ctx, words, locale)
	if err != nil {
		return nil, err
	}
	return &ipc.PreloadResponse{Requested: len(words), Loaded: n}, nil
}

func (d *daemon) Lookup(ctx context.Context, req *ipc.LookupRequest) (*ipc.LookupResponse, error) {
	locale := req.Locale
	if locale == "" {
		locale = d.config().Suggest.Locale
	}
	if completions, ok := d.cache.Lookup(req.Word, locale); ok {
		return &ipc.LookupResponse{Completions: completions, Cached: true}, nil
	}
	completions, err := d.cache.Resolve(ctx, req.Word, locale)
	if err != nil && !errors.Is(err, cache.ErrSuggestionServiceUnavailable) {
		return nil, err
	}
	if completions == nil {
		completions = []string{}
	}
	return &ipc.LookupResponse{Completions: completions}, nil
}

func (d *daemon) ClearCache(ctx context.Context) error {
	d.cache.Clear()
	d.logger.Info("cache cleared")
	return nil
}

func (d *daemon) ReloadConfig(ctx context.Context) error {
	if d.loader == nil {
		return errors.New("daemon was started without a config loader")
	}
	return d.loader.Reload()
}
