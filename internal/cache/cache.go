// Package cache holds completions per (word, locale) so repeated triggers
// on the same prefix skip the suggestion service.
//
// The cache is bounded by both an entry count and a byte budget. One mutex
// owns the LRU list, the byte total and the counters; the suggestion
// service is always called with the lock released.
package cache

//go:generate mockgen -package=cache -destination=mock_service_test.go wordfill/internal/suggest Service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/time/rate"

	"wordfill/internal/logging"
	"wordfill/internal/suggest"
)

// ErrSuggestionServiceUnavailable is returned when the service failed or
// did not answer in time. Callers treat it as zero completions.
var ErrSuggestionServiceUnavailable = errors.New("suggestion service unavailable")

// Key identifies a cache entry.
type Key struct {
	Word   string
	Locale string
}

// NewKey normalizes word and locale. Surrounding whitespace is trimmed and
// the word is case-folded; the locale becomes a canonical BCP-47 tag, or is
// lowercased when it does not parse.
func NewKey(word, locale string) Key {
	return Key{Word: normalizeWord(word), Locale: normalizeLocale(locale)}
}

func (k Key) String() string {
	return k.Locale + "\x00" + k.Word
}

func normalizeWord(w string) string {
	// A Caser keeps state and is not safe for concurrent use.
	return cases.Fold().String(strings.TrimSpace(w))
}

func normalizeLocale(l string) string {
	l = strings.TrimSpace(l)
	if l == "" {
		return ""
	}
	tag, err := language.Parse(l)
	if err != nil {
		return strings.ToLower(l)
	}
	return tag.String()
}

// Entry is an immutable set of ranked completions.
type Entry struct {
	Completions []string
	InsertedAt  time.Time
	Cost        int
}

// EntryInfo pairs an entry with its key for listings.
type EntryInfo struct {
	Key   Key
	Entry Entry
}

// Statistics are monotonic until Clear.
type Statistics struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
	Bytes     int
}

// HitRate returns Hits/(Hits+Misses), or 0 before any lookup.
func (s Statistics) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Observer receives cache events, typically for metrics. Methods are
// called without the cache lock held.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheEvicted(n int)
	CacheSize(entries, bytes int)
	ServiceCall(d time.Duration, err error)
}

// Config bounds the cache and its service calls.
type Config struct {
	MaxEntries     int
	MaxBytes       int
	SuggestTimeout time.Duration

	// PreloadConcurrency bounds parallel service calls during Preload.
	PreloadConcurrency int
	// PreloadRate limits Preload service calls per second. Zero is
	// unlimited.
	PreloadRate float64

	Logger *logging.Logger
}

// DefaultConfig returns the budgets used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxEntries:         2000,
		MaxBytes:           4 << 20,
		SuggestTimeout:     50 * time.Millisecond,
		PreloadConcurrency: 2,
		PreloadRate:        50,
	}
}

// Cache is a bounded completion cache in front of a suggestion service.
type Cache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[Key, Entry]
	maxItems int
	maxBytes int
	bytes    int
	hits     uint64
	misses   uint64
	evicted  uint64
	// explicit is set while entries are removed on purpose so the evict
	// callback does not count them.
	explicit bool
	pending  int

	service  suggest.Service
	timeout  time.Duration
	observer Observer

	preloadLimit int
	preloadRate  rate.Limit

	group  singleflight.Group
	logger *logging.Logger
	now    func() time.Time
}

// New creates a cache in front of service.
func New(service suggest.Service, cfg Config) (*Cache, error) {
	if cfg.MaxEntries <= 0 {
		return nil, fmt.Errorf("max entries must be positive, got %d", cfg.MaxEntries)
	}
	if cfg.SuggestTimeout <= 0 {
		cfg.SuggestTimeout = DefaultConfig().SuggestTimeout
	}
	if cfg.PreloadConcurrency <= 0 {
		cfg.PreloadConcurrency = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	c := &Cache{
		maxItems:     cfg.MaxEntries,
		maxBytes:     cfg.MaxBytes,
		service:      service,
		timeout:      cfg.SuggestTimeout,
		preloadLimit: cfg.PreloadConcurrency,
		preloadRate:  rate.Inf,
		logger:       logger.WithComponent("cache"),
		now:          time.Now,
	}
	if cfg.PreloadRate > 0 {
		c.preloadRate = rate.Limit(cfg.PreloadRate)
	}
	lru, err := simplelru.NewLRU[Key, Entry](cfg.MaxEntries, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = lru
	return c, nil
}

// onEvict runs under c.mu from inside simplelru.
func (c *Cache) onEvict(_ Key, e Entry) {
	c.bytes -= e.Cost
	if !c.explicit {
		c.evicted++
		c.pending++
	}
}

// SetObserver installs o. Pass nil to remove it.
func (c *Cache) SetObserver(o Observer) {
	c.mu.Lock()
	c.observer = o
	c.mu.Unlock()
}

// SetService swaps the suggestion service. Cached entries are kept.
func (c *Cache) SetService(s suggest.Service) {
	c.mu.Lock()
	c.service = s
	c.mu.Unlock()
}

// SetTimeout changes the per-miss service deadline.
func (c *Cache) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// Limits returns the entry and byte budgets.
func (c *Cache) Limits() (maxEntries, maxBytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxItems, c.maxBytes
}

// Lookup returns cached completions without consulting the service. A hit
// marks the entry most recently used.
func (c *Cache) Lookup(word, locale string) ([]string, bool) {
	return c.lookup(NewKey(word, locale))
}

func (c *Cache) lookup(key Key) ([]string, bool) {
	c.mu.Lock()
	e, ok := c.lru.Get(key)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	obs := c.observer
	c.mu.Unlock()

	if obs != nil {
		if ok {
			obs.CacheHit()
		} else {
			obs.CacheMiss()
		}
	}
	if !ok {
		return nil, false
	}
	return slices.Clone(e.Completions), true
}

// Resolve returns completions for word, asking the service on a miss and
// caching the answer. Concurrent misses for the same key share one service
// call. When the service fails or times out Resolve returns no completions
// and an error wrapping ErrSuggestionServiceUnavailable; nothing is cached.
func (c *Cache) Resolve(ctx context.Context, word, locale string) ([]string, error) {
	key := NewKey(word, locale)
	if key.Word == "" {
		return nil, nil
	}
	if out, ok := c.lookup(key); ok {
		return out, nil
	}
	return c.fill(ctx, key, strings.TrimSpace(word))
}

// fill resolves a miss through the single flight for key.
func (c *Cache) fill(ctx context.Context, key Key, word string) ([]string, error) {
	ch := c.group.DoChan(key.String(), func() (any, error) {
		c.mu.Lock()
		e, ok := c.lru.Peek(key)
		c.mu.Unlock()
		if ok {
			return e.Completions, nil
		}
		out, err := c.callService(context.WithoutCancel(ctx), word, key.Locale)
		if err != nil {
			return nil, err
		}
		return c.Insert(key, out).Completions, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return slices.Clone(r.Val.([]string)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) callService(ctx context.Context, word, locale string) ([]string, error) {
	c.mu.Lock()
	svc, timeout, obs := c.service, c.timeout, c.observer
	c.mu.Unlock()

	if svc == nil {
		return nil, fmt.Errorf("%w: no service configured", ErrSuggestionServiceUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		out []string
		err error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		out, err := svc.Suggest(ctx, word, locale)
		done <- result{out, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		r.err = ctx.Err()
	}
	if obs != nil {
		obs.ServiceCall(time.Since(start), r.err)
	}
	if r.err != nil {
		c.logger.Debug("suggestion service failed", "locale", locale, "error", r.err)
		return nil, fmt.Errorf("%w: %w", ErrSuggestionServiceUnavailable, r.err)
	}
	return r.out, nil
}

// Insert stores completions for key, replacing any previous entry, and
// evicts least recently used entries until both budgets hold. Duplicates
// and empty strings are dropped. An entry larger than the byte budget is
// not stored. The stored entry is returned. key is normalized again, so a
// literal Key collides with NewKey of the same word.
func (c *Cache) Insert(key Key, completions []string) Entry {
	key = NewKey(key.Word, key.Locale)
	e := newEntry(completions, c.now())

	c.mu.Lock()
	if c.maxBytes > 0 && e.Cost > c.maxBytes {
		c.remove(key)
		c.mu.Unlock()
		c.logger.Debug("entry exceeds byte budget", "cost", e.Cost, "max_bytes", c.maxBytes)
		return e
	}
	if old, ok := c.lru.Peek(key); ok {
		c.bytes -= old.Cost
	}
	c.lru.Add(key, e)
	c.bytes += e.Cost
	c.enforceBytes()
	c.publishLocked()
	return e
}

func newEntry(completions []string, now time.Time) Entry {
	seen := make(map[string]struct{}, len(completions))
	out := make([]string, 0, len(completions))
	cost := 0
	for _, s := range completions {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		cost += len(s)
	}
	return Entry{Completions: out, InsertedAt: now, Cost: cost}
}

// enforceBytes evicts from the cold end until the byte budget holds. The
// caller holds c.mu.
func (c *Cache) enforceBytes() {
	for c.maxBytes > 0 && c.bytes > c.maxBytes && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
}

// remove deletes key without counting an eviction. The caller holds c.mu.
func (c *Cache) remove(key Key) {
	c.explicit = true
	c.lru.Remove(key)
	c.explicit = false
}

// publishLocked releases c.mu and reports evictions and size.
func (c *Cache) publishLocked() {
	obs := c.observer
	evicted := c.pending
	c.pending = 0
	entries, bytes := c.lru.Len(), c.bytes
	c.mu.Unlock()

	if obs == nil {
		return
	}
	if evicted > 0 {
		obs.CacheEvicted(evicted)
	}
	obs.CacheSize(entries, bytes)
}

// Preload resolves words off the hot path. Words already cached are
// skipped and lookups made here do not count as hits or misses. Service
// failures skip the word. It returns the number of words loaded.
func (c *Cache) Preload(ctx context.Context, words []string, locale string) (int, error) {
	c.mu.Lock()
	limit, r := c.preloadLimit, c.preloadRate
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	limiter := rate.NewLimiter(r, 1)

	var loaded atomic.Int64
	seen := make(map[Key]struct{}, len(words))
	for _, w := range words {
		key := NewKey(w, locale)
		if key.Word == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if c.contains(key) {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		word := strings.TrimSpace(w)
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			if _, err := c.fill(gctx, key, word); err != nil {
				if errors.Is(err, ErrSuggestionServiceUnavailable) {
					return nil
				}
				return err
			}
			loaded.Add(1)
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	n := int(loaded.Load())
	c.logger.Info("preload finished", "requested", len(words), "loaded", n)
	return n, err
}

func (c *Cache) contains(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(key)
}

// Statistics returns a snapshot of the counters.
func (c *Cache) Statistics() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Statistics{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evicted,
		Entries:   c.lru.Len(),
		Bytes:     c.bytes,
	}
}

// Entries lists cached entries, most recently used first.
func (c *Cache) Entries() []EntryInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.lru.Keys()
	out := make([]EntryInfo, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if e, ok := c.lru.Peek(keys[i]); ok {
			out = append(out, EntryInfo{Key: keys[i], Entry: e})
		}
	}
	return out
}

// Clear drops every entry and resets the statistics.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.explicit = true
	c.lru.Purge()
	c.explicit = false
	c.bytes = 0
	c.hits, c.misses, c.evicted, c.pending = 0, 0, 0, 0
	c.publishLocked()
}

// Resize changes both budgets, evicting as needed.
func (c *Cache) Resize(maxEntries, maxBytes int) error {
	if maxEntries <= 0 {
		return fmt.Errorf("max entries must be positive, got %d", maxEntries)
	}
	c.mu.Lock()
	c.lru.Resize(maxEntries)
	c.maxItems, c.maxBytes = maxEntries, maxBytes
	c.enforceBytes()
	c.publishLocked()
	return nil
}
