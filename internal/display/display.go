// Package display enumerates attached displays and reports whether this
// process may introspect other applications' UI.
package display

import (
	"context"
	"errors"
	"sync"
	"time"

	"wordfill/internal/geometry"
)

// ErrUnsupported is returned where no display backend exists.
var ErrUnsupported = errors.New("display enumeration not supported on this platform")

// Enumerator lists displays in window-manager (bottom-left) space.
type Enumerator interface {
	Displays(ctx context.Context) ([]geometry.DisplayInfo, error)
}

// Authorizer answers whether accessibility introspection is permitted.
type Authorizer interface {
	IsIntrospectionAuthorized() bool
	// Prompt asks the user to grant access and reports whether it is
	// granted now.
	Prompt() bool
}

// Static is a fixed display list.
type Static []geometry.DisplayInfo

func (s Static) Displays(context.Context) ([]geometry.DisplayInfo, error) {
	return append([]geometry.DisplayInfo(nil), s...), nil
}

// Cached remembers the last successful enumeration for ttl. Display
// layouts change rarely and enumeration can cost a subprocess.
type Cached struct {
	next Enumerator
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	last    []geometry.DisplayInfo
	fetched time.Time
}

// NewCached wraps next.
func NewCached(next Enumerator, ttl time.Duration) *Cached {
	return &Cached{next: next, ttl: ttl, now: time.Now}
}

func (c *Cached) Displays(ctx context.Context) ([]geometry.DisplayInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last != nil && c.now().Sub(c.fetched) < c.ttl {
		return append([]geometry.DisplayInfo(nil), c.last...), nil
	}
	d, err := c.next.Displays(ctx)
	if err != nil {
		return nil, err
	}
	c.last, c.fetched = d, c.now()
	return append([]geometry.DisplayInfo(nil), d...), nil
}

// Invalidate forces the next call to enumerate again.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	c.last = nil
	c.mu.Unlock()
}

// Fixed is an Authorizer with a constant answer, for tests and headless
// runs.
type Fixed bool

func (f Fixed) IsIntrospectionAuthorized() bool { return bool(f) }
func (f Fixed) Prompt() bool                    { return bool(f) }
