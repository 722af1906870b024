// Package suggest provides the completion services consulted on a cache
// miss. Services are opaque to the rest of wordfill: they take a partial
// word and a locale and return ranked completions.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoSystemService is returned by System on platforms without a native
// spell checker.
var ErrNoSystemService = errors.New("no system suggestion service on this platform")

// Service returns completions for a partial word. An empty result is a
// valid answer.
type Service interface {
	Suggest(ctx context.Context, word, locale string) ([]string, error)
}

// Func adapts a function to Service.
type Func func(ctx context.Context, word, locale string) ([]string, error)

func (f Func) Suggest(ctx context.Context, word, locale string) ([]string, error) {
	return f(ctx, word, locale)
}

type chain struct {
	services []Service
}

// Chain asks each service in order and returns the first non-empty answer.
// If every service fails the errors are joined.
func Chain(services ...Service) Service {
	return &chain{services: services}
}

func (c *chain) Suggest(ctx context.Context, word, locale string) ([]string, error) {
	var errs []error
	answered := false
	for i, s := range c.services {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := s.Suggest(ctx, word, locale)
		if err != nil {
			errs = append(errs, fmt.Errorf("service %d: %w", i, err))
			continue
		}
		answered = true
		if len(out) > 0 {
			return out, nil
		}
	}
	if answered || len(errs) == 0 {
		return nil, nil
	}
	return nil, errors.Join(errs...)
}

type timeout struct {
	next Service
	d    time.Duration
}

// Timeout bounds every call to s by d.
func Timeout(s Service, d time.Duration) Service {
	if d <= 0 {
		return s
	}
	return &timeout{next: s, d: d}
}

func (t *timeout) Suggest(ctx context.Context, word, locale string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Suggest(ctx, word, locale)
}

// Limit truncates answers from s to at most n completions.
func Limit(s Service, n int) Service {
	if n <= 0 {
		return s
	}
	return Func(func(ctx context.Context, word, locale string) ([]string, error) {
		out, err := s.Suggest(ctx, word, locale)
		if len(out) > n {
			out = out[:n]
		}
		return out, err
	})
}

// MinLength answers nothing for words shorter than n runes.
func MinLength(s Service, n int) Service {
	if n <= 1 {
		return s
	}
	return Func(func(ctx context.Context, word, locale string) ([]string, error) {
		if len([]rune(word)) < n {
			return nil, nil
		}
		return s.Suggest(ctx, word, locale)
	})
}
