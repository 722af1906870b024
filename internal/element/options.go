package element

import (
	"time"

	"wordfill/internal/logging"
)

// Options tunes the platform locators.
type Options struct {
	// MessagingTimeout bounds each call into the target process. Zero keeps
	// the platform default.
	MessagingTimeout time.Duration

	// MaxDepth and MaxChildren bound tree walks on platforms that have to
	// search for the focused element.
	MaxDepth    int
	MaxChildren int

	Logger *logging.Logger
}

// DefaultOptions returns a 250ms messaging timeout and conservative walk
// limits.
func DefaultOptions() Options {
	return Options{
		MessagingTimeout: 250 * time.Millisecond,
		MaxDepth:         24,
		MaxChildren:      256,
	}
}

func (o Options) logger() *logging.Logger {
	if o.Logger != nil {
		return o.Logger.WithComponent("element")
	}
	return logging.Default().WithComponent("element")
}

// NewLocator returns the locator for the running platform.
func NewLocator(opts Options) Locator {
	d := DefaultOptions()
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = d.MaxDepth
	}
	if opts.MaxChildren <= 0 {
		opts.MaxChildren = d.MaxChildren
	}
	return newPlatformLocator(opts)
}
