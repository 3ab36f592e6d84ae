package reconstruct

import (
	"time"

	"github.com/okian/axiesales/pkg/logger"
)

// Option applies a configuration option to the Reconstructor.
type Option func(*Reconstructor)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Reconstructor) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the wall clock used to decide how stale a sale is.
func WithClock(now func() time.Time) Option {
	return func(r *Reconstructor) {
		if now != nil {
			r.now = now
		}
	}
}

// WithStrictOrdering rejects activity logs that are not ordered newest first
// instead of re-sorting them.
func WithStrictOrdering(strict bool) Option {
	return func(r *Reconstructor) {
		r.strictOrdering = strict
	}
}

// WithRealtimeWindow sets how long after a sale the provider's level, XP and
// breed count are still trusted as-is.
func WithRealtimeWindow(d time.Duration) Option {
	return func(r *Reconstructor) {
		if d >= 0 {
			r.realtimeWindow = d
		}
	}
}
