package engine

import (
	"log/slog"
	"time"

	"github.com/roach88/autoload/internal/clock"
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for timers and receive timestamps.
// Default: the real clock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTaskIDGenerator overrides the UUIDv7 task ID generator.
func WithTaskIDGenerator(g TaskIDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithDefaultInterval sets the refresh interval used when neither the
// START_REFRESH command nor the loader's config carries one.
//
// Default: 0, meaning such a task only fetches on manual loads.
func WithDefaultInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.defaultInterval = d
	}
}
