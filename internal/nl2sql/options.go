package nl2sql

import (
	"time"

	"github.com/koustreak/askdb/internal/logger"
	"github.com/koustreak/askdb/internal/metrics"
)

// Defaults for Synthesizer and Composer.
const (
	DefaultMaxAttempts       = 10
	DefaultGenerationTimeout = 60 * time.Second
	DefaultExecutionTimeout  = 30 * time.Second
)

type options struct {
	maxAttempts       int
	generationTimeout time.Duration
	executionTimeout  time.Duration
	dialect           func() string
	log               *logger.Logger
	metrics           *metrics.Metrics
}

func defaultOptions() options {
	return options{
		maxAttempts:       DefaultMaxAttempts,
		generationTimeout: DefaultGenerationTimeout,
		executionTimeout:  DefaultExecutionTimeout,
		dialect:           func() string { return "SQLite" },
		log:               logger.Nop(),
	}
}

// Option configures a Synthesizer or a Composer.
type Option func(*options)

// WithMaxAttempts bounds the number of model invocations per synthesis.
// Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.maxAttempts = n
		}
	}
}

// WithAttemptTimeout bounds each generator and executor call by d.
// 0 disables both bounds.
func WithAttemptTimeout(d time.Duration) Option {
	return WithTimeouts(d, d)
}

// WithTimeouts bounds generator and executor calls separately.
// 0 disables a bound.
func WithTimeouts(generate, execute time.Duration) Option {
	return func(o *options) {
		o.generationTimeout = generate
		o.executionTimeout = execute
	}
}

// WithDialect sets how the engine is named in prompts. f is consulted on
// every call so it can follow reconnects.
func WithDialect(f func() string) Option {
	return func(o *options) {
		if f != nil {
			o.dialect = f
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}
