package pool

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Option is a functional option for configuring an AsyncPool.
type Option func(*poolConfig)

type poolConfig struct {
	ctx         context.Context
	name        string
	logger      *zerolog.Logger
	progress    Progress
	rateLimiter *rate.Limiter

	beforeTaskStart any
	onTaskEnd       any
}

const defaultPoolName = "default"

// WithContext sets the context handed to every task and sink call.
// Cancelling it does not stop the pool; tasks decide how to react.
// Defaults to context.Background().
func WithContext(ctx context.Context) Option {
	return func(cfg *poolConfig) {
		if ctx != nil {
			cfg.ctx = ctx
		}
	}
}

// WithName labels the pool in logs and metrics.
func WithName(name string) Option {
	return func(cfg *poolConfig) {
		if name != "" {
			cfg.name = name
		}
	}
}

// WithLogger sets the logger. Defaults to the global zerolog logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *poolConfig) {
		cfg.logger = &logger
	}
}

// WithProgress registers a progress counter, incremented once per completed item.
func WithProgress(p Progress) Option {
	return func(cfg *poolConfig) {
		cfg.progress = p
	}
}

// WithRateLimit caps how often task invocations may start, on top of the
// concurrency limit. Useful for APIs that budget requests per second.
//
// Example:
//
//	WithRateLimit(10, 5) // 10 tasks/sec with a burst of 5
func WithRateLimit(tasksPerSecond float64, burst int) Option {
	return func(cfg *poolConfig) {
		if tasksPerSecond > 0 && burst > 0 {
			cfg.rateLimiter = rate.NewLimiter(rate.Limit(tasksPerSecond), burst)
		}
	}
}

// WithBeforeTaskStart registers a hook called on the worker goroutine right
// before the task function runs. Its item type must match the pool's.
func WithBeforeTaskStart[T any](fn func(item T)) Option {
	return func(cfg *poolConfig) {
		if fn != nil {
			cfg.beforeTaskStart = fn
		}
	}
}

// WithOnTaskEnd registers a hook called after each task returns, with the
// item, its result and its error. Its types must match the pool's.
func WithOnTaskEnd[T any, R any](fn func(item T, result R, err error)) Option {
	return func(cfg *poolConfig) {
		if fn != nil {
			cfg.onTaskEnd = fn
		}
	}
}

func createConfig(opts ...Option) *poolConfig {
	cfg := &poolConfig{
		ctx:  context.Background(),
		name: defaultPoolName,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.logger == nil {
		l := log.Logger
		cfg.logger = &l
	}
	return cfg
}

// checkHooks asserts the registered hooks against the pool's type parameters.
// A mismatch is a programming error and panics, naming both types.
func checkHooks[T any, R any](cfg *poolConfig) (before func(T), after func(T, R, error)) {
	if cfg.beforeTaskStart != nil {
		fn, ok := cfg.beforeTaskStart.(func(T))
		if !ok {
			var zero T
			panic(fmt.Sprintf("WithBeforeTaskStart hook has type %T, but pool processes items of type %T",
				cfg.beforeTaskStart, zero))
		}
		before = fn
	}

	if cfg.onTaskEnd != nil {
		fn, ok := cfg.onTaskEnd.(func(T, R, error))
		if !ok {
			var zeroT T
			var zeroR R
			panic(fmt.Sprintf("WithOnTaskEnd hook has type %T, but pool processes %T into %T",
				cfg.onTaskEnd, zeroT, zeroR))
		}
		after = fn
	}

	return before, after
}
