// Package timeouts holds the deadlines wrapped around store and transport
// calls so a slow Mongo or Bot API never pins an update goroutine.
//
//   - Ping: health checks and the startup ping
//   - Short: single-document reads and writes (role lookup, get by id)
//   - Medium: searches, list queries and one delete/retry round trip
//   - Long: reconciliation sweeps, schema setup and other batch work
//
// Budgets are set once at startup with Configure.
package timeouts

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPing   = 2 * time.Second
	DefaultShort  = 5 * time.Second
	DefaultMedium = 10 * time.Second
	DefaultLong   = 60 * time.Second
)

// Config is one set of budgets. Zero fields keep the value in effect.
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

func defaults() Config {
	return Config{Ping: DefaultPing, Short: DefaultShort, Medium: DefaultMedium, Long: DefaultLong}
}

var current atomic.Pointer[Config]

func init() { Reset() }

func load() Config { return *current.Load() }

func Ping() time.Duration   { return load().Ping }
func Short() time.Duration  { return load().Short }
func Medium() time.Duration { return load().Medium }
func Long() time.Duration   { return load().Long }

// Configure overlays the non-zero fields of cfg on the budgets in effect.
func Configure(cfg Config) {
	next := load()
	if cfg.Ping > 0 {
		next.Ping = cfg.Ping
	}
	if cfg.Short > 0 {
		next.Short = cfg.Short
	}
	if cfg.Medium > 0 {
		next.Medium = cfg.Medium
	}
	if cfg.Long > 0 {
		next.Long = cfg.Long
	}
	current.Store(&next)
}

// Reset restores the defaults.
func Reset() {
	d := defaults()
	current.Store(&d)
}

// Current returns the budgets in effect.
func Current() Config { return load() }

// WithTimeout is context.WithTimeout plus a warning, logged on cancel, when
// the deadline is what ended the operation.
//
//	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), log, "reconcile sweep")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if log != nil && ctx.Err() == context.DeadlineExceeded {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
