// Package ratelimit implements a fixed-window counter keyed on an arbitrary
// scope string (principal+endpoint, or login-attempt IP), backed by the
// shared cache. On infrastructure error the limiter fails open and logs a
// warning itself.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/queueforge/vqueue/internal/cache"
)

// Result is the outcome of a Check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter is a fixed-window rate limiter.
type Limiter struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// New creates a Limiter over the given Redis client.
func New(rdb *redis.Client, logger *slog.Logger) *Limiter {
	return &Limiter{rdb: rdb, logger: logger}
}

func countKey(scope string) string  { return cache.RateLimitKey(scope) + ":count" }
func windowKey(scope string) string { return cache.RateLimitKey(scope) + ":window_start" }

// Check evaluates whether scope is allowed one more request under a limit of
// max requests per window, incrementing the counter as a side effect. On any
// cache error it fails open (Allowed=true) and logs a warning.
func (l *Limiter) Check(ctx context.Context, scope string, max int, window time.Duration) Result {
	now := time.Now()

	pipe := l.rdb.Pipeline()
	getWindow := pipe.Get(ctx, windowKey(scope))
	getCount := pipe.Get(ctx, countKey(scope))
	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		l.logWarn(scope, err)
		return Result{Allowed: true, Remaining: max}
	}

	windowStart, werr := getWindow.Time()
	count, cerr := getCount.Int()

	if werr != nil || cerr != nil || now.Sub(windowStart) >= window {
		// New window.
		tx := l.rdb.TxPipeline()
		tx.Set(ctx, windowKey(scope), now.Format(time.RFC3339Nano), window)
		tx.Set(ctx, countKey(scope), 1, window)
		if _, err := tx.Exec(ctx); err != nil {
			l.logWarn(scope, err)
			return Result{Allowed: true, Remaining: max}
		}
		return Result{Allowed: true, Remaining: max - 1, ResetAt: now.Add(window)}
	}

	resetAt := windowStart.Add(window)
	if count >= max {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	if err := l.rdb.Incr(ctx, countKey(scope)).Err(); err != nil {
		l.logWarn(scope, err)
		return Result{Allowed: true, Remaining: max - count}
	}

	return Result{Allowed: true, Remaining: max - count - 1, ResetAt: resetAt}
}

// Reset clears the counter for scope.
func (l *Limiter) Reset(ctx context.Context, scope string) error {
	if err := l.rdb.Del(ctx, countKey(scope), windowKey(scope)).Err(); err != nil {
		return fmt.Errorf("ratelimit reset %q: %w", scope, err)
	}
	return nil
}

// Set administratively overrides the window start and count for scope, used
// to seed or clear limiter state out of band.
func (l *Limiter) Set(ctx context.Context, scope string, count int, window time.Duration) error {
	tx := l.rdb.TxPipeline()
	tx.Set(ctx, windowKey(scope), time.Now().Format(time.RFC3339Nano), window)
	tx.Set(ctx, countKey(scope), count, window)
	if _, err := tx.Exec(ctx); err != nil {
		return fmt.Errorf("ratelimit set %q: %w", scope, err)
	}
	return nil
}

func (l *Limiter) logWarn(scope string, err error) {
	if l.logger == nil {
		return
	}
	l.logger.Warn("rate limiter failing open on cache error", "scope", scope, "error", err)
}
