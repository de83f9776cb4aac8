// Package resilience provides failure-handling primitives for calls to
// flaky dependencies: bounded retry with backoff, a three-state circuit
// breaker, and per-attempt timeouts.
//
// The primitives compose. The documented stacking order puts the breaker
// outermost and the retrier innermost, so retries run against a live
// dependency and the breaker only observes final outcomes. A breaker-open
// rejection must not be fed back into a retry loop: that would defeat the
// point of failing fast.
package resilience

import (
	"context"
	"time"

	"github.com/fluentstream/fluentstream/pkg/observability/logger"
)

// RetryConfig controls the retry loop.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, minimum 1.
	// MaxAttempts=1 means a single attempt and no retry.
	MaxAttempts int
	// Backoff is the base delay before the first retry.
	Backoff time.Duration
	// Exponential doubles the delay after each failed attempt.
	Exponential bool
	// MaxBackoff caps the exponential delay; 0 means no cap.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns conservative retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Backoff:     time.Second,
		Exponential: true,
		MaxBackoff:  30 * time.Second,
	}
}

func (c *RetryConfig) normalize() {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.Backoff < 0 {
		c.Backoff = 0
	}
}

// RetryMetrics receives attempt-level signals. Nil disables instrumentation.
type RetryMetrics interface {
	RetryAttempt(operation string)
	RetryExhausted(operation string)
}

// Retrier runs operations with bounded retry and backoff. Any error
// triggers a retry; error types are not filtered. After the final attempt
// the original error propagates unchanged so callers keep their existing
// error handling.
type Retrier struct {
	cfg     RetryConfig
	log     logger.Logger
	metrics RetryMetrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retrier. log may be nil.
func NewRetrier(cfg RetryConfig, log logger.Logger) *Retrier {
	cfg.normalize()
	if log == nil {
		log = logger.NewNop()
	}
	return &Retrier{
		cfg:   cfg,
		log:   log,
		sleep: sleepContext,
	}
}

// WithMetrics attaches retry metrics.
func (r *Retrier) WithMetrics(metrics RetryMetrics) *Retrier {
	r.metrics = metrics
	return r
}

// Do runs fn up to MaxAttempts times, sleeping between attempts. The
// backoff sleep suspends only the calling goroutine and aborts early when
// ctx is canceled, in which case the context error is returned.
func (r *Retrier) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == r.cfg.MaxAttempts {
			break
		}

		if r.metrics != nil {
			r.metrics.RetryAttempt(operation)
		}
		delay := r.backoffFor(attempt)
		r.log.Warn("operation failed, retrying",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", r.cfg.MaxAttempts,
			"backoff", delay,
			"error", lastErr,
		)
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}

	if r.metrics != nil {
		r.metrics.RetryExhausted(operation)
	}
	r.log.Error("operation failed, retries exhausted",
		"operation", operation,
		"attempts", r.cfg.MaxAttempts,
		"error", lastErr,
	)
	return lastErr
}

// backoffFor returns the delay before attempt+1. With Exponential set the
// sequence is Backoff, 2*Backoff, 4*Backoff, ... capped at MaxBackoff.
func (r *Retrier) backoffFor(attempt int) time.Duration {
	if !r.cfg.Exponential {
		return r.cfg.Backoff
	}
	delay := r.cfg.Backoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if r.cfg.MaxBackoff > 0 && delay >= r.cfg.MaxBackoff {
			return r.cfg.MaxBackoff
		}
	}
	if r.cfg.MaxBackoff > 0 && delay > r.cfg.MaxBackoff {
		delay = r.cfg.MaxBackoff
	}
	return delay
}

// Retry is a convenience wrapper for one-off calls.
func Retry(ctx context.Context, cfg RetryConfig, log logger.Logger, operation string, fn func(context.Context) error) error {
	return NewRetrier(cfg, log).Do(ctx, operation, fn)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
