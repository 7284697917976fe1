// Package retry runs operations with a per-attempt timeout race and bounded
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/vietddude/dashwatch/internal/notify"
	"github.com/vietddude/dashwatch/internal/observability/metrics"
	"github.com/vietddude/dashwatch/internal/resilience/classify"
)

// Policy defines retry behavior for one call site.
type Policy struct {
	// MaxAttempts is the number of retries after the first attempt.
	MaxAttempts int
	// BaseDelay is the wait before the first retry; it doubles per retry.
	BaseDelay time.Duration
	// MaxDelay caps a single wait. Zero means uncapped.
	MaxDelay time.Duration
	// Timeout bounds every attempt.
	Timeout time.Duration
	// Jitter spreads each wait by +/- this fraction (0-1).
	Jitter float64
}

// DefaultPolicy provides sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Timeout:     10 * time.Second,
	}
}

// Validate checks the policy invariants.
func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 0:
		return fmt.Errorf("max attempts must be >= 0, got %d", p.MaxAttempts)
	case p.BaseDelay <= 0:
		return fmt.Errorf("base delay must be > 0, got %s", p.BaseDelay)
	case p.Timeout <= 0:
		return fmt.Errorf("timeout must be > 0, got %s", p.Timeout)
	case p.MaxDelay < 0:
		return fmt.Errorf("max delay must be >= 0, got %s", p.MaxDelay)
	case p.Jitter < 0 || p.Jitter > 1:
		return fmt.Errorf("jitter must be within [0, 1], got %v", p.Jitter)
	}
	return nil
}

// Backoff returns the wait before retry number n (0-based), without jitter.
func (p Policy) Backoff(n int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(2, float64(n))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return toDuration(delay)
}

// toDuration converts nanoseconds, saturating at the largest Duration.
func toDuration(ns float64) time.Duration {
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	if ns <= 0 {
		return 0
	}
	return time.Duration(ns)
}

// Executor holds the collaborators shared by every retried call.
type Executor struct {
	notifier notify.Notifier
	log      *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	jitter   func() float64
}

// Option configures an Executor.
type Option func(*Executor)

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// NewExecutor creates an executor. A nil notifier discards advisories.
func NewExecutor(n notify.Notifier, opts ...Option) *Executor {
	if n == nil {
		n = notify.Nop{}
	}
	e := &Executor{
		notifier: n,
		log:      slog.Default(),
		sleep:    sleepContext,
		jitter:   rand.Float64,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// policy's retries are exhausted. The last failure is returned unchanged.
func Do[T any](
	ctx context.Context,
	e *Executor,
	p Policy,
	label string,
	op func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	var lastErr error
	advised := false

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := WithTimeout(ctx, p.Timeout, label, op)
		if err == nil {
			metrics.RetryAttempts.WithLabelValues(label, "success").Inc()
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		lastErr = err

		info := classify.Classify(err)
		if errors.Is(err, classify.ErrTimeout) {
			metrics.RetryAttempts.WithLabelValues(label, "timeout").Inc()
		} else {
			metrics.RetryAttempts.WithLabelValues(label, "failure").Inc()
		}

		if !info.Retryable {
			e.log.Debug("Not retrying", "operation", label, "kind", info.Kind, "error", err)
			return zero, err
		}
		if attempt >= p.MaxAttempts {
			break
		}

		if !advised {
			advised = true
			e.notifier.Notify(notify.Notice{
				ID:      "retrying:" + label,
				Kind:    notify.KindRetrying,
				Level:   notify.LevelInfo,
				Message: fmt.Sprintf("Connection unstable, retrying %s. Please wait.", label),
			})
		}

		delay := e.delay(p, attempt)
		e.log.Debug("Retrying",
			"operation", label,
			"attempt", attempt+1,
			"delay", delay,
			"kind", info.Kind,
			"error", err,
		)
		if err := e.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}

// WithTimeout races op against timeout. If the timer wins the result is
// classify.ErrTimeout and the late outcome of op is discarded.
func WithTimeout[T any](
	ctx context.Context,
	timeout time.Duration,
	label string,
	op func(ctx context.Context) (T, error),
) (T, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(attemptCtx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		// A failure caused by the attempt deadline is reported as the timeout.
		if r.err == nil || attemptCtx.Err() == nil {
			return r.v, r.err
		}
	case <-attemptCtx.Done():
		// A success that settled at the same instant still counts.
		select {
		case r := <-done:
			if r.err == nil {
				return r.v, nil
			}
		default:
		}
	}

	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	return zero, fmt.Errorf("%s: %w after %s", label, classify.ErrTimeout, timeout)
}

func (e *Executor) delay(p Policy, attempt int) time.Duration {
	d := p.Backoff(attempt)
	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter * (2*e.jitter() - 1)
		d = toDuration(float64(d) + spread)
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
