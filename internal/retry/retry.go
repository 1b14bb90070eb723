// Package retry runs network-bound transfers with a fixed number of attempts
// and a fixed delay between them.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 5 * time.Second
)

// FailureKind classifies a failed attempt for logging.
type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureIO        FailureKind = "io"
)

// Result is the outcome of one attempt. The zero value is a success.
type Result struct {
	Kind FailureKind
	Err  error
}

// OK returns a successful Result.
func OK() Result {
	return Result{}
}

// Fail returns a failed Result. A nil err is still recorded as a failure.
func Fail(kind FailureKind, err error) Result {
	if err == nil {
		err = fmt.Errorf("%s failure", kind)
	}
	return Result{Kind: kind, Err: err}
}

// Failed reports whether the attempt failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Retrier executes an operation up to MaxAttempts times, sleeping Delay after
// every failed attempt that is followed by another one.
type Retrier struct {
	MaxAttempts int
	Delay       time.Duration
	Logger      *slog.Logger

	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Retrier with the given limits, falling back to the defaults.
func New(maxAttempts int, delay time.Duration, logger *slog.Logger) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if delay < 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Retrier{MaxAttempts: maxAttempts, Delay: delay, Logger: logger}
}

// Do runs op until it succeeds or attempts are exhausted. It returns true on
// the first success. A cancelled context stops the loop early.
func (r *Retrier) Do(ctx context.Context, name string, op func(context.Context) Result) bool {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		res := op(ctx)
		if !res.Failed() {
			if attempt > 1 {
				logger.Info("transfer succeeded after retry", "op", name, "attempt", attempt)
			}
			return true
		}
		logger.Warn("transfer attempt failed",
			"op", name,
			"attempt", attempt,
			"max_attempts", attempts,
			"kind", string(res.Kind),
			"error", res.Err,
		)
		if attempt == attempts {
			break
		}
		if err := r.sleep(ctx, r.Delay); err != nil {
			logger.Warn("transfer retry aborted", "op", name, "error", err)
			return false
		}
	}
	logger.Error("transfer failed after all attempts", "op", name, "attempts", attempts)
	return false
}

func (r *Retrier) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
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
