package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go-sim-loop/internal/bus"
	"go-sim-loop/internal/model"
	"go-sim-loop/internal/store"
)

// ErrTransient marks a failure that is expected to go away on its own, such as
// a simulator that could not reach its runtime.
var ErrTransient = errors.New("transient failure")

// DefaultRetryConfig is used for operation types without their own settings.
var DefaultRetryConfig = model.RetryConfig{
	MaxAttempts:       3,
	InitialDelay:      200 * time.Millisecond,
	MaxDelay:          5 * time.Second,
	BackoffMultiplier: 2.0,
	Jitter:            true,
}

// permanentErrors are never retried.
var permanentErrors = []error{
	context.Canceled,
	context.DeadlineExceeded,
	bus.ErrClosed,
	bus.ErrEmptyTopic,
	store.ErrNotFound,
	store.ErrModelNotFound,
}

// IsRetryable reports whether err is worth another attempt. Unknown errors are
// treated as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	for _, p := range permanentErrors {
		if errors.Is(err, p) {
			return false
		}
	}
	var verr *model.ValidationError
	return !errors.As(err, &verr)
}

// RetryNotify is called before each retry with the failed attempt number.
type RetryNotify func(attempt int, delay time.Duration, err error)

// Retry runs op until it succeeds, fails with a non-retryable error, or
// cfg.MaxAttempts attempts have been made.
func Retry(ctx context.Context, cfg model.RetryConfig, op func(context.Context) error, notify RetryNotify) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt == attempts {
			break
		}

		delay := backoff(cfg, attempt)
		if notify != nil {
			notify(attempt, delay, err)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt, err)
		case <-timer.C:
		}
	}
	return err
}

// backoff returns the wait after the given failed attempt: exponential growth
// from InitialDelay capped at MaxDelay, with up to 10% jitter either way.
func backoff(cfg model.RetryConfig, attempt int) time.Duration {
	multiplier := cfg.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(multiplier, float64(attempt-1)))
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter && delay > 0 {
		delay += time.Duration(float64(delay) * 0.1 * (2*rand.Float64() - 1))
	}
	return delay
}
