package router

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/hupe1980/meshcore/model"
)

// RetryPolicy configures retry behavior with exponential backoff.
type RetryPolicy struct {
	MaxAttempts       int           // total attempts including the first one
	BaseDelay         time.Duration // delay before the first retry
	MaxDelay          time.Duration // upper bound of a single delay
	BackoffMultiplier float64       // exponential backoff factor
	Jitter            bool          // randomize delays by +/- 50%
	OnRetry           func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns three attempts starting at 500ms, doubling, capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Delay calculates the delay after attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 2.0
	}
	delay := math.Min(float64(p.BaseDelay)*math.Pow(mult, float64(attempt)), float64(p.MaxDelay))
	if p.Jitter {
		delay *= 0.5 + rand.Float64() // [0.5, 1.5)
	}
	return time.Duration(delay)
}

// retry runs fn until it succeeds, fails with a non-transient error or the
// attempt budget is spent. It returns the last error and the number of
// attempts made. Context cancellation aborts a pending wait.
func retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, attempt + 1, nil
		}
		lastErr = err

		if !model.IsTransient(err) || attempt == attempts-1 {
			return zero, attempt + 1, err
		}

		delay := policy.Delay(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt + 1, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, attempts, lastErr
}
