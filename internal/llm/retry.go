package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

type retryOptions struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64
	Sleep     func(ctx context.Context, d time.Duration) error
	OnRetry   func(attempt int, wait time.Duration, err error)
}

// withExponentialBackoff runs fn until it succeeds, fails fatally or the
// attempts run out. attempt starts at 0 and the wait after a retryable
// failure is BaseDelay * 2^attempt.
func withExponentialBackoff(ctx context.Context, opts retryOptions, fn func(attempt int) Outcome) Outcome {
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	base := opts.BaseDelay
	if base < 0 {
		base = 0
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var last Outcome
	for attempt := 0; attempt < attempts; attempt++ {
		last = fn(attempt)
		switch last.Kind {
		case Success, Fatal:
			return last
		}
		if attempt == attempts-1 {
			break
		}
		wait := backoffDuration(attempt, base, maxDelay, opts.Jitter)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, wait, last.Err)
		}
		if err := sleep(ctx, wait); err != nil {
			return fatal(err)
		}
	}
	return fatal(fmt.Errorf("%w（%d 回試行）：%w", ErrGenerationUnavailable, attempts, last.Err))
}

func backoffDuration(attempt int, base, maxDelay time.Duration, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	delay := base << attempt
	if delay > maxDelay || delay < 0 {
		delay = maxDelay
	}
	return applyJitter(delay, jitter)
}

func applyJitter(delay time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return delay
	}
	if jitter > 1 {
		jitter = 1
	}
	low := 1 - jitter
	high := 1 + jitter
	factor := low + rand.Float64()*(high-low)
	return time.Duration(float64(delay) * factor)
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

// IsUnavailable reports whether err means the service never answered.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrGenerationUnavailable)
}
