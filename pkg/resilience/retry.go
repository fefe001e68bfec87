// SPDX-License-Identifier: Apache-2.0
// Package resilience provides retry, timeout and circuit breaker patterns
// for calls into neighbourhood backends.
package resilience

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jllopis/ad4mlang/pkg/errors"
)

// RetryConfig controls retries with exponential backoff. The zero value
// makes a single attempt.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Multiplier grows the delay between attempts. Zero means 2.
	Multiplier float64
	// Jitter spreads each delay by ±Jitter of its value (0.1 = ±10%).
	Jitter float64
	// IsRecoverable decides whether err is worth another attempt. Nil
	// means the package-level IsRecoverable.
	IsRecoverable func(error) bool
	// OnRetry, when set, is called before sleeping for the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig makes three attempts starting at 100ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		Multiplier:    2.0,
		Jitter:        0.1,
		IsRecoverable: IsRecoverable,
	}
}

// WithMaxAttempts returns a copy with MaxAttempts set.
func (rc RetryConfig) WithMaxAttempts(n int) RetryConfig {
	rc.MaxAttempts = n
	return rc
}

// WithInitialDelay returns a copy with InitialDelay set.
func (rc RetryConfig) WithInitialDelay(d time.Duration) RetryConfig {
	rc.InitialDelay = d
	return rc
}

// WithMaxDelay returns a copy with MaxDelay set.
func (rc RetryConfig) WithMaxDelay(d time.Duration) RetryConfig {
	rc.MaxDelay = d
	return rc
}

// WithIsRecoverable returns a copy with IsRecoverable set.
func (rc RetryConfig) WithIsRecoverable(fn func(error) bool) RetryConfig {
	rc.IsRecoverable = fn
	return rc
}

// WithOnRetry returns a copy with OnRetry set.
func (rc RetryConfig) WithOnRetry(fn func(attempt int, err error, delay time.Duration)) RetryConfig {
	rc.OnRetry = fn
	return rc
}

// Do calls fn until it succeeds, returns an error IsRecoverable rejects, or
// runs out of attempts. The last error from fn is returned unchanged; a
// context that ends while waiting yields CONTEXT_LOST.
func (rc RetryConfig) Do(ctx context.Context, fn func() error) error {
	attempts := max(rc.MaxAttempts, 1)
	recoverable := rc.IsRecoverable
	if recoverable == nil {
		recoverable = IsRecoverable
	}

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= attempts || !recoverable(err) {
			return err
		}

		delay := calculateBackoff(attempt, rc)
		if rc.OnRetry != nil {
			rc.OnRetry(attempt, err, delay)
		}
		if werr := sleep(ctx, delay); werr != nil {
			return errors.New(errors.CodeContextLost, "context ended during retry", werr).
				WithContext("attempt", attempt).
				WithContext("max_attempts", attempts).
				WithContext("last_error", err.Error())
		}
	}
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, rc RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	err := rc.Do(ctx, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// calculateBackoff returns the wait after the given failed attempt:
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay, then jittered.
func calculateBackoff(attempt int, rc RetryConfig) time.Duration {
	multiplier := rc.Multiplier
	if multiplier == 0 {
		multiplier = 2.0
	}
	delay := float64(rc.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if rc.MaxDelay > 0 {
		delay = math.Min(delay, float64(rc.MaxDelay))
	}
	if rc.Jitter > 0 {
		delay += delay * rc.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(math.Max(delay, 0))
}

// IsRecoverable honours the Recoverable flag of language errors and
// retries everything else. Canceled callers and invalid input are never
// retried.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var le *errors.LanguageError
	if !stderrors.As(err, &le) {
		return !stderrors.Is(err, context.Canceled)
	}
	switch le.Code {
	case errors.CodeContextLost, errors.CodeInvalidInput:
		return false
	default:
		return le.Recoverable
	}
}
