// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package neighbourhood

import (
	"context"
	"log/slog"
	"time"

	"github.com/jllopis/ad4mlang/pkg/errors"
	"github.com/jllopis/ad4mlang/pkg/language"
	"github.com/jllopis/ad4mlang/pkg/resilience"
)

// Reliable wraps a Log with retries and a circuit breaker. While the
// breaker is open calls fail fast with an UNAVAILABLE error.
type Reliable struct {
	log     Log
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// ReliableConfig configures NewReliable.
type ReliableConfig struct {
	Retry   resilience.RetryConfig
	Breaker resilience.CircuitBreakerConfig
	Logger  *slog.Logger
}

// DefaultReliableConfig returns the default retry and breaker settings.
func DefaultReliableConfig() ReliableConfig {
	return ReliableConfig{
		Retry:   resilience.DefaultRetryConfig(),
		Breaker: resilience.CircuitBreakerConfig{Name: "neighbourhood", FailureThreshold: 5},
	}
}

// NewReliable wraps log.
func NewReliable(log Log, cfg ReliableConfig) *Reliable {
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "neighbourhood"
	}
	if cfg.Breaker.Logger == nil {
		cfg.Breaker.Logger = cfg.Logger
	}
	retry := cfg.Retry.WithIsRecoverable(func(err error) bool {
		// An open breaker will not close within a retry backoff.
		if errors.IsCode(err, errors.CodeUnavailable) {
			return false
		}
		return resilience.IsRecoverable(err)
	})
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reliable{
		log:     log,
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(cfg.Breaker),
		logger:  logger,
	}
}

// Unwrap returns the wrapped log.
func (r *Reliable) Unwrap() Log {
	return r.log
}

// BreakerState reports the state of the circuit breaker.
func (r *Reliable) BreakerState() resilience.CircuitBreakerState {
	return r.breaker.State()
}

// retryFor returns the retry policy for op, logging every retry.
func (r *Reliable) retryFor(ctx context.Context, op string) resilience.RetryConfig {
	return r.retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		r.logger.WarnContext(ctx, "neighbourhood.retry",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
	})
}

// call runs fn through the breaker, retrying per retryFor.
func call[T any](ctx context.Context, r *Reliable, op string, fn func() (T, error)) (T, error) {
	return resilience.DoWithResult(ctx, r.retryFor(ctx, op), func() (T, error) {
		var out T
		err := r.breaker.Call(ctx, func() error {
			var err error
			out, err = fn()
			return err
		})
		return out, err
	})
}

// Join implements Log.
func (r *Reliable) Join(ctx context.Context, member language.DID) error {
	return r.retryFor(ctx, "join").Do(ctx, func() error {
		return r.breaker.Call(ctx, func() error { return r.log.Join(ctx, member) })
	})
}

// Append implements Log. Retrying is safe because Append is idempotent
// per envelope ID.
func (r *Reliable) Append(ctx context.Context, env Envelope) (uint64, error) {
	return call(ctx, r, "append", func() (uint64, error) { return r.log.Append(ctx, env) })
}

// Since implements Log.
func (r *Reliable) Since(ctx context.Context, after uint64, limit int) ([]Envelope, error) {
	return call(ctx, r, "since", func() ([]Envelope, error) { return r.log.Since(ctx, after, limit) })
}

// Members implements Log.
func (r *Reliable) Members(ctx context.Context) ([]language.DID, error) {
	return call(ctx, r, "members", func() ([]language.DID, error) { return r.log.Members(ctx) })
}
