// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jllopis/ad4mlang/pkg/errors"
)

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState string

const (
	// StateClosed means the circuit breaker is working normally.
	StateClosed CircuitBreakerState = "closed"

	// StateOpen means the circuit breaker is blocking calls.
	StateOpen CircuitBreakerState = "open"

	// StateHalfOpen means the circuit breaker is testing if the backend recovered.
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int

	// SuccessThreshold is the number of successes in half-open before closing.
	SuccessThreshold int

	// Timeout is how long the breaker stays open before trying half-open.
	Timeout time.Duration

	// Name identifies the breaker in logs and errors.
	Name string

	Logger *slog.Logger
}

// CircuitBreaker stops calling a failing backend until it has had time to
// recover.
type CircuitBreaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: uint32(config.SuccessThreshold),
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.FailureThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("resilience.breaker.state",
				slog.String("breaker", name),
				slog.String("from", string(convertState(from))),
				slog.String("to", string(convertState(to))),
			)
		},
		IsSuccessful: func(err error) bool {
			// Caller mistakes and cancellations say nothing about the backend.
			return err == nil ||
				errors.IsCode(err, errors.CodeContextLost) ||
				errors.IsCode(err, errors.CodeInvalidInput) ||
				stderrors.Is(err, context.Canceled)
		},
	}
	return &CircuitBreaker{name: config.Name, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Call executes fn through the breaker. While open, fn is not executed and
// an UNAVAILABLE error is returned.
func (c *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return errors.New(errors.CodeContextLost, "context canceled before call", err)
	}
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.New(errors.CodeUnavailable, "circuit breaker open", err).
			WithContext("breaker", c.name).
			WithRecoverable(true)
	}
	return err
}

// State returns the current state of the breaker.
func (c *CircuitBreaker) State() CircuitBreakerState {
	return convertState(c.cb.State())
}

func convertState(s gobreaker.State) CircuitBreakerState {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
