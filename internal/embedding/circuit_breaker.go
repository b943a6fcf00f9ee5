package embedding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the circuit breaker is open and calls
// to the embedding backend are being rejected without being attempted.
var ErrCircuitOpen = errors.New("embedding circuit breaker is open")

// CircuitBreakerConfig holds tunables for provider circuit breakers.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of successful probes required
	// to close the circuit again.
	HalfOpenMaxSuccesses uint32
}

// DefaultCircuitBreakerConfig returns conservative defaults suitable for
// local and remote embedding backends.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:          3,
		Timeout:              30 * time.Second,
		HalfOpenMaxSuccesses: 2,
	}
}

// CircuitBreaker wraps calls to an embedding backend so a failing
// backend is cut off quickly instead of stalling every ingest.
type CircuitBreaker struct {
	cb   *gobreaker.CircuitBreaker
	name string
}

// NewCircuitBreaker creates a circuit breaker for the named backend.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.HalfOpenMaxSuccesses,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("embedding: circuit breaker %s: %s -> %s", name, from, to)
		},
	}

	return &CircuitBreaker{
		cb:   gobreaker.NewCircuitBreaker(settings),
		name: name,
	}
}

// Execute runs fn through the circuit breaker. When the circuit is open
// the call is rejected immediately with ErrCircuitOpen.
func (c *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := c.cb.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, c.name)
		}
		return nil, err
	}
	return result, nil
}

// State returns the current circuit breaker state.
func (c *CircuitBreaker) State() gobreaker.State {
	return c.cb.State()
}

// Counts returns the current failure and success counters.
func (c *CircuitBreaker) Counts() gobreaker.Counts {
	return c.cb.Counts()
}
