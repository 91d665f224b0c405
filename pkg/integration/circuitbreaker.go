// Package integration holds resilience helpers for calls to external services.
package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState is the breaker position.
type CircuitState int32

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreakerConfig tunes a CircuitBreaker. Zero values take the defaults.
type CircuitBreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// Cooldown is how long an open circuit rejects calls before probing.
	Cooldown time.Duration
	// ProbeSuccesses successful probes close a half-open circuit.
	ProbeSuccesses int
	// IsFailure decides which errors count against the service. By default
	// every error does except the caller's own cancellation.
	IsFailure func(error) bool
	// OnStateChange runs after each transition, outside the breaker lock.
	OnStateChange func(name string, from, to CircuitState)
}

// DefaultCircuitBreakerConfig opens after 5 failures and probes after a minute.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		Cooldown:         time.Minute,
		ProbeSuccesses:   1,
		IsFailure:        countsAsFailure,
	}
}

func countsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

type CircuitOption func(*CircuitBreaker)

func WithBreakerLogger(logger *slog.Logger) CircuitOption {
	return func(cb *CircuitBreaker) { cb.logger = logger }
}

// WithBreakerClock replaces time.Now.
func WithBreakerClock(now func() time.Time) CircuitOption {
	return func(cb *CircuitBreaker) { cb.now = now }
}

// CircuitBreaker stops calling a failing service for a cooldown period. While
// half-open it lets a single probe through at a time.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	probing   bool
	openedAt  time.Time
	changedAt time.Time
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, opts ...CircuitOption) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.ProbeSuccesses <= 0 {
		cfg.ProbeSuccesses = def.ProbeSuccesses
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = def.IsFailure
	}

	cb := &CircuitBreaker{name: name, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(cb)
	}
	if cb.logger == nil {
		cb.logger = slog.Default()
	}
	cb.logger = cb.logger.With("component", "circuit_breaker", "service", name)
	cb.changedAt = cb.now()
	return cb
}

func (cb *CircuitBreaker) Name() string { return cb.name }

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute runs fn unless the circuit is open. Errors from fn are returned
// unchanged; a rejected call returns an error wrapping ErrCircuitOpen.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.settle(probe, err)
	return err
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	var from CircuitState
	moved := false
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.Cooldown {
			cb.mu.Unlock()
			return false, fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
		}
		from, moved = cb.moveLocked(StateHalfOpen), true
		fallthrough
	case StateHalfOpen:
		if cb.probing {
			cb.mu.Unlock()
			return false, fmt.Errorf("%s: probe in flight: %w", cb.name, ErrCircuitOpen)
		}
		cb.probing = true
		probe = true
	}
	cb.mu.Unlock()
	if moved {
		cb.notify(from, StateHalfOpen)
	}
	return probe, nil
}

func (cb *CircuitBreaker) settle(probe bool, err error) {
	failed := cb.cfg.IsFailure(err)

	cb.mu.Lock()
	if probe {
		cb.probing = false
	}
	next := cb.state
	switch {
	case cb.state == StateClosed && failed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			next = StateOpen
		}
	case cb.state == StateClosed && err == nil:
		cb.failures = 0
	case cb.state == StateHalfOpen && probe && failed:
		next = StateOpen
	case cb.state == StateHalfOpen && probe && err == nil:
		cb.successes++
		if cb.successes >= cb.cfg.ProbeSuccesses {
			next = StateClosed
		}
	}
	if next == cb.state {
		cb.mu.Unlock()
		return
	}
	from := cb.moveLocked(next)
	cb.mu.Unlock()
	cb.notify(from, next)
}

// Reset closes the circuit and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.moveLocked(StateClosed)
	cb.mu.Unlock()
	cb.notify(from, StateClosed)
}

// CircuitBreakerStats is a point-in-time view of a breaker.
type CircuitBreakerStats struct {
	Name            string       `json:"name"`
	State           CircuitState `json:"state"`
	Failures        int          `json:"failures"`
	OpenedAt        time.Time    `json:"opened_at,omitzero"`
	LastStateChange time.Time    `json:"last_state_change"`
}

func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerStats{
		Name:            cb.name,
		State:           cb.state,
		Failures:        cb.failures,
		OpenedAt:        cb.openedAt,
		LastStateChange: cb.changedAt,
	}
}

// moveLocked switches to next and returns the previous state. cb.mu is held.
func (cb *CircuitBreaker) moveLocked(next CircuitState) CircuitState {
	from := cb.state
	now := cb.now()
	cb.state = next
	cb.changedAt = now
	cb.successes = 0
	switch next {
	case StateClosed:
		cb.failures = 0
		cb.probing = false
	case StateOpen:
		cb.openedAt = now
	}
	return from
}

func (cb *CircuitBreaker) notify(from, to CircuitState) {
	if from == to {
		return
	}
	cb.logger.Info("circuit breaker state changed", "from", from.String(), "to", to.String())
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}
