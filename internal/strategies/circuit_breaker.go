package strategies

import (
	"sync"
	"time"
)

// CircuitState mirrors the three states of
// original_source/processing_strategies.py's RustProcessingStrategy breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// Exact constants from RustProcessingStrategy's circuit breaker.
const (
	DefaultFailureThreshold   = 3
	DefaultCooldownPeriod     = 30 * time.Second
	DefaultProbeSuccessNeeded = 5
)

// CircuitBreaker guards a single backend, adapted from agents/api/api.go's
// CircuitBreaker/Circuit pair and generalized to the strategy constants
// above. A DENY validation result is not a breaker failure — only a system
// exception (an error return from the wrapped strategy) counts.
type CircuitBreaker struct {
	mu                  sync.Mutex
	state               CircuitState
	failureCount        int
	probeSuccessCount   int
	nextAttempt         time.Time
	failureThreshold    int
	cooldownPeriod      time.Duration
	probeSuccessNeeded  int
}

// NewCircuitBreaker constructs a breaker starting closed, using the
// RustProcessingStrategy defaults.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		state:              CircuitClosed,
		failureThreshold:   DefaultFailureThreshold,
		cooldownPeriod:     DefaultCooldownPeriod,
		probeSuccessNeeded: DefaultProbeSuccessNeeded,
	}
}

// Allow reports whether a call should be attempted, transitioning
// Open -> HalfOpen once the cooldown has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if time.Now().After(cb.nextAttempt) {
			cb.state = CircuitHalfOpen
			cb.probeSuccessCount = 0
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess clears failure history; in HalfOpen it counts probe
// successes and closes the breaker once probeSuccessNeeded is reached.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	if cb.state == CircuitHalfOpen {
		cb.probeSuccessCount++
		if cb.probeSuccessCount >= cb.probeSuccessNeeded {
			cb.state = CircuitClosed
			cb.probeSuccessCount = 0
		}
	}
}

// RecordFailure should be called only for system exceptions, never for a
// policy DENY decision. A failure in HalfOpen reopens the circuit
// immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		cb.nextAttempt = time.Now().Add(cb.cooldownPeriod)
		return
	}

	cb.failureCount++
	if cb.failureCount >= cb.failureThreshold {
		cb.state = CircuitOpen
		cb.nextAttempt = time.Now().Add(cb.cooldownPeriod)
	}
}

// State returns the current circuit state, for metrics/inspection.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
