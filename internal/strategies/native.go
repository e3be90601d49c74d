package strategies

import (
	"context"
	"fmt"

	"github.com/acgs2/agentbus/internal/errs"
	"github.com/acgs2/agentbus/internal/models"
)

// NativeBackend is implemented by a high-performance validation backend
// (grounded conceptually on processing_strategies.py's RustProcessingStrategy,
// here a Go-native equivalent rather than an FFI boundary).
type NativeBackend interface {
	Process(ctx context.Context, msg *models.AgentMessage) (models.ValidationResult, error)
}

// NativeStrategy wraps a NativeBackend with the exact circuit breaker
// constants from RustProcessingStrategy: failure_threshold=3,
// cooldown_period=30s, probe_successes_needed=5. Only backend exceptions
// (the error return) count as breaker failures; a DENY ValidationResult
// does not.
type NativeStrategy struct {
	backend NativeBackend
	breaker *CircuitBreaker
	inner   ValidationStrategy
}

func NewNativeStrategy(backend NativeBackend, inner ValidationStrategy) *NativeStrategy {
	return &NativeStrategy{backend: backend, breaker: NewCircuitBreaker(), inner: inner}
}

func (s *NativeStrategy) Name() string { return "native" }

func (s *NativeStrategy) IsAvailable(ctx context.Context) bool {
	return s.backend != nil && s.breaker.Allow()
}

func (s *NativeStrategy) Validate(ctx context.Context, msg *models.AgentMessage) (models.ValidationResult, error) {
	if !s.IsAvailable(ctx) {
		return models.ValidationResult{}, fmt.Errorf("%w: native backend not available", errs.ErrSystemFault)
	}

	if s.inner != nil {
		result, err := s.inner.Validate(ctx, msg)
		if err != nil {
			s.breaker.RecordFailure()
			return models.ValidationResult{}, err
		}
		if !result.IsValid {
			return result, nil
		}
	}

	result, err := s.backend.Process(ctx, msg)
	if err != nil {
		s.breaker.RecordFailure()
		return models.ValidationResult{}, fmt.Errorf("%w: native processing error: %w", errs.ErrSystemFault, err)
	}
	s.breaker.RecordSuccess()
	return result, nil
}

// BreakerState exposes the underlying circuit state for metrics.
func (s *NativeStrategy) BreakerState() CircuitState { return s.breaker.State() }
