// Package strategies defines the pluggable validation and processing
// backends a message passes through, modeled on
// original_source/interfaces.py's ValidationStrategy/ProcessingStrategy
// protocols.
package strategies

import (
	"context"

	"github.com/acgs2/agentbus/internal/models"
)

// ValidationStrategy checks a message against policy and returns a
// decision. Implementations must not mutate msg.
type ValidationStrategy interface {
	Validate(ctx context.Context, msg *models.AgentMessage) (models.ValidationResult, error)
	Name() string
	IsAvailable(ctx context.Context) bool
}

// ProcessingStrategy is the broader strategy surface used by the message
// processor: a chain of these is composed (native, OPA, python-equivalent)
// with circuit-breaker-guarded fallback between links.
type ProcessingStrategy interface {
	ValidationStrategy
}
