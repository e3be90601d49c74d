package strategies

import (
	"context"

	"github.com/acgs2/agentbus/internal/maci"
	"github.com/acgs2/agentbus/internal/models"
)

// MACIWrapperStrategy enforces role separation before delegating to an
// inner strategy for constitutional validation, grounded on
// processing_strategies.py's MACIProcessingStrategy.
type MACIWrapperStrategy struct {
	inner    ValidationStrategy
	enforcer *maci.Enforcer
}

func NewMACIWrapperStrategy(inner ValidationStrategy, enforcer *maci.Enforcer) *MACIWrapperStrategy {
	return &MACIWrapperStrategy{inner: inner, enforcer: enforcer}
}

func (s *MACIWrapperStrategy) Name() string { return "maci(" + s.inner.Name() + ")" }

func (s *MACIWrapperStrategy) IsAvailable(ctx context.Context) bool {
	return s.inner.IsAvailable(ctx)
}

func (s *MACIWrapperStrategy) Validate(ctx context.Context, msg *models.AgentMessage) (models.ValidationResult, error) {
	if action, ok := maci.ActionForMessageType(msg.MessageType); ok {
		targetOutputID := ""
		if raw, ok := msg.Content["target_output_id"].(string); ok {
			targetOutputID = raw
		}
		if violation := s.enforcer.ValidateAction(msg.FromAgent, action, targetOutputID, msg.ToAgent); violation != nil {
			return models.NewDeniedResult(msg.ConstitutionalHash, violation.Error()), nil
		}
	}
	return s.inner.Validate(ctx, msg)
}
