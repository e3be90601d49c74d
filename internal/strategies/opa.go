package strategies

import (
	"context"
	"fmt"

	"github.com/acgs2/agentbus/internal/errs"
	"github.com/acgs2/agentbus/internal/models"
	"github.com/acgs2/agentbus/pkg/opaengine"
)

// OPAStrategy validates messages through an external OPA policy engine,
// grounded on processing_strategies.py's OPAProcessingStrategy.
type OPAStrategy struct {
	engine opaengine.Engine
}

func NewOPAStrategy(engine opaengine.Engine) *OPAStrategy {
	return &OPAStrategy{engine: engine}
}

func (s *OPAStrategy) Name() string { return "opa" }

func (s *OPAStrategy) IsAvailable(ctx context.Context) bool { return s.engine != nil }

func (s *OPAStrategy) Validate(ctx context.Context, msg *models.AgentMessage) (models.ValidationResult, error) {
	input := opaengine.Input{
		MessageType:        string(msg.MessageType),
		SenderID:           msg.SenderID,
		RecipientID:        msg.RecipientID,
		TenantID:           msg.TenantID,
		ConstitutionalHash: msg.ConstitutionalHash,
		Payload:            msg.Payload,
	}
	out, err := s.engine.Evaluate(ctx, input)
	if err != nil {
		return models.ValidationResult{}, fmt.Errorf("%w: opa evaluation: %w", errs.ErrSystemFault, err)
	}
	if out.Deny || !out.Allow {
		reason := out.Reason
		if reason == "" {
			reason = "denied by OPA policy"
		}
		return models.NewDeniedResult(msg.ConstitutionalHash, reason), nil
	}
	return models.NewValidResult(msg.ConstitutionalHash), nil
}
