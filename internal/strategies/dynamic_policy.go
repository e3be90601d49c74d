package strategies

import (
	"context"

	"github.com/acgs2/agentbus/internal/models"
	"github.com/acgs2/agentbus/internal/redact"
	"github.com/acgs2/agentbus/pkg/policyclient"
)

// DynamicPolicyStrategy validates against a policy fetched from an
// external registry, grounded on
// processing_strategies.py's DynamicPolicyProcessingStrategy.
type DynamicPolicyStrategy struct {
	client policyclient.Client
}

func NewDynamicPolicyStrategy(client policyclient.Client) *DynamicPolicyStrategy {
	return &DynamicPolicyStrategy{client: client}
}

func (s *DynamicPolicyStrategy) Name() string { return "dynamic_policy" }

func (s *DynamicPolicyStrategy) IsAvailable(ctx context.Context) bool { return s.client != nil }

func (s *DynamicPolicyStrategy) Validate(ctx context.Context, msg *models.AgentMessage) (models.ValidationResult, error) {
	policyID := "governance_" + string(msg.MessageType)
	_, err := s.client.GetPolicy(ctx, policyID)
	if err != nil {
		reason := redact.String(err.Error())
		if s.client.FailClosed() {
			return models.NewDeniedResult(msg.ConstitutionalHash, "policy fetch failed: "+reason), nil
		}
		result := models.NewValidResult(msg.ConstitutionalHash)
		result.AddWarning("policy fetch failed, allowed by fail-open configuration: " + reason)
		return result, nil
	}
	return models.NewValidResult(msg.ConstitutionalHash), nil
}
