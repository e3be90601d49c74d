package bus

import (
	"github.com/acgs2/agentbus/internal/deliberation"
	"github.com/acgs2/agentbus/internal/impact"
	"github.com/acgs2/agentbus/internal/models"
)

// DefaultGuardPolicy renders the pre-action verification verdict for a
// message entering deliberation, grounded on
// original_source/deliberation_layer/integration.py's
// _verify_with_opa_guard/_handle_guard_denial/_handle_signature_requirement
// composition. Governance requests are the only message type the guard
// gates: a sender must declare its required_signers or critic_agents in
// Payload, or the action is denied fail-closed (VULN-002, "deny on error
// for security-critical operations"); every other message type is Allow,
// falling straight through to the vote queue.
func DefaultGuardPolicy(msg *models.AgentMessage, analysis impact.Analysis) deliberation.GuardVerdict {
	if msg.MessageType != models.MessageGovernanceRequest {
		return deliberation.GuardVerdict{Decision: deliberation.GuardAllow}
	}

	if signers := stringSlice(msg.Payload["required_signers"]); len(signers) > 0 {
		threshold := 1.0
		if t, ok := msg.Payload["signature_threshold"].(float64); ok && t > 0 {
			threshold = t
		}
		return deliberation.GuardVerdict{
			Decision:           deliberation.GuardRequireSignatures,
			RequiredSigners:    signers,
			SignatureThreshold: threshold,
		}
	}

	if critics := stringSlice(msg.Payload["critic_agents"]); len(critics) > 0 {
		return deliberation.GuardVerdict{Decision: deliberation.GuardRequireReview, Critics: critics}
	}

	return deliberation.GuardVerdict{
		Decision: deliberation.GuardDeny,
		Reason:   "governance_request without required_signers or critic_agents",
	}
}

// stringSlice coerces a Payload value into a []string, accepting both a
// native []string and the []interface{} shape a JSON-decoded Payload
// produces.
func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
