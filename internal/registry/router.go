package registry

import (
	"context"

	"github.com/acgs2/agentbus/internal/models"
	"github.com/acgs2/agentbus/internal/tenant"
)

// Router resolves the target agent(s) for a message, grounded on
// registry.py's DirectMessageRouter/CapabilityBasedRouter.
type Router interface {
	Route(ctx context.Context, msg *models.AgentMessage, reg Registry) (string, bool, error)
	Broadcast(ctx context.Context, msg *models.AgentMessage, reg Registry, exclude []string, senderTenant string) ([]string, error)
}

// DirectRouter routes strictly to msg.ToAgent, denying delivery on a
// tenant mismatch between sender and recipient.
type DirectRouter struct{}

func NewDirectRouter() *DirectRouter { return &DirectRouter{} }

func (d *DirectRouter) Route(ctx context.Context, msg *models.AgentMessage, reg Registry) (string, bool, error) {
	target := msg.ToAgent
	if target == "" {
		return "", false, nil
	}
	exists, err := reg.Exists(ctx, target)
	if err != nil || !exists {
		return "", false, err
	}
	rec, ok, err := reg.Get(ctx, target)
	if err != nil || !ok {
		return "", false, err
	}
	if tenant.Normalize(msg.TenantID) != tenant.Normalize(extractTenantID(rec)) {
		return "", false, nil
	}
	return target, true, nil
}

// Broadcast fans out to every registered agent in senderTenant, excluding
// the sender itself and any caller-supplied exclusions. An agent whose
// tenant cannot be determined, or that belongs to a different tenant, is
// excluded rather than left for the per-target SendMessage call to reject
// (spec.md §4.1/§4.7: "all registered agents in the same tenant").
func (d *DirectRouter) Broadcast(ctx context.Context, msg *models.AgentMessage, reg Registry, exclude []string, senderTenant string) ([]string, error) {
	all, err := reg.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	excludeSet := toSet(exclude)
	if msg.FromAgent != "" {
		excludeSet[msg.FromAgent] = true
	}
	normalizedSender := tenant.Normalize(senderTenant)
	out := make([]string, 0, len(all))
	for _, a := range all {
		if excludeSet[a] {
			continue
		}
		rec, ok, err := reg.Get(ctx, a)
		if err != nil {
			return nil, err
		}
		if !ok || tenant.Normalize(extractTenantID(rec)) != normalizedSender {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func extractTenantID(rec *AgentRecord) string {
	if rec.TenantID != "" {
		return rec.TenantID
	}
	if v, ok := rec.Metadata["tenant_id"].(string); ok {
		return v
	}
	return ""
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}

// CapabilityRouter falls back to matching msg.Content["required_capabilities"]
// against each candidate agent's registered capabilities when no explicit
// target is set or reachable.
type CapabilityRouter struct{}

func NewCapabilityRouter() *CapabilityRouter { return &CapabilityRouter{} }

func (c *CapabilityRouter) Route(ctx context.Context, msg *models.AgentMessage, reg Registry) (string, bool, error) {
	if msg.ToAgent != "" {
		exists, err := reg.Exists(ctx, msg.ToAgent)
		if err != nil {
			return "", false, err
		}
		if exists {
			return msg.ToAgent, true, nil
		}
	}

	required := requiredCapabilities(msg)
	if len(required) == 0 {
		return "", false, nil
	}

	all, err := reg.ListAgents(ctx)
	if err != nil {
		return "", false, err
	}
	for _, agentID := range all {
		rec, ok, err := reg.Get(ctx, agentID)
		if err != nil {
			return "", false, err
		}
		if ok && hasAllCapabilities(rec, required) {
			return agentID, true, nil
		}
	}
	return "", false, nil
}

// Broadcast matches capabilities within senderTenant only, for the same
// reason DirectRouter filters: tenant isolation is the router's job, not
// something left for each per-target delivery to enforce.
func (c *CapabilityRouter) Broadcast(ctx context.Context, msg *models.AgentMessage, reg Registry, exclude []string, senderTenant string) ([]string, error) {
	required := requiredCapabilities(msg)
	excludeSet := toSet(exclude)
	if msg.FromAgent != "" {
		excludeSet[msg.FromAgent] = true
	}
	normalizedSender := tenant.Normalize(senderTenant)

	all, err := reg.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	var matching []string
	for _, agentID := range all {
		if excludeSet[agentID] {
			continue
		}
		rec, ok, err := reg.Get(ctx, agentID)
		if err != nil {
			return nil, err
		}
		if !ok || tenant.Normalize(extractTenantID(rec)) != normalizedSender {
			continue
		}
		if len(required) == 0 || hasAllCapabilities(rec, required) {
			matching = append(matching, agentID)
		}
	}
	return matching, nil
}

func requiredCapabilities(msg *models.AgentMessage) []string {
	raw, ok := msg.Content["required_capabilities"]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func hasAllCapabilities(rec *AgentRecord, required []string) bool {
	for _, cap := range required {
		if _, ok := rec.Capabilities[cap]; !ok {
			return false
		}
	}
	return true
}
