package registry

import (
	"context"
	"testing"

	"github.com/acgs2/agentbus/internal/models"
)

func newRegistryWithTenantAgents(t *testing.T) *InMemoryRegistry {
	t.Helper()
	r := NewInMemoryRegistry("cdd01ef066bc6cf2")
	ctx := context.Background()
	r.Register(ctx, "agent-a", nil, map[string]any{"tenant_id": "tenant-1"})
	r.Register(ctx, "agent-b", map[string]any{"search": true}, map[string]any{"tenant_id": "tenant-2"})
	return r
}

func TestDirectRouterDeniesTenantMismatch(t *testing.T) {
	r := newRegistryWithTenantAgents(t)
	router := NewDirectRouter()
	ctx := context.Background()

	msg := &models.AgentMessage{FromAgent: "x", ToAgent: "agent-a", TenantID: "tenant-2"}
	_, ok, err := router.Route(ctx, msg, r)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected routing to be denied on tenant mismatch")
	}
}

func TestDirectRouterAllowsMatchingTenant(t *testing.T) {
	r := newRegistryWithTenantAgents(t)
	router := NewDirectRouter()
	ctx := context.Background()

	msg := &models.AgentMessage{FromAgent: "x", ToAgent: "agent-a", TenantID: "tenant-1"}
	target, ok, err := router.Route(ctx, msg, r)
	if err != nil || !ok || target != "agent-a" {
		t.Errorf("expected route to agent-a, got target=%s ok=%v err=%v", target, ok, err)
	}
}

func TestDirectRouterBroadcastExcludesSender(t *testing.T) {
	r := newRegistryWithTenantAgents(t)
	router := NewDirectRouter()
	ctx := context.Background()

	msg := &models.AgentMessage{FromAgent: "agent-a"}
	targets, err := router.Broadcast(ctx, msg, r, nil, "tenant-1")
	if err != nil {
		t.Fatal(err)
	}
	for _, target := range targets {
		if target == "agent-a" {
			t.Error("expected sender excluded from broadcast")
		}
	}
}

func TestDirectRouterBroadcastFiltersToSenderTenant(t *testing.T) {
	r := newRegistryWithTenantAgents(t)
	router := NewDirectRouter()
	ctx := context.Background()

	msg := &models.AgentMessage{FromAgent: "someone-else"}
	targets, err := router.Broadcast(ctx, msg, r, nil, "tenant-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 1 || targets[0] != "agent-a" {
		t.Errorf("expected broadcast limited to tenant-1's agent-a, got %v", targets)
	}
}

func TestCapabilityRouterMatchesRequiredCapabilities(t *testing.T) {
	r := newRegistryWithTenantAgents(t)
	router := NewCapabilityRouter()
	ctx := context.Background()

	msg := &models.AgentMessage{
		FromAgent: "x",
		Content:   map[string]any{"required_capabilities": []any{"search"}},
	}
	target, ok, err := router.Route(ctx, msg, r)
	if err != nil || !ok || target != "agent-b" {
		t.Errorf("expected route to agent-b, got target=%s ok=%v err=%v", target, ok, err)
	}
}

func TestCapabilityRouterNoMatchReturnsFalse(t *testing.T) {
	r := newRegistryWithTenantAgents(t)
	router := NewCapabilityRouter()
	ctx := context.Background()

	msg := &models.AgentMessage{
		FromAgent: "x",
		Content:   map[string]any{"required_capabilities": []any{"nonexistent"}},
	}
	_, ok, err := router.Route(ctx, msg, r)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no match for an unregistered capability")
	}
}
