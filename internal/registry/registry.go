// Package registry implements agent registration and message routing,
// grounded on original_source/registry.py's InMemoryAgentRegistry,
// RedisAgentRegistry, DirectMessageRouter, and CapabilityBasedRouter.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/acgs2/agentbus/internal/models"
)

// AgentRecord is a registered agent's bus-visible state.
type AgentRecord struct {
	AgentID             string         `json:"agent_id"`
	Capabilities        map[string]any `json:"capabilities"`
	Metadata            map[string]any `json:"metadata"`
	TenantID            string         `json:"tenant_id,omitempty"`
	RegisteredAt        time.Time      `json:"registered_at"`
	UpdatedAt           time.Time      `json:"updated_at,omitempty"`
	ConstitutionalHash  string         `json:"constitutional_hash"`
}

// Registry is the agent-directory contract every bus component routes
// through; every implementation must guard its own state — unlike teacher
// `_teacher_services/agent-registry/go/main.go`'s unguarded `ar.agents`
// map, callers here never reach into registry internals directly.
type Registry interface {
	Register(ctx context.Context, agentID string, capabilities, metadata map[string]any) (bool, error)
	Unregister(ctx context.Context, agentID string) (bool, error)
	Get(ctx context.Context, agentID string) (*AgentRecord, bool, error)
	ListAgents(ctx context.Context) ([]string, error)
	Exists(ctx context.Context, agentID string) (bool, error)
	UpdateMetadata(ctx context.Context, agentID string, metadata map[string]any) (bool, error)
	Clear(ctx context.Context) error
}

// InMemoryRegistry is a mutex-guarded, single-instance Registry.
type InMemoryRegistry struct {
	mu                 sync.RWMutex
	agents             map[string]*AgentRecord
	constitutionalHash string
}

// NewInMemoryRegistry constructs an empty registry bound to hash.
func NewInMemoryRegistry(constitutionalHash string) *InMemoryRegistry {
	return &InMemoryRegistry{
		agents:             make(map[string]*AgentRecord),
		constitutionalHash: constitutionalHash,
	}
}

func (r *InMemoryRegistry) Register(ctx context.Context, agentID string, capabilities, metadata map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[agentID]; exists {
		return false, nil
	}
	if capabilities == nil {
		capabilities = map[string]any{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	r.agents[agentID] = &AgentRecord{
		AgentID:            agentID,
		Capabilities:       capabilities,
		Metadata:           metadata,
		RegisteredAt:       time.Now().UTC(),
		ConstitutionalHash: r.constitutionalHash,
	}
	return true, nil
}

func (r *InMemoryRegistry) Unregister(ctx context.Context, agentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[agentID]; !exists {
		return false, nil
	}
	delete(r.agents, agentID)
	return true, nil
}

func (r *InMemoryRegistry) Get(ctx context.Context, agentID string) (*AgentRecord, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.agents[agentID]
	return rec, ok, nil
}

func (r *InMemoryRegistry) ListAgents(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for id := range r.agents {
		out = append(out, id)
	}
	return out, nil
}

func (r *InMemoryRegistry) Exists(ctx context.Context, agentID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[agentID]
	return ok, nil
}

func (r *InMemoryRegistry) UpdateMetadata(ctx context.Context, agentID string, metadata map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[agentID]
	if !ok {
		return false, nil
	}
	for k, v := range metadata {
		rec.Metadata[k] = v
	}
	rec.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *InMemoryRegistry) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[string]*AgentRecord)
	return nil
}

// AgentCount returns the number of registered agents.
func (r *InMemoryRegistry) AgentCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
