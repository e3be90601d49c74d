package models

import "time"

// MACIRole is the role a registered agent plays under role-separation
// enforcement. The empty string means "no role bound".
type MACIRole string

const (
	RoleExecutive   MACIRole = "executive"
	RoleLegislative MACIRole = "legislative"
	RoleJudicial    MACIRole = "judicial"
)

// AgentRecord is exclusively owned by the registry; unregistration removes
// it and any role mapping it owns.
type AgentRecord struct {
	AgentID      string
	AgentType    string
	Capabilities map[string]bool
	Metadata     map[string]any
	TenantID     string
	MACIRole     MACIRole
	RegisteredAt time.Time
	UpdatedAt    time.Time
}

// HasCapabilities reports whether the record satisfies every required
// capability.
func (a *AgentRecord) HasCapabilities(required []string) bool {
	for _, c := range required {
		if !a.Capabilities[c] {
			return false
		}
	}
	return true
}
