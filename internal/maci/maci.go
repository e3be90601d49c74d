// Package maci enforces role-based action separation between Executive,
// Legislative, and Judicial agents, grounded on
// original_source/maci_enforcement.py.
package maci

import (
	"fmt"
	"sync"

	"github.com/acgs2/agentbus/internal/errs"
	"github.com/acgs2/agentbus/internal/models"
)

// Action is one of the operations an agent may request permission for.
type Action string

const (
	ActionPropose            Action = "propose"
	ActionValidate           Action = "validate"
	ActionExtractRules       Action = "extract_rules"
	ActionSynthesize         Action = "synthesize"
	ActionAudit              Action = "audit"
	ActionQuery              Action = "query"
	ActionManagePolicy       Action = "manage_policy"
	ActionEmergencyCooldown  Action = "emergency_cooldown"
)

// rolePermissions is the exact role -> allowed-actions matrix from
// maci_enforcement.py's ROLE_PERMISSIONS.
var rolePermissions = map[models.MACIRole]map[Action]bool{
	models.RoleExecutive: {
		ActionPropose:    true,
		ActionSynthesize: true,
		ActionQuery:      true,
	},
	models.RoleLegislative: {
		ActionExtractRules: true,
		ActionSynthesize:   true,
		ActionQuery:        true,
	},
	models.RoleJudicial: {
		ActionValidate:          true,
		ActionAudit:             true,
		ActionQuery:             true,
		ActionEmergencyCooldown: true,
	},
}

// validationConstraints says which target roles a validating role may
// validate: only Judicial may validate Executive/Legislative outputs.
var validationConstraints = map[models.MACIRole]map[models.MACIRole]bool{
	models.RoleJudicial: {
		models.RoleExecutive:   true,
		models.RoleLegislative: true,
	},
}

// messageTypeAction maps an AgentMessage's type to the MACI action it
// requests, exact mapping from MACIValidationStrategy.validate.
var messageTypeAction = map[models.MessageType]Action{
	models.MessageGovernanceRequest:        ActionPropose,
	models.MessageConstitutionalValidation: ActionValidate,
	models.MessageTaskRequest:              ActionSynthesize,
	models.MessageQuery:                    ActionQuery,
	models.MessageAuditLog:                 ActionAudit,
}

// ActionForMessageType returns the MACI action a message type requests,
// and whether a mapping exists at all.
func ActionForMessageType(t models.MessageType) (Action, bool) {
	a, ok := messageTypeAction[t]
	return a, ok
}

// ViolationType tags the reason validate_action refused a request.
type ViolationType string

const (
	ViolationNotAssigned    ViolationType = "not_assigned"
	ViolationRoleViolation  ViolationType = "role_violation"
	ViolationCrossRole      ViolationType = "cross_role"
	ViolationSelfValidation ViolationType = "self_validation"
	ViolationTargetNotFound ViolationType = "target_not_found"
)

// Violation is returned (never panicked) when an action is refused.
type Violation struct {
	Type    ViolationType
	AgentID string
	Message string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("maci violation (%s) for agent %s: %s", v.Type, v.AgentID, v.Message)
}

// Unwrap lets errors.Is(err, errs.ErrRoleSeparation) identify any
// Violation regardless of its specific ViolationType.
func (v *Violation) Unwrap() error { return errs.ErrRoleSeparation }

// AgentRecord tracks an agent's assigned role and the outputs it produced,
// mirroring MACIAgentRecord.
type AgentRecord struct {
	AgentID string
	Role    models.MACIRole
	outputs map[string]bool
}

func (r *AgentRecord) canPerform(action Action) bool {
	return rolePermissions[r.Role][action]
}

func (r *AgentRecord) canValidateRole(target models.MACIRole) bool {
	return validationConstraints[r.Role][target]
}

func (r *AgentRecord) ownsOutput(outputID string) bool {
	return r.outputs[outputID]
}

// RoleRegistry tracks which role each agent holds and which outputs each
// agent has produced, mirroring MACIRoleRegistry.
type RoleRegistry struct {
	mu          sync.RWMutex
	agents      map[string]*AgentRecord
	outputOwner map[string]string
}

func NewRoleRegistry() *RoleRegistry {
	return &RoleRegistry{
		agents:      make(map[string]*AgentRecord),
		outputOwner: make(map[string]string),
	}
}

func (r *RoleRegistry) RegisterAgent(agentID string, role models.MACIRole) *AgentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := &AgentRecord{AgentID: agentID, Role: role, outputs: make(map[string]bool)}
	r.agents[agentID] = rec
	return rec
}

func (r *RoleRegistry) UnregisterAgent(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, agentID)
	for oid, owner := range r.outputOwner {
		if owner == agentID {
			delete(r.outputOwner, oid)
		}
	}
}

func (r *RoleRegistry) GetAgent(agentID string) (*AgentRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.agents[agentID]
	return rec, ok
}

func (r *RoleRegistry) RecordOutput(agentID, outputID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.agents[agentID]; ok {
		rec.outputs[outputID] = true
		r.outputOwner[outputID] = agentID
	}
}

func (r *RoleRegistry) OutputProducer(outputID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.outputOwner[outputID]
	return owner, ok
}

// Enforcer validates that an agent's requested action is permitted by its
// MACI role, mirroring MACIEnforcer.
type Enforcer struct {
	Registry   *RoleRegistry
	StrictMode bool
}

func NewEnforcer(registry *RoleRegistry, strictMode bool) *Enforcer {
	if registry == nil {
		registry = NewRoleRegistry()
	}
	return &Enforcer{Registry: registry, StrictMode: strictMode}
}

// ValidateAction checks whether agentID may perform action, optionally
// against a target output or target agent. It returns a *Violation
// (never panics) when the action is refused.
func (e *Enforcer) ValidateAction(agentID string, action Action, targetOutputID, targetAgentID string) *Violation {
	rec, ok := e.Registry.GetAgent(agentID)
	if !ok {
		if e.StrictMode {
			return &Violation{Type: ViolationNotAssigned, AgentID: agentID, Message: "agent has no assigned MACI role"}
		}
		return nil
	}

	if !rec.canPerform(action) {
		return &Violation{Type: ViolationRoleViolation, AgentID: agentID, Message: fmt.Sprintf("role %s may not perform action %s", rec.Role, action)}
	}

	if action != ActionValidate {
		return nil
	}

	if targetAgentID != "" {
		target, ok := e.Registry.GetAgent(targetAgentID)
		if !ok {
			if e.StrictMode {
				return &Violation{Type: ViolationTargetNotFound, AgentID: agentID, Message: "target agent not found: " + targetAgentID}
			}
		} else if !rec.canValidateRole(target.Role) {
			return &Violation{Type: ViolationCrossRole, AgentID: agentID, Message: fmt.Sprintf("role %s may not validate role %s", rec.Role, target.Role)}
		}
	}

	if targetOutputID != "" {
		producerID, hasProducer := e.Registry.OutputProducer(targetOutputID)
		if (hasProducer && producerID == agentID) || rec.ownsOutput(targetOutputID) {
			return &Violation{Type: ViolationSelfValidation, AgentID: agentID, Message: "agent cannot validate its own output: " + targetOutputID}
		}

		if hasProducer {
			producer, ok := e.Registry.GetAgent(producerID)
			if !ok {
				if e.StrictMode {
					return &Violation{Type: ViolationTargetNotFound, AgentID: agentID, Message: "producer of output not found: " + targetOutputID}
				}
			} else if !rec.canValidateRole(producer.Role) {
				return &Violation{Type: ViolationCrossRole, AgentID: agentID, Message: fmt.Sprintf("role %s may not validate role %s", rec.Role, producer.Role)}
			}
		}
	}

	return nil
}
