package maci

import (
	"testing"

	"github.com/acgs2/agentbus/internal/models"
)

func TestRolePermissions(t *testing.T) {
	reg := NewRoleRegistry()
	reg.RegisterAgent("exec-1", models.RoleExecutive)
	reg.RegisterAgent("leg-1", models.RoleLegislative)
	reg.RegisterAgent("jud-1", models.RoleJudicial)

	enforcer := NewEnforcer(reg, true)

	if v := enforcer.ValidateAction("exec-1", ActionPropose, "", ""); v != nil {
		t.Errorf("executive should be able to propose, got %v", v)
	}
	if v := enforcer.ValidateAction("exec-1", ActionValidate, "", ""); v == nil {
		t.Error("executive should not be able to validate")
	}
	if v := enforcer.ValidateAction("leg-1", ActionExtractRules, "", ""); v != nil {
		t.Errorf("legislative should be able to extract_rules, got %v", v)
	}
	if v := enforcer.ValidateAction("jud-1", ActionAudit, "", ""); v != nil {
		t.Errorf("judicial should be able to audit, got %v", v)
	}
}

func TestOnlyJudicialValidatesExecutiveOrLegislative(t *testing.T) {
	reg := NewRoleRegistry()
	reg.RegisterAgent("exec-1", models.RoleExecutive)
	reg.RegisterAgent("jud-1", models.RoleJudicial)
	enforcer := NewEnforcer(reg, true)

	if v := enforcer.ValidateAction("jud-1", ActionValidate, "", "exec-1"); v != nil {
		t.Errorf("judicial validating executive should be allowed, got %v", v)
	}
}

func TestSelfValidationRejected(t *testing.T) {
	reg := NewRoleRegistry()
	reg.RegisterAgent("jud-1", models.RoleJudicial)
	reg.RecordOutput("jud-1", "output-1")
	enforcer := NewEnforcer(reg, true)

	v := enforcer.ValidateAction("jud-1", ActionValidate, "output-1", "")
	if v == nil || v.Type != ViolationSelfValidation {
		t.Errorf("expected self-validation violation, got %v", v)
	}
}

func TestStrictModeRejectsUnregisteredAgent(t *testing.T) {
	enforcer := NewEnforcer(nil, true)
	v := enforcer.ValidateAction("ghost", ActionQuery, "", "")
	if v == nil || v.Type != ViolationNotAssigned {
		t.Errorf("expected not_assigned violation in strict mode, got %v", v)
	}
}

func TestNonStrictModeAllowsUnregisteredAgent(t *testing.T) {
	enforcer := NewEnforcer(nil, false)
	if v := enforcer.ValidateAction("ghost", ActionQuery, "", ""); v != nil {
		t.Errorf("non-strict mode should allow unregistered agents, got %v", v)
	}
}

func TestActionForMessageType(t *testing.T) {
	action, ok := ActionForMessageType(models.MessageGovernanceRequest)
	if !ok || action != ActionPropose {
		t.Errorf("GovernanceRequest should map to propose, got %v ok=%v", action, ok)
	}
	if _, ok := ActionForMessageType(models.MessageHeartbeat); ok {
		t.Error("heartbeat should have no MACI action mapping")
	}
}
