package strategies

import (
	"context"
	"errors"
	"testing"

	"github.com/acgs2/agentbus/internal/constitutional"
	"github.com/acgs2/agentbus/internal/maci"
	"github.com/acgs2/agentbus/internal/models"
)

func newTestMessage() *models.AgentMessage {
	return &models.AgentMessage{
		MessageID:          "m1",
		FromAgent:          "exec-1",
		ToAgent:             "jud-1",
		MessageType:        models.MessageGovernanceRequest,
		ConstitutionalHash: constitutional.DefaultHash,
		Content:            map[string]any{},
	}
}

func TestStaticHashStrategyStrict(t *testing.T) {
	s := NewStaticHashStrategy(true)
	msg := newTestMessage()
	result, err := s.Validate(context.Background(), msg)
	if err != nil || !result.IsValid {
		t.Fatalf("expected valid result, got %+v err=%v", result, err)
	}

	msg.ConstitutionalHash = "0000000000000000"
	result, err = s.Validate(context.Background(), msg)
	if err != nil || result.IsValid {
		t.Fatalf("expected denial on hash mismatch, got %+v", result)
	}
}

type fakeFailingStrategy struct{}

func (f *fakeFailingStrategy) Name() string                          { return "fake" }
func (f *fakeFailingStrategy) IsAvailable(ctx context.Context) bool   { return true }
func (f *fakeFailingStrategy) Validate(ctx context.Context, msg *models.AgentMessage) (models.ValidationResult, error) {
	return models.ValidationResult{}, errors.New("boom")
}

func TestCompositeStrategyFallsBackOnError(t *testing.T) {
	composite := NewCompositeStrategy(&fakeFailingStrategy{}, NewStaticHashStrategy(true))
	result, err := composite.Validate(context.Background(), newTestMessage())
	if err != nil {
		t.Fatalf("expected fallback to succeed, got err=%v", err)
	}
	if !result.IsValid {
		t.Fatalf("expected valid result from fallback strategy, got %+v", result)
	}
}

func TestCompositeStrategyDoesNotFallBackOnDeny(t *testing.T) {
	composite := NewCompositeStrategy(NewStaticHashStrategy(true))
	msg := newTestMessage()
	msg.ConstitutionalHash = "0000000000000000"
	result, err := composite.Validate(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsValid {
		t.Fatal("expected composite to surface the DENY, not treat it as a failure")
	}
}

func TestMACIWrapperRejectsDisallowedAction(t *testing.T) {
	registry := maci.NewRoleRegistry()
	registry.RegisterAgent("exec-1", models.RoleExecutive)
	enforcer := maci.NewEnforcer(registry, true)

	wrapped := NewMACIWrapperStrategy(NewStaticHashStrategy(true), enforcer)

	msg := newTestMessage()
	msg.MessageType = models.MessageConstitutionalValidation // requires "validate", executive cannot
	result, err := wrapped.Validate(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsValid {
		t.Fatal("expected MACI wrapper to deny an executive from validating")
	}
}
