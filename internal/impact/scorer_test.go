package impact

import (
	"testing"
	"time"

	"github.com/acgs2/agentbus/internal/models"
)

func criticalMessage() *models.AgentMessage {
	return &models.AgentMessage{
		FromAgent:   "agent-1",
		MessageType: models.MessageGovernanceRequest,
		Priority:    models.PriorityCritical,
		Content:     map[string]any{"text": "a critical security breach and governance violation"},
		Payload:     map[string]any{},
	}
}

func TestScoreAppliesPriorityBoost(t *testing.T) {
	s := NewScorer(DefaultWeights, 0.8, time.Minute)
	analysis := s.Score(criticalMessage())
	if analysis.Score < criticalPriorityBoost {
		t.Errorf("expected score floor of %v, got %v", criticalPriorityBoost, analysis.Score)
	}
}

func TestScoreLowImpactMessage(t *testing.T) {
	s := NewScorer(DefaultWeights, 0.8, time.Minute)
	msg := &models.AgentMessage{
		FromAgent:   "agent-2",
		MessageType: models.MessageHeartbeat,
		Priority:    models.PriorityLow,
		Content:     map[string]any{"text": "ping"},
		Payload:     map[string]any{},
	}
	analysis := s.Score(msg)
	if analysis.RequiresDeliberation {
		t.Errorf("expected a routine heartbeat to stay below threshold, got score %v", analysis.Score)
	}
}

func TestVolumeScoreWindowed(t *testing.T) {
	s := NewScorer(DefaultWeights, 0.8, 50*time.Millisecond)
	msg := &models.AgentMessage{FromAgent: "burst-agent", Content: map[string]any{}, Payload: map[string]any{}}

	for i := 0; i < 25; i++ {
		s.Score(msg)
	}
	elevated := s.volumeScore("burst-agent", time.Now())
	if elevated < 0.2 {
		t.Errorf("expected elevated volume score after 25 rapid calls, got %v", elevated)
	}

	time.Sleep(60 * time.Millisecond)
	decayed := s.volumeScore("burst-agent", time.Now())
	if decayed > 0.1 {
		t.Errorf("expected volume score to decay once the window has elapsed, got %v", decayed)
	}
}

func TestRouterForceDeliberation(t *testing.T) {
	s := NewScorer(DefaultWeights, 0.99, time.Minute)
	forced := false
	router := NewRouter(s, func(*models.AgentMessage) bool { return forced })

	msg := &models.AgentMessage{FromAgent: "a", Content: map[string]any{}, Payload: map[string]any{}}
	_, lane := router.Route(msg)
	if lane != LaneFast {
		t.Errorf("expected fast lane without forcing, got %s", lane)
	}

	forced = true
	msg2 := &models.AgentMessage{FromAgent: "a", Content: map[string]any{}, Payload: map[string]any{}}
	_, lane = router.Route(msg2)
	if lane != LaneDeliberation {
		t.Errorf("expected forced deliberation lane, got %s", lane)
	}
}
