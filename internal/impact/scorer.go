// Package impact scores a message's governance impact and decides whether
// it must be routed to the deliberation lane, grounded on
// original_source/deliberation_layer/impact_scorer.py.
package impact

import (
	"strings"
	"sync"
	"time"

	"github.com/acgs2/agentbus/internal/models"
)

// Weights are the exact per-factor weights from ScoringConfig, summing to
// 1.0.
type Weights struct {
	Semantic   float64
	Permission float64
	Volume     float64
	Context    float64
	Drift      float64
	Priority   float64
	Type       float64
}

// DefaultWeights mirrors ScoringConfig's field defaults.
var DefaultWeights = Weights{
	Semantic:   0.3,
	Permission: 0.2,
	Volume:     0.1,
	Context:    0.1,
	Drift:      0.1,
	Priority:   0.1,
	Type:       0.1,
}

const (
	criticalPriorityBoost = 0.9
	highSemanticBoost     = 0.8
)

// highImpactKeywords is the exact 28-word list from
// ImpactScorer.high_impact_keywords.
var highImpactKeywords = []string{
	"critical", "emergency", "security", "breach", "violation", "danger",
	"risk", "threat", "attack", "exploit", "vulnerability", "compromise",
	"governance", "policy", "regulation", "compliance", "legal", "audit",
	"financial", "transaction", "payment", "transfer", "blockchain",
	"consensus", "unauthorized", "abnormal", "suspicious", "alert",
}

// Analysis is the scored outcome for a single message, mirroring
// ImpactAnalysis.
type Analysis struct {
	Score              float64
	Factors            map[string]float64
	RequiresDeliberation bool
}

// Scorer computes a multi-factor impact score per message, tracking
// per-agent volume and drift history across calls.
type Scorer struct {
	weights Weights
	Threshold float64

	mu            sync.Mutex
	agentWindows  map[string][]time.Time // volume: sliding window of recent send times
	agentHistory  map[string][]float64   // drift: recent semantic scores
	volumeWindow  time.Duration
}

// NewScorer builds a Scorer with the given weights and deliberation
// threshold. volumeWindow bounds the volume factor's sliding window
// (Open Question (c): a genuine time-windowed rate, not a lifetime
// counter).
func NewScorer(weights Weights, threshold float64, volumeWindow time.Duration) *Scorer {
	if volumeWindow <= 0 {
		volumeWindow = time.Minute
	}
	return &Scorer{
		weights:      weights,
		Threshold:    threshold,
		agentWindows: make(map[string][]time.Time),
		agentHistory: make(map[string][]float64),
		volumeWindow: volumeWindow,
	}
}

func extractText(msg *models.AgentMessage) string {
	var parts []string
	if msg.Content != nil {
		if text, ok := msg.Content["text"].(string); ok {
			parts = append(parts, text)
		} else if len(msg.Content) > 0 {
			for _, v := range msg.Content {
				if s, ok := v.(string); ok {
					parts = append(parts, s)
				}
			}
		}
	}
	if msg.Payload != nil {
		if m, ok := msg.Payload["message"].(string); ok {
			parts = append(parts, m)
		}
	}
	return strings.Join(parts, " ")
}

func (s *Scorer) semanticScore(msg *models.AgentMessage) float64 {
	text := strings.ToLower(strings.TrimSpace(extractText(msg)))
	if text == "" {
		return 0.0
	}
	hits := 0
	for _, kw := range highImpactKeywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	switch {
	case hits >= 5:
		return 1.0
	case hits >= 3:
		return 0.8
	case hits > 0:
		return 0.5
	default:
		return 0.1
	}
}

func (s *Scorer) permissionScore(msg *models.AgentMessage) float64 {
	toolsRaw, ok := msg.Payload["tools"]
	if !ok {
		return 0.1
	}
	tools, ok := toolsRaw.([]string)
	if !ok || len(tools) == 0 {
		return 0.1
	}
	maxRisk := 0.1
	for _, tool := range tools {
		name := strings.ToLower(tool)
		risk := 0.1
		switch {
		case containsAny(name, "execute", "delete", "write", "submit", "transfer"):
			risk = 0.9
		case containsAny(name, "send", "update", "modify"):
			risk = 0.5
		case containsAny(name, "read", "get", "list", "view"):
			risk = 0.2
		}
		if risk > maxRisk {
			maxRisk = risk
		}
	}
	return maxRisk
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// volumeScore returns a windowed-rate-based score, recording the current
// call as a new event in the agent's sliding window.
func (s *Scorer) volumeScore(agentID string, now time.Time) float64 {
	if agentID == "" {
		return 0.1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	window := s.agentWindows[agentID]
	cutoff := now.Add(-s.volumeWindow)
	kept := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	rate := len(kept)
	kept = append(kept, now)
	s.agentWindows[agentID] = kept

	switch {
	case rate >= 150:
		return 1.0
	case rate >= 50:
		return 0.5
	case rate >= 20:
		return 0.2
	default:
		return 0.1
	}
}

func (s *Scorer) contextScore(msg *models.AgentMessage) float64 {
	base := 0.2
	if amount, ok := msg.Payload["amount"].(float64); ok && amount > 1000 {
		base += 0.4
	}
	return base
}

// driftScore tracks deviation from an agent's recent average semantic
// score, bounded to the last 20 observations.
func (s *Scorer) driftScore(agentID string, current float64) float64 {
	if agentID == "" {
		return 0.0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	hist := s.agentHistory[agentID]
	if len(hist) == 0 {
		s.agentHistory[agentID] = append(hist, current)
		return 0.0
	}
	sum := 0.0
	for _, v := range hist {
		sum += v
	}
	avg := sum / float64(len(hist))
	drift := current - avg
	if drift < 0 {
		drift = -drift
	}
	hist = append(hist, current)
	if len(hist) > 20 {
		hist = hist[1:]
	}
	s.agentHistory[agentID] = hist

	if drift*2.0 > 1.0 {
		return 1.0
	}
	return drift * 2.0
}

func priorityFactor(p models.Priority) float64 {
	switch p {
	case models.PriorityCritical:
		return 1.0
	case models.PriorityHigh:
		return 0.7
	case models.PriorityNormal:
		return 0.5
	case models.PriorityLow:
		return 0.2
	default:
		return 0.5
	}
}

func typeFactor(t models.MessageType) float64 {
	name := strings.ToLower(string(t))
	switch {
	case strings.Contains(name, "governance"), strings.Contains(name, "constitutional"):
		return 0.8
	case strings.Contains(name, "command"):
		return 0.4
	default:
		return 0.2
	}
}

// Score computes the weighted impact analysis for a message, recording
// per-agent volume and drift state as a side effect.
func (s *Scorer) Score(msg *models.AgentMessage) Analysis {
	agentID := msg.FromAgent
	semantic := s.semanticScore(msg)

	factors := map[string]float64{
		"semantic":   semantic,
		"permission": s.permissionScore(msg),
		"volume":     s.volumeScore(agentID, time.Now()),
		"context":    s.contextScore(msg),
		"drift":      s.driftScore(agentID, semantic),
		"priority":   priorityFactor(msg.Priority),
		"type":       typeFactor(msg.MessageType),
	}

	weighted := factors["semantic"]*s.weights.Semantic +
		factors["permission"]*s.weights.Permission +
		factors["volume"]*s.weights.Volume +
		factors["context"]*s.weights.Context +
		factors["drift"]*s.weights.Drift +
		factors["priority"]*s.weights.Priority +
		factors["type"]*s.weights.Type

	if factors["priority"] >= 0.9 && weighted < criticalPriorityBoost {
		weighted = criticalPriorityBoost
	}
	if factors["semantic"] >= 0.8 && weighted < highSemanticBoost {
		weighted = highSemanticBoost
	}
	if weighted > 1.0 {
		weighted = 1.0
	}

	return Analysis{
		Score:                weighted,
		Factors:              factors,
		RequiresDeliberation: weighted >= s.Threshold,
	}
}
