package impact

import (
	"sync"

	"github.com/acgs2/agentbus/internal/models"
)

// Lane is the destination a message is routed to after scoring.
type Lane string

const (
	LaneFast         Lane = "fast"
	LaneDeliberation Lane = "deliberation"
)

// Router decides a message's lane from its impact score, mirroring
// agent_bus.py's `_requires_deliberation` check but with a configurable
// threshold (default 0.8, per spec.md section 4.5 and Open Question (f)).
type Router struct {
	scorer            *Scorer
	forceDeliberation func(*models.AgentMessage) bool

	mu     sync.Mutex
	forced map[string]string // message id -> reason, consumed on Route
}

// NewRouter builds a Router over the given Scorer. forceDeliberation, if
// non-nil, can force the deliberation lane regardless of score (e.g. for
// message types that always require human review).
func NewRouter(scorer *Scorer, forceDeliberation func(*models.AgentMessage) bool) *Router {
	return &Router{scorer: scorer, forceDeliberation: forceDeliberation}
}

// ForceDeliberation marks a specific message id for deliberation routing
// regardless of its score, satisfying spec.md section 4.5's public
// force_deliberation(message, reason) surface. The mark is consumed the
// next time that message passes through Route.
func (r *Router) ForceDeliberation(messageID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forced == nil {
		r.forced = make(map[string]string)
	}
	r.forced[messageID] = reason
}

// Route scores the message and returns both the analysis and the lane it
// belongs to, setting the message's ImpactScore as a side effect.
func (r *Router) Route(msg *models.AgentMessage) (Analysis, Lane) {
	analysis := r.scorer.Score(msg)
	msg.SetImpactScore(analysis.Score)

	if r.consumeForced(msg.MessageID) {
		return analysis, LaneDeliberation
	}
	if r.forceDeliberation != nil && r.forceDeliberation(msg) {
		return analysis, LaneDeliberation
	}
	if analysis.RequiresDeliberation {
		return analysis, LaneDeliberation
	}
	return analysis, LaneFast
}

func (r *Router) consumeForced(messageID string) bool {
	if messageID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forced == nil {
		return false
	}
	if _, ok := r.forced[messageID]; ok {
		delete(r.forced, messageID)
		return true
	}
	return false
}
