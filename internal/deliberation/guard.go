package deliberation

import (
	"sync"
	"time"
)

// SignatureResult reports the outcome of a multi-signature collection
// round, mirroring opa_guard_mixin.py's SignatureResult.
type SignatureResult struct {
	DecisionID string
	Signed     map[string]string // signer -> reasoning
	Threshold  float64
	Satisfied  bool
}

// ReviewResult reports the outcome of a critic-agent review round.
type ReviewResult struct {
	DecisionID string
	Reviews    map[string]string // critic -> verdict
	Approved   bool

	critics map[string]bool // critics named when the round was opened
}

// Guard implements the VERIFY-BEFORE-ACT pattern: multi-signature
// collection and critic-agent review before a high-impact action is
// allowed to proceed, grounded on
// original_source/deliberation_layer/opa_guard_mixin.py.
type Guard struct {
	mu               sync.Mutex
	signatures       map[string]*SignatureResult
	requiredSigners  map[string]map[string]bool
	reviews          map[string]*ReviewResult
	criticAgents     map[string]bool
	auditLog         []string
}

func NewGuard() *Guard {
	return &Guard{
		signatures:      make(map[string]*SignatureResult),
		requiredSigners: make(map[string]map[string]bool),
		reviews:         make(map[string]*ReviewResult),
		criticAgents:    make(map[string]bool),
	}
}

// RegisterCriticAgent adds an agent to the pool eligible to review
// decisions.
func (g *Guard) RegisterCriticAgent(agentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.criticAgents[agentID] = true
}

// CollectSignatures opens a signature round for decisionID, requiring
// threshold (default 1.0, i.e. unanimous) of requiredSigners to sign.
func (g *Guard) CollectSignatures(decisionID string, requiredSigners []string, threshold float64) *SignatureResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	if threshold <= 0 {
		threshold = 1.0
	}
	signers := make(map[string]bool, len(requiredSigners))
	for _, s := range requiredSigners {
		signers[s] = true
	}
	g.requiredSigners[decisionID] = signers

	result := &SignatureResult{DecisionID: decisionID, Signed: make(map[string]string), Threshold: threshold}
	g.signatures[decisionID] = result
	g.audit("signature round opened for " + decisionID)
	return result
}

// SubmitSignature records a signer's signature if they belong to the
// required set, and updates the satisfaction state.
func (g *Guard) SubmitSignature(decisionID, signerID, reasoning string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	signers, ok := g.requiredSigners[decisionID]
	if !ok || !signers[signerID] {
		return false
	}
	result := g.signatures[decisionID]
	result.Signed[signerID] = reasoning
	ratio := float64(len(result.Signed)) / float64(len(signers))
	result.Satisfied = ratio >= result.Threshold
	g.audit(signerID + " signed decision " + decisionID)
	return true
}

// SubmitForReview opens a critic-review round for a decision among the
// given critic agents.
func (g *Guard) SubmitForReview(decisionID string, criticAgents []string) *ReviewResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	critics := make(map[string]bool, len(criticAgents))
	for _, c := range criticAgents {
		critics[c] = true
	}
	result := &ReviewResult{DecisionID: decisionID, Reviews: make(map[string]string), critics: critics}
	g.reviews[decisionID] = result
	g.audit("review round opened for " + decisionID)
	return result
}

// SubmitCriticReview records a critic's verdict ("approve"/"reject"). The
// round is approved only once every critic named in SubmitForReview has
// reviewed and none rejected.
func (g *Guard) SubmitCriticReview(decisionID, criticID, verdict string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	result, ok := g.reviews[decisionID]
	if !ok {
		return false
	}
	result.Reviews[criticID] = verdict

	approved := len(result.Reviews) > 0
	for _, v := range result.Reviews {
		if v != "approve" {
			approved = false
			break
		}
	}
	for c := range result.critics {
		if _, ok := result.Reviews[c]; !ok {
			approved = false
		}
	}
	result.Approved = approved
	g.audit(criticID + " reviewed decision " + decisionID + ": " + verdict)
	return true
}

// signatureSnapshot returns a point-in-time copy of the SignatureResult for
// decisionID, or nil if no round is open, safe for callers polling from
// outside the guard's own lock (e.g. the orchestrator's verify-before-act
// gate).
func (g *Guard) signatureSnapshot(decisionID string) *SignatureResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	result, ok := g.signatures[decisionID]
	if !ok {
		return nil
	}
	out := *result
	out.Signed = make(map[string]string, len(result.Signed))
	for k, v := range result.Signed {
		out.Signed[k] = v
	}
	return &out
}

// reviewSnapshot returns a point-in-time copy of the ReviewResult for
// decisionID, or nil if no round is open.
func (g *Guard) reviewSnapshot(decisionID string) *ReviewResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	result, ok := g.reviews[decisionID]
	if !ok {
		return nil
	}
	out := *result
	out.Reviews = make(map[string]string, len(result.Reviews))
	for k, v := range result.Reviews {
		out.Reviews[k] = v
	}
	return &out
}

// hasRejection reports whether any critic has returned a non-approve
// verdict, at which point further waiting cannot change the outcome.
func (r *ReviewResult) hasRejection() bool {
	for _, v := range r.Reviews {
		if v != "approve" {
			return true
		}
	}
	return false
}

func (g *Guard) audit(entry string) {
	g.auditLog = append(g.auditLog, time.Now().UTC().Format(time.RFC3339)+" "+entry)
}

// AuditLog returns a copy of the guard's accumulated audit trail.
func (g *Guard) AuditLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.auditLog))
	copy(out, g.auditLog)
	return out
}
