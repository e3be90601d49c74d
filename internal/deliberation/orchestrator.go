package deliberation

import (
	"fmt"
	"time"

	"github.com/acgs2/agentbus/internal/errs"
	"github.com/acgs2/agentbus/internal/impact"
	"github.com/acgs2/agentbus/internal/models"
)

// GuardDecision is the pre-action verification verdict the Guard renders
// ahead of the vote queue, the closed set from spec.md §4.6.
type GuardDecision string

const (
	GuardAllow             GuardDecision = "allow"
	GuardDeny              GuardDecision = "deny"
	GuardRequireSignatures GuardDecision = "require_signatures"
	GuardRequireReview     GuardDecision = "require_review"
)

// GuardVerdict is returned by a GuardPolicyFunc: the decision plus
// whichever signers/critics/threshold it implies.
type GuardVerdict struct {
	Decision           GuardDecision
	Reason             string
	RequiredSigners    []string
	SignatureThreshold float64
	Critics            []string
}

// GuardPolicyFunc renders the pre-action verification decision for a
// message given its impact analysis. A nil func is treated as always
// Allow, preserving the plain vote-queue flow.
type GuardPolicyFunc func(msg *models.AgentMessage, analysis impact.Analysis) GuardVerdict

// Orchestrator composes the impact router, queue, and guard into the
// end-to-end deliberation path a message follows once it is routed to
// the deliberation lane.
type Orchestrator struct {
	Queue *Queue
	Guard *Guard

	// GuardPolicy renders the verify-before-act decision ProcessMessage
	// consults before admitting a message to the vote queue. Nil means no
	// guard gate is applied and every message proceeds straight to the
	// vote queue, matching the orchestrator's original behavior.
	GuardPolicy GuardPolicyFunc
}

func NewOrchestrator(queue *Queue, guard *Guard) *Orchestrator {
	return &Orchestrator{Queue: queue, Guard: guard}
}

// Outcome is process_message's return shape, extended per spec.md §4.6 to
// carry the guard's own results alongside the vote-queue outcome.
type Outcome struct {
	TaskID   string
	Status   Status
	Approved bool

	GuardResult     *GuardVerdict
	SignatureResult *SignatureResult
	ReviewResult    *ReviewResult
	ProcessingTime  time.Duration
}

// Err reports nil when Approved, otherwise a wrapped errs.ErrDeliberationTimeout
// or errs.ErrGuardDenied matching Status, so callers that want a typed cause
// (rather than comparing Status strings) have one.
func (o Outcome) Err() error {
	if o.Approved {
		return nil
	}
	switch o.Status {
	case StatusTimedOut:
		return fmt.Errorf("%w: task %s", errs.ErrDeliberationTimeout, o.TaskID)
	case StatusRejected:
		return fmt.Errorf("%w: task %s", errs.ErrGuardDenied, o.TaskID)
	default:
		return fmt.Errorf("%w: task %s ended as %s", errs.ErrGuardDenied, o.TaskID, o.Status)
	}
}

// ProcessMessage runs the end-to-end deliberation flow: the policy guard's
// verify-before-act gate first (when a GuardPolicy is configured), then the
// vote queue. A guard Deny, or a failed signature/review round, terminates
// the message without ever enqueueing it for a vote; a guard Allow (or no
// GuardPolicy at all) proceeds straight to the requiredVotes-quorum vote
// queue, matching the orchestrator's original behavior (spec.md §4.6: "On
// Deny or failed signature/review, the message is terminated as Failed
// with guard metadata; on Approve, processing resumes from the router
// step").
func (o *Orchestrator) ProcessMessage(msg *models.AgentMessage, analysis impact.Analysis, requiresHuman bool, requiredVotes int, timeout time.Duration, poll time.Duration) Outcome {
	start := time.Now()
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}

	if o.GuardPolicy != nil {
		verdict := o.GuardPolicy(msg, analysis)
		switch verdict.Decision {
		case GuardDeny:
			return Outcome{
				Status:         StatusRejected,
				Approved:       false,
				GuardResult:    &verdict,
				ProcessingTime: time.Since(start),
			}
		case GuardRequireSignatures:
			decisionID := msg.MessageID
			o.Guard.CollectSignatures(decisionID, verdict.RequiredSigners, verdict.SignatureThreshold)
			sigResult := o.pollSignatures(decisionID, timeout, poll)
			outcome := Outcome{
				Status:          StatusRejected,
				GuardResult:     &verdict,
				SignatureResult: sigResult,
				ProcessingTime:  time.Since(start),
			}
			if sigResult != nil && sigResult.Satisfied {
				outcome.Status = StatusApproved
				outcome.Approved = true
			}
			return outcome
		case GuardRequireReview:
			decisionID := msg.MessageID
			o.Guard.SubmitForReview(decisionID, verdict.Critics)
			reviewResult := o.pollReview(decisionID, timeout, poll)
			outcome := Outcome{
				Status:         StatusRejected,
				GuardResult:    &verdict,
				ReviewResult:   reviewResult,
				ProcessingTime: time.Since(start),
			}
			if reviewResult != nil && reviewResult.Approved {
				outcome.Status = StatusApproved
				outcome.Approved = true
			}
			return outcome
		case GuardAllow:
			// fall through to the vote queue below.
		}
	}

	taskID := o.Queue.Enqueue(msg, requiresHuman, requiredVotes, timeout)

	deadline := time.Now().Add(timeout + poll)
	for time.Now().Before(deadline) {
		task, ok := o.Queue.GetTask(taskID)
		if !ok {
			break
		}
		if task.Status.IsComplete() {
			return Outcome{
				TaskID:         taskID,
				Status:         task.Status,
				Approved:       task.Status == StatusApproved || task.Status == StatusConsensusReached,
				ProcessingTime: time.Since(start),
			}
		}
		time.Sleep(poll)
	}

	task, _ := o.Queue.GetTask(taskID)
	status := StatusTimedOut
	if task != nil {
		status = task.Status
	}
	return Outcome{TaskID: taskID, Status: status, Approved: false, ProcessingTime: time.Since(start)}
}

// pollSignatures waits up to timeout for a signature round to reach
// satisfaction, per spec.md §4.6's "wait up to timeout for each required
// signer to submit a signature". Fails closed: a round that never
// satisfies by the deadline returns its last-known (unsatisfied) state.
func (o *Orchestrator) pollSignatures(decisionID string, timeout, poll time.Duration) *SignatureResult {
	deadline := time.Now().Add(timeout)
	for {
		result := o.Guard.signatureSnapshot(decisionID)
		if result == nil || result.Satisfied || time.Now().After(deadline) {
			return result
		}
		time.Sleep(poll)
	}
}

// pollReview waits up to timeout for a critic-review round to resolve:
// either every critic has approved, or at least one has rejected (in which
// case waiting further cannot change the outcome).
func (o *Orchestrator) pollReview(decisionID string, timeout, poll time.Duration) *ReviewResult {
	deadline := time.Now().Add(timeout)
	for {
		result := o.Guard.reviewSnapshot(decisionID)
		if result == nil || result.Approved || result.hasRejection() || time.Now().After(deadline) {
			return result
		}
		time.Sleep(poll)
	}
}
