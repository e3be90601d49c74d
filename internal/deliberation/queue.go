// Package deliberation holds messages that exceed the impact threshold
// until a human reviewer or a quorum of agents approves or rejects them,
// grounded on
// original_source/deliberation_layer/deliberation_queue.py.
package deliberation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acgs2/agentbus/internal/models"
)

// Status is a DeliberationTask's lifecycle state.
type Status string

const (
	StatusPending           Status = "pending"
	StatusUnderReview       Status = "under_review"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusTimedOut          Status = "timed_out"
	StatusConsensusReached  Status = "consensus_reached"
)

// IsComplete reports whether a status is terminal.
func (s Status) IsComplete() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusTimedOut, StatusConsensusReached:
		return true
	default:
		return false
	}
}

// VoteType is an agent's position on a deliberation task.
type VoteType string

const (
	VoteApprove VoteType = "approve"
	VoteReject  VoteType = "reject"
	VoteAbstain VoteType = "abstain"
)

// Vote records a single agent's vote; a later vote from the same agent
// replaces the earlier one (spec.md §3 invariant).
type Vote struct {
	AgentID    string
	Vote       VoteType
	Reasoning  string
	Confidence float64
	Timestamp  time.Time
}

// Task is a single message awaiting deliberation.
type Task struct {
	TaskID             string
	Message            *models.AgentMessage
	Status             Status
	RequiredVotes       int
	ConsensusThreshold  float64
	TimeoutSeconds      int
	CurrentVotes        []Vote
	RequiresHuman       bool
	RequiresMultiAgent  bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
	HumanReviewer       string
	HumanDecision       Status
	HumanReasoning      string
}

// Queue manages deliberation tasks and their per-task watchdog timers.
type Queue struct {
	mu                 sync.Mutex
	tasks              map[string]*Task
	timers             map[string]*time.Timer
	consensusThreshold float64
	defaultTimeout     time.Duration

	Stats struct {
		TotalQueued       int
		Approved          int
		Rejected          int
		TimedOut          int
		ConsensusReached  int
	}
}

// NewQueue constructs a Queue with the given default consensus threshold
// (spec default 0.66) and default timeout (spec default 300s).
func NewQueue(consensusThreshold float64, defaultTimeout time.Duration) *Queue {
	return &Queue{
		tasks:              make(map[string]*Task),
		timers:             make(map[string]*time.Timer),
		consensusThreshold: consensusThreshold,
		defaultTimeout:     defaultTimeout,
	}
}

// Enqueue admits a message for deliberation and starts its watchdog timer.
// requiredVotes is the configured quorum size (spec.md §4.6's
// "required_votes"); 0 means the task carries no multi-agent vote and
// remains pending until a human decision or timeout resolves it.
func (q *Queue) Enqueue(msg *models.AgentMessage, requiresHuman bool, requiredVotes int, timeout time.Duration) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if timeout <= 0 {
		timeout = q.defaultTimeout
	}
	if requiredVotes < 0 {
		requiredVotes = 0
	}

	taskID := uuid.NewString()
	task := &Task{
		TaskID:             taskID,
		Message:            msg,
		Status:             StatusPending,
		RequiredVotes:      requiredVotes,
		ConsensusThreshold: q.consensusThreshold,
		TimeoutSeconds:     int(timeout.Seconds()),
		RequiresHuman:      requiresHuman,
		RequiresMultiAgent: requiredVotes > 0,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	q.tasks[taskID] = task
	q.Stats.TotalQueued++

	q.timers[taskID] = time.AfterFunc(timeout, func() { q.expire(taskID) })
	return taskID
}

func (q *Queue) expire(taskID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok || task.Status.IsComplete() {
		return
	}
	task.Status = StatusTimedOut
	task.UpdatedAt = time.Now()
	q.Stats.TimedOut++
}

// GetTask returns a task by id.
func (q *Queue) GetTask(taskID string) (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[taskID]
	return t, ok
}

// PendingTasks lists every task still awaiting a decision.
func (q *Queue) PendingTasks() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*Task
	for _, t := range q.tasks {
		if t.Status == StatusPending {
			out = append(out, t)
		}
	}
	return out
}

// SubmitVote records an agent's vote, replacing any earlier vote from the
// same agent, and checks for consensus. Returns false if the task is
// missing or already complete.
func (q *Queue) SubmitVote(taskID, agentID string, vote VoteType, reasoning string, confidence float64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok || task.Status.IsComplete() {
		return false
	}

	filtered := task.CurrentVotes[:0]
	for _, v := range task.CurrentVotes {
		if v.AgentID != agentID {
			filtered = append(filtered, v)
		}
	}
	task.CurrentVotes = append(filtered, Vote{
		AgentID:    agentID,
		Vote:       vote,
		Reasoning:  reasoning,
		Confidence: confidence,
		Timestamp:  time.Now(),
	})
	task.UpdatedAt = time.Now()

	switch q.checkConsensus(task) {
	case consensusApproved:
		task.Status = StatusConsensusReached
		q.Stats.ConsensusReached++
		q.stopTimer(taskID)
	case consensusRejected:
		task.Status = StatusRejected
		q.Stats.Rejected++
		q.stopTimer(taskID)
	}
	return true
}

type consensusOutcome int

const (
	consensusPending consensusOutcome = iota
	consensusApproved
	consensusRejected
)

// checkConsensus evaluates whether enough votes are in to resolve the
// task. Unlike original_source's `_check_consensus` (which only ever
// transitions to Approved and silently stalls otherwise), this also
// resolves to Rejected once every required vote is in but the approval
// ratio falls short of the threshold (see DESIGN.md Open Question (d)).
func (q *Queue) checkConsensus(task *Task) consensusOutcome {
	if task.RequiredVotes == 0 || len(task.CurrentVotes) < task.RequiredVotes {
		return consensusPending
	}
	approvals := 0
	for _, v := range task.CurrentVotes {
		if v.Vote == VoteApprove {
			approvals++
		}
	}
	ratio := float64(approvals) / float64(len(task.CurrentVotes))
	if ratio >= task.ConsensusThreshold {
		return consensusApproved
	}
	return consensusRejected
}

// SubmitHumanDecision records a reviewer's decision. It is only accepted
// while the task is UnderReview.
func (q *Queue) SubmitHumanDecision(taskID, reviewer string, decision Status, reasoning string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok || task.Status.IsComplete() || task.Status != StatusUnderReview {
		return false
	}

	task.HumanReviewer = reviewer
	task.HumanDecision = decision
	task.HumanReasoning = reasoning
	task.Status = decision
	task.UpdatedAt = time.Now()

	if decision == StatusApproved {
		q.Stats.Approved++
	} else {
		q.Stats.Rejected++
	}
	q.stopTimer(taskID)
	return true
}

// MarkUnderReview transitions a pending task into human review.
func (q *Queue) MarkUnderReview(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	task, ok := q.tasks[taskID]
	if !ok || task.Status.IsComplete() {
		return false
	}
	task.Status = StatusUnderReview
	task.UpdatedAt = time.Now()
	return true
}

func (q *Queue) stopTimer(taskID string) {
	if timer, ok := q.timers[taskID]; ok {
		timer.Stop()
		delete(q.timers, taskID)
	}
}

// Stop cancels every outstanding watchdog timer, e.g. on bus shutdown.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, timer := range q.timers {
		timer.Stop()
	}
	q.timers = make(map[string]*time.Timer)
}
