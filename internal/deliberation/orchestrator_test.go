package deliberation

import (
	"testing"
	"time"

	"github.com/acgs2/agentbus/internal/impact"
)

func TestProcessMessageApprovedByConsensus(t *testing.T) {
	q := NewQueue(0.66, time.Minute)
	o := NewOrchestrator(q, NewGuard())

	go func() {
		time.Sleep(10 * time.Millisecond)
		for _, tsk := range q.PendingTasks() {
			for i := 0; i < 5; i++ {
				q.SubmitVote(tsk.TaskID, string(rune('a'+i)), VoteApprove, "yes", 1.0)
			}
		}
	}()

	outcome := o.ProcessMessage(newMsg(), impact.Analysis{}, false, 5, 200*time.Millisecond, 5*time.Millisecond)
	if !outcome.Approved {
		t.Errorf("expected Approved outcome, got status=%s approved=%v", outcome.Status, outcome.Approved)
	}
	if outcome.Status != StatusConsensusReached {
		t.Errorf("expected ConsensusReached, got %s", outcome.Status)
	}
}

func TestProcessMessageTimesOut(t *testing.T) {
	q := NewQueue(0.66, time.Minute)
	o := NewOrchestrator(q, NewGuard())

	outcome := o.ProcessMessage(newMsg(), impact.Analysis{}, false, 5, 20*time.Millisecond, 5*time.Millisecond)
	if outcome.Approved {
		t.Error("expected outcome not approved on timeout")
	}
	if outcome.Status != StatusTimedOut {
		t.Errorf("expected TimedOut, got %s", outcome.Status)
	}
}

func TestProcessMessageRejected(t *testing.T) {
	q := NewQueue(0.66, time.Minute)
	o := NewOrchestrator(q, NewGuard())

	go func() {
		time.Sleep(10 * time.Millisecond)
		for _, tsk := range q.PendingTasks() {
			for i := 0; i < 5; i++ {
				q.SubmitVote(tsk.TaskID, string(rune('a'+i)), VoteReject, "no", 1.0)
			}
		}
	}()

	outcome := o.ProcessMessage(newMsg(), impact.Analysis{}, false, 5, 200*time.Millisecond, 5*time.Millisecond)
	if outcome.Approved {
		t.Error("expected not approved when rejected")
	}
	if outcome.Status != StatusRejected {
		t.Errorf("expected Rejected, got %s", outcome.Status)
	}
}
