package deliberation

import (
	"testing"
	"time"
)

func TestQuorumResolvesOnMajority(t *testing.T) {
	v := NewVotingService(StrategyQuorum)
	id := v.CreateElection("m1", []string{"a", "b", "c"}, time.Minute)

	if !v.CastVote(id, "a", BallotApprove, "yes") {
		t.Fatal("expected vote to be accepted")
	}
	v.CastVote(id, "b", BallotApprove, "yes")

	decision, ok := v.Result(id)
	if !ok {
		t.Fatal("expected election to be resolved")
	}
	if decision != BallotApprove {
		t.Errorf("expected APPROVE with 2/3 quorum, got %s", decision)
	}
}

func TestUnanimousRequiresAllApprovals(t *testing.T) {
	v := NewVotingService(StrategyUnanimous)
	id := v.CreateElection("m1", []string{"a", "b"}, time.Minute)

	v.CastVote(id, "a", BallotApprove, "yes")
	if _, ok := v.Result(id); ok {
		t.Fatal("should not resolve until all participants have voted")
	}
	v.CastVote(id, "b", BallotDeny, "no")

	decision, ok := v.Result(id)
	if !ok {
		t.Fatal("expected resolution once a denial occurs")
	}
	if decision != BallotDeny {
		t.Errorf("expected DENY, got %s", decision)
	}
}

func TestSuperMajorityThreshold(t *testing.T) {
	v := NewVotingService(StrategySuperMajority)
	id := v.CreateElection("m1", []string{"a", "b", "c"}, time.Minute)

	v.CastVote(id, "a", BallotApprove, "yes")
	v.CastVote(id, "b", BallotApprove, "yes")

	decision, ok := v.Result(id)
	if !ok {
		t.Fatal("expected resolution at 2/3 super-majority")
	}
	if decision != BallotApprove {
		t.Errorf("expected APPROVE, got %s", decision)
	}
}

func TestNonParticipantCannotVote(t *testing.T) {
	v := NewVotingService(StrategyQuorum)
	id := v.CreateElection("m1", []string{"a"}, time.Minute)

	if v.CastVote(id, "intruder", BallotApprove, "yes") {
		t.Error("expected non-participant vote to be rejected")
	}
}

func TestExpiredElectionDefaultsToDeny(t *testing.T) {
	v := NewVotingService(StrategyQuorum)
	id := v.CreateElection("m1", []string{"a", "b"}, 1*time.Millisecond)

	time.Sleep(5 * time.Millisecond)

	decision, ok := v.Result(id)
	if !ok {
		t.Fatal("expected expired election to resolve")
	}
	if decision != BallotDeny {
		t.Errorf("expected fail-closed DENY on expiry, got %s", decision)
	}
}
