package deliberation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// VotingStrategy selects a quorum rule for an Election, exact three
// strategies from original_source/deliberation_layer/voting_service.py.
type VotingStrategy string

const (
	StrategyQuorum        VotingStrategy = "quorum"        // 50% + 1
	StrategyUnanimous     VotingStrategy = "unanimous"      // 100%
	StrategySuperMajority VotingStrategy = "super-majority" // 2/3
)

// BallotDecision is a participant's cast vote in an Election.
type BallotDecision string

const (
	BallotApprove BallotDecision = "APPROVE"
	BallotDeny    BallotDecision = "DENY"
	BallotAbstain BallotDecision = "ABSTAIN"
)

// Ballot is one participant's vote.
type Ballot struct {
	AgentID   string
	Decision  BallotDecision
	Reason    string
	Timestamp time.Time
}

// ElectionStatus tracks an Election's lifecycle.
type ElectionStatus string

const (
	ElectionOpen    ElectionStatus = "OPEN"
	ElectionClosed  ElectionStatus = "CLOSED"
	ElectionExpired ElectionStatus = "EXPIRED"
)

// Election is a single multi-agent vote over a message.
type Election struct {
	ElectionID   string
	MessageID    string
	Strategy     VotingStrategy
	Participants map[string]bool
	Votes        map[string]Ballot
	Status       ElectionStatus
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// VotingService manages concurrent elections, grounded on
// voting_service.py's VotingService.
type VotingService struct {
	mu              sync.Mutex
	defaultStrategy VotingStrategy
	elections       map[string]*Election
}

func NewVotingService(defaultStrategy VotingStrategy) *VotingService {
	return &VotingService{
		defaultStrategy: defaultStrategy,
		elections:       make(map[string]*Election),
	}
}

// CreateElection opens a new election for a message among participants,
// expiring after timeout.
func (v *VotingService) CreateElection(messageID string, participants []string, timeout time.Duration) string {
	v.mu.Lock()
	defer v.mu.Unlock()

	set := make(map[string]bool, len(participants))
	for _, p := range participants {
		set[p] = true
	}
	electionID := uuid.NewString()
	v.elections[electionID] = &Election{
		ElectionID:   electionID,
		MessageID:    messageID,
		Strategy:     v.defaultStrategy,
		Participants: set,
		Votes:        make(map[string]Ballot),
		Status:       ElectionOpen,
		CreatedAt:    time.Now(),
		ExpiresAt:    time.Now().Add(timeout),
	}
	return electionID
}

// CastVote records a ballot if the agent is a registered participant and
// the election is still open, and checks for early resolution.
func (v *VotingService) CastVote(electionID, agentID string, decision BallotDecision, reason string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	election, ok := v.elections[electionID]
	if !ok || election.Status != ElectionOpen || !election.Participants[agentID] {
		return false
	}
	election.Votes[agentID] = Ballot{AgentID: agentID, Decision: decision, Reason: reason, Timestamp: time.Now()}
	v.checkResolution(election)
	return true
}

func (v *VotingService) checkResolution(e *Election) {
	total := len(e.Participants)
	approvals, denials := 0, 0
	for _, b := range e.Votes {
		switch b.Decision {
		case BallotApprove:
			approvals++
		case BallotDeny:
			denials++
		}
	}

	resolved := false
	switch e.Strategy {
	case StrategyQuorum:
		if approvals > total/2 {
			resolved = true
		} else if denials >= total/2 {
			resolved = true
		}
	case StrategyUnanimous:
		if approvals == total {
			resolved = true
		} else if denials > 0 {
			resolved = true
		}
	case StrategySuperMajority:
		if float64(approvals) >= float64(total)*2/3 {
			resolved = true
		} else if float64(denials) > float64(total)/3 {
			resolved = true
		}
	}
	if resolved {
		e.Status = ElectionClosed
	}
}

// Result computes an election's decision; expired elections default to
// DENY (spec.md §7 fail-closed requirement).
func (v *VotingService) Result(electionID string) (BallotDecision, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	election, ok := v.elections[electionID]
	if !ok {
		return "", false
	}

	if election.Status == ElectionOpen && time.Now().After(election.ExpiresAt) {
		election.Status = ElectionExpired
	}
	if election.Status == ElectionExpired {
		return BallotDeny, true
	}
	if election.Status == ElectionClosed {
		approvals := 0
		for _, b := range election.Votes {
			if b.Decision == BallotApprove {
				approvals++
			}
		}
		total := len(election.Participants)
		decided := BallotDeny
		switch election.Strategy {
		case StrategyQuorum:
			if approvals > total/2 {
				decided = BallotApprove
			}
		case StrategyUnanimous:
			if approvals == total {
				decided = BallotApprove
			}
		case StrategySuperMajority:
			if float64(approvals) >= float64(total)*2/3 {
				decided = BallotApprove
			}
		}
		return decided, true
	}
	return "", false
}
