package core

import (
	"math"

	"github.com/axiomesh/govern/repo"
)

const bpsDenominator = uint64(repo.BpsDenominator)

func newVoteTally(proposalID string, memberCount, createdAt uint64) *VoteTally {
	return &VoteTally{
		ProposalID:        proposalID,
		CreatedAt:         createdAt,
		LockedMemberCount: memberCount,
	}
}

// RecordVote adds one vote. Duplicate detection happens against the stored
// Vote record before this is called; the tally itself only counts.
func (t *VoteTally) RecordVote(approve bool) {
	if approve {
		t.YesVotes++
	}
	t.TotalVotes++
}

// ParticipationBps is total_votes / locked_member_count in basis points,
// floored. Zero locked count reads as 0 instead of faulting; it can only
// happen with corrupted state.
func (t *VoteTally) ParticipationBps() uint64 {
	if t.LockedMemberCount == 0 {
		return 0
	}
	return t.TotalVotes * bpsDenominator / t.LockedMemberCount
}

// ApprovalBps is yes_votes / total_votes in basis points, floored.
func (t *VoteTally) ApprovalBps() uint64 {
	if t.TotalVotes == 0 {
		return 0
	}
	return t.YesVotes * bpsDenominator / t.TotalVotes
}

// MeetsThresholds reports whether both quorum and majority are satisfied.
// Comparisons cross-multiply instead of dividing so there is no rounding.
func (t *VoteTally) MeetsThresholds(quorumBps, majorityBps uint16) bool {
	if t.TotalVotes == 0 || t.LockedMemberCount == 0 {
		return false
	}

	quorum := uint64(clampBps(quorumBps))
	majority := uint64(clampBps(majorityBps))

	meetsParticipation := t.TotalVotes*bpsDenominator >= quorum*t.LockedMemberCount
	meetsMajority := t.YesVotes*bpsDenominator >= majority*t.TotalVotes

	return meetsParticipation && meetsMajority
}

// IsDefeatInevitable reports whether no sequence of further YES votes from
// the remaining members can satisfy the thresholds. Exact equality at the
// majority boundary is NOT inevitable defeat: the proposal can still pass.
func (t *VoteTally) IsDefeatInevitable(quorumBps, majorityBps uint16) bool {
	if t.LockedMemberCount == 0 {
		return false
	}
	if t.TotalVotes > t.LockedMemberCount {
		// corrupted tally, never auto-reject on it
		return false
	}

	quorum := uint64(clampBps(quorumBps))
	majority := uint64(clampBps(majorityBps))

	remaining := t.LockedMemberCount - t.TotalVotes
	maxPossibleYes := t.YesVotes + remaining
	maxPossibleTotal := t.LockedMemberCount

	participationReachable := maxPossibleTotal*bpsDenominator >= quorum*t.LockedMemberCount
	majorityReachable := maxPossibleYes*bpsDenominator >= majority*maxPossibleTotal

	return participationReachable && !majorityReachable
}

// IsExpired reports whether now is at or past created_at + period. The
// deadline saturates so a created_at near the top of the range cannot wrap
// and read as "not expired". The boundary instant itself is expired.
func (t *VoteTally) IsExpired(votingPeriod, now uint64) bool {
	deadline := t.CreatedAt + votingPeriod
	if deadline < t.CreatedAt {
		deadline = math.MaxUint64
	}
	return now >= deadline
}

func clampBps(v uint16) uint16 {
	if v > repo.BpsDenominator {
		return repo.BpsDenominator
	}
	return v
}
