package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiomesh/govern/repo"
)

const dayNanos = uint64(24 * time.Hour)

type testClock struct {
	now uint64
}

func (c *testClock) advance(d uint64) {
	c.now += d
}

func newTestEngine(t *testing.T) (*Engine, *MemStore, *testClock) {
	t.Helper()

	cfg := repo.DefaultConfig(t.TempDir())
	cfg.Log.Level = "error"

	store := NewMemStore()
	engine := NewEngine(cfg, store)

	clock := &testClock{now: uint64(time.Hour)}
	engine.Now = func() uint64 { return clock.now }

	return engine, store, clock
}

// seedMembers adds members directly at the storage level, bypassing
// governance, so tests can shape member-driven groups.
func seedMembers(t *testing.T, e *Engine, groupID string, accounts ...string) {
	t.Helper()

	s := newStaged(e.store)
	for _, account := range accounts {
		require.Nil(t, e.addMemberRecord(s, groupID, account, "seed", false, e.now()))
	}
	s.Commit()
}

// newVotingGroup creates a member-driven group with the given thresholds and
// extra members beyond the owner, then advances the clock so every member's
// joined_at predates any proposal created afterwards.
func newVotingGroup(t *testing.T, e *Engine, clock *testClock, quorumBps, majorityBps uint16, members ...string) string {
	t.Helper()

	const groupID = "dao"
	require.Nil(t, e.CreateGroup(groupID, "owner", GroupOptions{
		MemberDriven: true,
		VotingConfig: &VotingConfig{
			ParticipationQuorumBps: quorumBps,
			MajorityThresholdBps:   majorityBps,
			VotingPeriod:           7 * dayNanos,
		},
	}))
	seedMembers(t, e, groupID, members...)
	clock.advance(uint64(time.Minute))
	return groupID
}

func boolPtr(b bool) *bool { return &b }

func TestCreateProposalRequiresMemberDrivenGroup(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	require.Nil(t, engine.CreateGroup("plain", "owner", GroupOptions{}))

	_, err := engine.CreateProposal("plain", "owner", CustomProposal, Payload{Title: "t", Description: "d"}, nil)
	assert.ErrorIs(t, err, ErrNotMemberDriven)
}

func TestCreateProposalByNonMember(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	group := newVotingGroup(t, engine, clock, 5100, 5001, "m1")

	_, err := engine.CreateProposal(group, "stranger", CustomProposal, Payload{Title: "t", Description: "d"}, nil)
	assert.ErrorIs(t, err, ErrNotAMember)
}

func TestCreateProposalPayloadValidation(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	group := newVotingGroup(t, engine, clock, 5100, 5001, "m1", "m2", "m3")

	badQuorum := uint16(10001)
	shortPeriod := uint64(time.Minute)

	tests := []struct {
		name    string
		kind    ProposalKind
		payload Payload
		wantErr error
	}{
		{"ban missing target", Ban, Payload{}, ErrInvalidPayload},
		{"remove missing target", RemoveMember, Payload{}, ErrInvalidPayload},
		{"transfer missing new owner", TransferOwnership, Payload{}, ErrInvalidPayload},
		{"transfer to non-member", TransferOwnership, Payload{NewOwner: "stranger"}, ErrTargetNotMember},
		{"invite existing member", MemberInvite, Payload{TargetUser: "m1"}, ErrAlreadyMember},
		{"permission change bad level", PermissionChange, Payload{TargetUser: "m1", Level: 7}, ErrInvalidPayload},
		{"permission change non-member", PermissionChange, Payload{TargetUser: "stranger", Level: 2}, ErrTargetNotMember},
		{"grant zero level", PathPermissionGrant, Payload{TargetUser: "m1", Path: "groups/dao/content", Level: 0}, ErrInvalidPayload},
		{"grant outside group", PathPermissionGrant, Payload{TargetUser: "m1", Path: "groups/other/content", Level: 1}, ErrInvalidPayload},
		{"config change empty", VotingConfigChange, Payload{}, ErrInvalidPayload},
		{"config change bad quorum", VotingConfigChange, Payload{ParticipationQuorumBps: &badQuorum}, ErrInvalidPayload},
		{"config change short period", VotingConfigChange, Payload{VotingPeriod: &shortPeriod}, ErrInvalidPayload},
		{"metadata empty changes", Metadata, Payload{}, ErrInvalidPayload},
		{"custom missing title", CustomProposal, Payload{Description: "d"}, ErrInvalidPayload},
		{"custom blank description", CustomProposal, Payload{Title: "t", Description: "   "}, ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.CreateProposal(group, "m1", tt.kind, tt.payload, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAutoVoteInstantExecution(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	group := newVotingGroup(t, engine, clock, 5100, 5001) // owner only

	id, err := engine.CreateProposal(group, "owner", CustomProposal, Payload{Title: "t", Description: "d"}, nil)
	require.Nil(t, err)

	proposal, err := engine.GetProposal(group, id)
	require.Nil(t, err)
	assert.Equal(t, Executed, proposal.Status)

	tally, err := engine.GetTally(group, id)
	require.Nil(t, err)
	assert.Equal(t, uint64(1), tally.YesVotes)
	assert.Equal(t, uint64(1), tally.TotalVotes)
	assert.Equal(t, uint64(1), tally.LockedMemberCount)
}

func TestAutoVoteDisabled(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	group := newVotingGroup(t, engine, clock, 5100, 5001)

	id, err := engine.CreateProposal(group, "owner", CustomProposal, Payload{Title: "t", Description: "d"}, boolPtr(false))
	require.Nil(t, err)

	proposal, err := engine.GetProposal(group, id)
	require.Nil(t, err)
	assert.Equal(t, Active, proposal.Status)

	tally, err := engine.GetTally(group, id)
	require.Nil(t, err)
	assert.Equal(t, uint64(0), tally.TotalVotes)
}

func TestEarlyExecution(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	group := newVotingGroup(t, engine, clock, 5100, 5000, "m1", "m2", "m3", "m4")

	// owner auto-votes: 1/5 participation
	id, err := engine.CreateProposal(group, "owner", CustomProposal, Payload{Title: "t", Description: "d"}, nil)
	require.Nil(t, err)

	require.Nil(t, engine.CastVote(group, id, "m1", true))
	proposal, err := engine.GetProposal(group, id)
	require.Nil(t, err)
	assert.Equal(t, Active, proposal.Status, "2/5 participation is below quorum")

	// third YES: 60% participation, 100% approval, resolved without m3/m4
	require.Nil(t, engine.CastVote(group, id, "m2", true))
	proposal, err = engine.GetProposal(group, id)
	require.Nil(t, err)
	assert.Equal(t, Executed, proposal.Status)

	err = engine.CastVote(group, id, "m3", true)
	assert.ErrorIs(t, err, ErrProposalNotActive)
}

func TestEarlyRejection(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	group := newVotingGroup(t, engine, clock, 5100, 5001, "m1", "m2", "m3", "m4")

	id, err := engine.CreateProposal(group, "owner", CustomProposal, Payload{Title: "t", Description: "d"}, nil)
	require.Nil(t, err)

	require.Nil(t, engine.CastVote(group, id, "m1", false))
	require.Nil(t, engine.CastVote(group, id, "m2", false))

	proposal, err := engine.GetProposal(group, id)
	require.Nil(t, err)
	assert.Equal(t, Active, proposal.Status, "max possible yes is still 3/5")

	// third NO: max possible yes 2/5 = 40% < 50.01%, defeat is settled
	require.Nil(t, engine.CastVote(group, id, "m3", false))
	proposal, err = engine.GetProposal(group, id)
	require.Nil(t, err)
	assert.Equal(t, Rejected, proposal.Status)

	err = engine.CastVote(group, id, "m4", true)
	assert.ErrorIs(t, err, ErrProposalNotActive)
}

func TestLockedCountResistsGaming(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	group := newVotingGroup(t, engine, clock, 5100, 5000, "m1", "m2", "m3", "m4")

	id, err := engine.CreateProposal(group, "owner", CustomProposal, Payload{Title: "t", Description: "d"}, nil)
	require.Nil(t, err)
	require.Nil(t, engine.CastVote(group, id, "m1", true))

	// two members leave mid-vote; the current count drops to 3
	s := newStaged(engine.store)
	require.Nil(t, engine.softRemoveMember(s, group, "m3", "seed", engine.now()))
	require.Nil(t, engine.softRemoveMember(s, group, "m4", "seed", engine.now()))
	s.Commit()
	require.Equal(t, uint64(3), engine.MemberCount(group))

	// evaluation still runs against the locked count of 5: 3/5 = 60% >= 51%
	require.Nil(t, engine.CastVote(group, id, "m2", true))

	tally, err := engine.GetTally(group, id)
	require.Nil(t, err)
	assert.Equal(t, uint64(5), tally.LockedMemberCount)

	proposal, err := engine.GetProposal(group, id)
	require.Nil(t, err)
	assert.Equal(t, Executed, proposal.Status)
}

func TestSelfReferentialConfigChange(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	group := newVotingGroup(t, engine, clock, 5100, 5000, "m1", "m2", "m3", "m4")

	newQuorum := uint16(8000)
	id, err := engine.CreateProposal(group, "owner", VotingConfigChange, Payload{ParticipationQuorumBps: &newQuorum}, nil)
	require.Nil(t, err)

	// passes at 60% participation under the old 51% rule
	require.Nil(t, engine.CastVote(group, id, "m1", true))
	require.Nil(t, engine.CastVote(group, id, "m2", true))

	proposal, err := engine.GetProposal(group, id)
	require.Nil(t, err)
	require.Equal(t, Executed, proposal.Status)

	cfg, err := engine.GetGroup(group)
	require.Nil(t, err)
	assert.Equal(t, uint16(8000), cfg.VotingConfig.ParticipationQuorumBps)

	// the next proposal needs 80% participation: 3/5 is no longer enough
	id2, err := engine.CreateProposal(group, "owner", CustomProposal, Payload{Title: "t", Description: "d"}, nil)
	require.Nil(t, err)
	require.Nil(t, engine.CastVote(group, id2, "m1", true))
	require.Nil(t, engine.CastVote(group, id2, "m2", true))

	proposal, err = engine.GetProposal(group, id2)
	require.Nil(t, err)
	assert.Equal(t, Active, proposal.Status)

	require.Nil(t, engine.CastVote(group, id2, "m3", true))
	proposal, err = engine.GetProposal(group, id2)
	require.Nil(t, err)
	assert.Equal(t, Executed, proposal.Status)
}

func TestVoteImmutability(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	group := newVotingGroup(t, engine, clock, 9000, 5001, "m1", "m2", "m3", "m4")

	id, err := engine.CreateProposal(group, "owner", CustomProposal, Payload{Title: "t", Description: "d"}, nil)
	require.Nil(t, err)

	require.Nil(t, engine.CastVote(group, id, "m1", false))
	assert.ErrorIs(t, engine.CastVote(group, id, "m1", true), ErrAlreadyVoted)

	// removal and rejoin do not reopen the ballot
	s := newStaged(engine.store)
	require.Nil(t, engine.softRemoveMember(s, group, "m1", "seed", engine.now()))
	require.Nil(t, engine.addMemberRecord(s, group, "m1", "seed", false, engine.now()))
	s.Commit()

	assert.ErrorIs(t, engine.CastVote(group, id, "m1", true), ErrAlreadyVoted)
}

func TestTemporalEligibility(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	group := newVotingGroup(t, engine, clock, 9000, 5001, "m1")

	// late joins at the exact creation instant
	id, err := engine.CreateProposal(group, "owner", CustomProposal, Payload{Title: "t", Description: "d"}, nil)
	require.Nil(t, err)

	s := newStaged(engine.store)
	require.Nil(t, engine.addMemberRecord(s, group, "boundary", "seed", false, clock.now))
	s.Commit()

	clock.advance(1)
	s = newStaged(engine.store)
	require.Nil(t, engine.addMemberRecord(s, group, "late", "seed", false, clock.now))
	s.Commit()

	// joined_at == created_at qualifies
	assert.Nil(t, engine.CastVote(group, id, "boundary", true))
	// joined_at == created_at + 1 does not
	assert.ErrorIs(t, engine.CastVote(group, id, "late", true), ErrJoinedAfterProposal)
}

func TestExpiryBoundaryOnVote(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	group := newVotingGroup(t, engine, clock, 9000, 5001, "m1", "m2")

	id, err := engine.CreateProposal(group, "owner", CustomProposal, Payload{Title: "t", Description: "d"}, nil)
	require.Nil(t, err)
	created := clock.now

	clock.now = created + 7*dayNanos - 1
	assert.Nil(t, engine.CastVote(group, id, "m1", true))

	clock.now = created + 7*dayNanos
	assert.ErrorIs(t, engine.CastVote(group, id, "m2", true), ErrVotingPeriodExpired)

	// an expired proposal stays in storage, active and unvoteable
	proposal, err := engine.GetProposal(group, id)
	require.Nil(t, err)
	assert.Equal(t, Active, proposal.Status)
}

func TestVoterMustBeMember(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	group := newVotingGroup(t, engine, clock, 9000, 5001, "m1")

	id, err := engine.CreateProposal(group, "owner", CustomProposal, Payload{Title: "t", Description: "d"}, nil)
	require.Nil(t, err)

	assert.ErrorIs(t, engine.CastVote(group, id, "stranger", true), ErrNotAMember)

	// a removed member cannot vote, but their absence does not retract history
	s := newStaged(engine.store)
	require.Nil(t, engine.softRemoveMember(s, group, "m1", "seed", engine.now()))
	s.Commit()
	assert.ErrorIs(t, engine.CastVote(group, id, "m1", true), ErrNotAMember)
}

func TestProposalIsolation(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	group := newVotingGroup(t, engine, clock, 9000, 5001, "m1", "m2", "m3", "m4")

	idA, err := engine.CreateProposal(group, "owner", CustomProposal, Payload{Title: "a", Description: "d"}, nil)
	require.Nil(t, err)
	idB, err := engine.CreateProposal(group, "owner", CustomProposal, Payload{Title: "b", Description: "d"}, boolPtr(false))
	require.Nil(t, err)

	require.Nil(t, engine.CastVote(group, idA, "m1", true))
	require.Nil(t, engine.CastVote(group, idB, "m1", false))
	require.Nil(t, engine.CastVote(group, idB, "m2", false))

	tallyA, err := engine.GetTally(group, idA)
	require.Nil(t, err)
	assert.Equal(t, uint64(2), tallyA.YesVotes)
	assert.Equal(t, uint64(2), tallyA.TotalVotes)

	tallyB, err := engine.GetTally(group, idB)
	require.Nil(t, err)
	assert.Equal(t, uint64(0), tallyB.YesVotes)
	assert.Equal(t, uint64(2), tallyB.TotalVotes)
}

func TestJoinRequestLifecycle(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	group := newVotingGroup(t, engine, clock, 5100, 5001, "m1", "m2")

	// a non-member files their own join request; no auto-vote happens
	id, err := engine.CreateProposal(group, "applicant", JoinRequest, Payload{Message: "hi"}, nil)
	require.Nil(t, err)

	tally, err := engine.GetTally(group, id)
	require.Nil(t, err)
	require.Equal(t, uint64(0), tally.TotalVotes)

	require.Nil(t, engine.CastVote(group, id, "owner", true))
	require.Nil(t, engine.CastVote(group, id, "m1", true))

	proposal, err := engine.GetProposal(group, id)
	require.Nil(t, err)
	require.Equal(t, Executed, proposal.Status)
	assert.True(t, engine.IsMember(group, "applicant"))

	// an existing member cannot file one
	_, err = engine.CreateProposal(group, "m1", JoinRequest, Payload{}, nil)
	assert.ErrorIs(t, err, ErrAlreadyMember)

	// nor may anyone file one on someone else's behalf
	_, err = engine.CreateProposal(group, "applicant2", JoinRequest, Payload{TargetUser: "other"}, nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestProposalIDsAreUnique(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	group := newVotingGroup(t, engine, clock, 9000, 5001, "m1", "m2")

	seen := make(map[string]struct{})
	for i := 0; i < 20; i++ {
		id, err := engine.CreateProposal(group, "owner", CustomProposal, Payload{Title: "t", Description: "d"}, boolPtr(false))
		require.Nil(t, err)
		_, dup := seen[id]
		require.False(t, dup, "duplicate proposal id %s", id)
		seen[id] = struct{}{}
	}
}

func TestGetProposalNotFound(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	group := newVotingGroup(t, engine, clock, 9000, 5001)

	_, err := engine.GetProposal(group, "missing")
	assert.ErrorIs(t, err, ErrProposalNotFound)
	assert.ErrorIs(t, engine.CastVote(group, "missing", "owner", true), ErrProposalNotFound)
}
