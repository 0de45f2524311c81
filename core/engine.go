package core

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/axiomesh/govern/repo"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Engine drives governance for member-driven groups: proposal creation,
// vote tallying, early termination and execution. Every call is atomic
// against the store; either the whole tally update and any triggered
// execution commits, or nothing does.
type Engine struct {
	logger *logrus.Logger
	store  Store
	config *repo.Config

	// Now overrides the clock (nanosecond timestamps). Tests set it.
	Now func() uint64
}

func NewEngine(config *repo.Config, store Store) *Engine {
	logger := log.New()
	logger.SetLevel(log.ParseLevel(config.Log.Level))

	return &Engine{
		logger: logger,
		store:  store,
		config: config,
	}
}

func (e *Engine) now() uint64 {
	if e.Now != nil {
		return e.Now()
	}
	return nowNano()
}

// proposalID derives a per-group-unique id from the group, sequence number,
// creation time, proposer and a random nonce, so two proposals colliding on
// every other field still get distinct ids.
func (e *Engine) proposalID(groupID string, seq, createdAt uint64, proposer string) string {
	nonce := make([]byte, 8)
	_, _ = rand.Read(nonce)

	seqB := make([]byte, 8)
	binary.BigEndian.PutUint64(seqB, seq)
	tsB := make([]byte, 8)
	binary.BigEndian.PutUint64(tsB, createdAt)

	sum := crypto.Keccak256([]byte(groupID), seqB, tsB, []byte(proposer), nonce)
	return fmt.Sprintf("%d-%s", seq, common.Bytes2Hex(sum[:8]))
}

// CreateProposal validates the payload eagerly, snapshots the member count
// and the group's current voting config, and records the proposer's YES vote
// unless autoVote is explicitly false. A single-member group's proposal can
// execute before this returns.
func (e *Engine) CreateProposal(groupID, proposer string, kind ProposalKind, payload Payload, autoVote *bool) (string, error) {
	cfg, err := loadGroupConfig(e.store, groupID)
	if err != nil {
		return "", err
	}
	if !cfg.MemberDriven {
		return "", errors.Wrapf(ErrNotMemberDriven, "group %s", groupID)
	}

	if err := e.validatePayload(e.store, groupID, cfg, proposer, kind, &payload); err != nil {
		return "", err
	}

	now := e.now()
	s := newStaged(e.store)

	seq := getUint64(s, proposalCounterPath(groupID)) + 1
	putUint64(s, proposalCounterPath(groupID), seq)

	memberCount := getUint64(s, memberCountPath(groupID))
	id := e.proposalID(groupID, seq, now, proposer)

	proposal := &Proposal{
		ID:           id,
		GroupID:      groupID,
		Sequence:     seq,
		Kind:         kind,
		Proposer:     proposer,
		Target:       payloadTarget(kind, payload, proposer),
		Payload:      payload,
		CreatedAt:    now,
		Status:       Active,
		VotingConfig: cfg.VotingConfig,
	}
	tally := newVoteTally(id, memberCount, now)

	proposerCanVote := isMember(s, groupID, proposer) || proposer == cfg.Owner
	autoVoted := (autoVote == nil || *autoVote) && proposerCanVote
	if autoVoted {
		if err := putJSON(s, votePath(groupID, id, proposer), &Vote{
			Voter:   proposer,
			Approve: true,
			CastAt:  now,
		}); err != nil {
			return "", err
		}
		tally.RecordVote(true)
	}

	vc := proposal.VotingConfig
	if tally.MeetsThresholds(vc.ParticipationQuorumBps, vc.MajorityThresholdBps) {
		if err := e.execute(s, groupID, proposal, now); err != nil {
			return "", err
		}
		proposal.Status = Executed
		proposal.UpdatedAt = now
	}

	if err := putJSON(s, proposalPath(groupID, id), proposal); err != nil {
		return "", err
	}
	if err := putJSON(s, tallyPath(groupID, id), tally); err != nil {
		return "", err
	}
	s.Commit()

	e.emit("proposal_created", proposer, logrus.Fields{
		"group_id":            groupID,
		"proposal_id":         id,
		"sequence":            seq,
		"kind":                kind.String(),
		"target":              proposal.Target,
		"auto_vote":           autoVoted,
		"locked_member_count": memberCount,
		"quorum_bps":          vc.ParticipationQuorumBps,
		"majority_bps":        vc.MajorityThresholdBps,
		"status":              proposal.Status.String(),
	})
	return id, nil
}

// CastVote runs the eligibility guard, records an immutable vote, and
// evaluates the state machine: execute on thresholds met, reject on
// inevitable defeat, otherwise stay active. A handler failure fails the
// whole call and nothing is persisted.
func (e *Engine) CastVote(groupID, proposalID, voter string, approve bool) error {
	s := newStaged(e.store)

	cfg, err := loadGroupConfig(s, groupID)
	if err != nil {
		return err
	}

	proposal := &Proposal{}
	if ok, err := getJSON(s, proposalPath(groupID, proposalID), proposal); err != nil {
		return err
	} else if !ok {
		return errors.Wrapf(ErrProposalNotFound, "proposal %s", proposalID)
	}

	tally := &VoteTally{}
	if ok, err := getJSON(s, tallyPath(groupID, proposalID), tally); err != nil {
		return err
	} else if !ok {
		return errors.Wrapf(ErrProposalNotFound, "tally for proposal %s", proposalID)
	}

	isOwner := voter == cfg.Owner
	if !isOwner && !isMember(s, groupID, voter) {
		return errors.Wrapf(ErrNotAMember, "voter %s", voter)
	}
	if isBlacklisted(s, groupID, voter) {
		return errors.Wrapf(ErrBlacklisted, "voter %s", voter)
	}
	if !isOwner {
		if m, ok := getMember(s, groupID, voter); ok && m.JoinedAt > proposal.CreatedAt {
			return errors.Wrapf(ErrJoinedAfterProposal, "voter %s", voter)
		}
	}

	if proposal.Status != Active {
		return errors.Wrapf(ErrProposalNotActive, "proposal %s is %s", proposalID, proposal.Status)
	}
	if s.Has(votePath(groupID, proposalID, voter)) {
		return errors.Wrapf(ErrAlreadyVoted, "voter %s", voter)
	}

	now := e.now()
	vc := proposal.VotingConfig
	if tally.IsExpired(vc.VotingPeriod, now) {
		return errors.Wrapf(ErrVotingPeriodExpired, "proposal %s", proposalID)
	}

	if err := putJSON(s, votePath(groupID, proposalID, voter), &Vote{
		Voter:   voter,
		Approve: approve,
		CastAt:  now,
	}); err != nil {
		return err
	}
	tally.RecordVote(approve)
	if err := putJSON(s, tallyPath(groupID, proposalID), tally); err != nil {
		return err
	}

	executed := tally.MeetsThresholds(vc.ParticipationQuorumBps, vc.MajorityThresholdBps)
	rejected := false
	if executed {
		if err := e.execute(s, groupID, proposal, now); err != nil {
			return err
		}
		proposal.Status = Executed
	} else if tally.IsDefeatInevitable(vc.ParticipationQuorumBps, vc.MajorityThresholdBps) {
		proposal.Status = Rejected
		rejected = true
	}

	if executed || rejected {
		proposal.UpdatedAt = now
		if err := putJSON(s, proposalPath(groupID, proposalID), proposal); err != nil {
			return err
		}
	}
	s.Commit()

	e.emit("vote_cast", voter, logrus.Fields{
		"group_id":    groupID,
		"proposal_id": proposalID,
		"approve":     approve,
		"yes_votes":   tally.YesVotes,
		"total_votes": tally.TotalVotes,
		"status":      proposal.Status.String(),
	})
	return nil
}

// GetProposal returns the stored proposal.
func (e *Engine) GetProposal(groupID, proposalID string) (*Proposal, error) {
	p := &Proposal{}
	ok, err := getJSON(e.store, proposalPath(groupID, proposalID), p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(ErrProposalNotFound, "proposal %s", proposalID)
	}
	return p, nil
}

// GetTally returns the stored vote tally.
func (e *Engine) GetTally(groupID, proposalID string) (*VoteTally, error) {
	t := &VoteTally{}
	ok, err := getJSON(e.store, tallyPath(groupID, proposalID), t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(ErrProposalNotFound, "tally for proposal %s", proposalID)
	}
	return t, nil
}

// GetVote returns one voter's recorded vote.
func (e *Engine) GetVote(groupID, proposalID, voter string) (*Vote, error) {
	v := &Vote{}
	ok, err := getJSON(e.store, votePath(groupID, proposalID, voter), v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(ErrProposalNotFound, "vote by %s on %s", voter, proposalID)
	}
	return v, nil
}

func payloadTarget(kind ProposalKind, p Payload, proposer string) string {
	switch kind {
	case Ban, Unban, RemoveMember, MemberInvite, PermissionChange, PathPermissionGrant, PathPermissionRevoke:
		return p.TargetUser
	case TransferOwnership:
		return p.NewOwner
	case JoinRequest:
		if p.TargetUser != "" {
			return p.TargetUser
		}
		return proposer
	default:
		return proposer
	}
}
