package core

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// validatePayload is the eligibility guard for proposal creation. It checks
// who may propose (join_request is the one kind open to non-members) and the
// kind-specific payload shape, failing fast before anything is written.
// Membership guards that can shift between creation and execution (ban
// target still a member, owner protection) re-run in the handlers.
func (e *Engine) validatePayload(s Store, groupID string, cfg *GroupConfig, proposer string, kind ProposalKind, p *Payload) error {
	if kind == JoinRequest {
		if p.TargetUser != "" && p.TargetUser != proposer {
			return errors.Wrap(ErrInvalidPayload, "join requests can only be created on one's own behalf")
		}
		if isMember(s, groupID, proposer) || proposer == cfg.Owner {
			return errors.Wrapf(ErrAlreadyMember, "account %s", proposer)
		}
		if isBlacklisted(s, groupID, proposer) {
			return errors.Wrapf(ErrBlacklisted, "account %s", proposer)
		}
		return nil
	}

	if !isMember(s, groupID, proposer) && proposer != cfg.Owner {
		return errors.Wrapf(ErrNotAMember, "proposer %s", proposer)
	}
	if isBlacklisted(s, groupID, proposer) {
		return errors.Wrapf(ErrBlacklisted, "proposer %s", proposer)
	}

	switch kind {
	case Ban, Unban, RemoveMember:
		if p.TargetUser == "" {
			return errors.Wrap(ErrInvalidPayload, "target_user is required")
		}

	case TransferOwnership:
		if p.NewOwner == "" {
			return errors.Wrap(ErrInvalidPayload, "new_owner is required")
		}
		if !isMember(s, groupID, p.NewOwner) {
			return errors.Wrapf(ErrTargetNotMember, "new owner %s", p.NewOwner)
		}
		if isBlacklisted(s, groupID, p.NewOwner) {
			return errors.Wrapf(ErrBlacklisted, "new owner %s", p.NewOwner)
		}

	case MemberInvite:
		if p.TargetUser == "" {
			return errors.Wrap(ErrInvalidPayload, "target_user is required")
		}
		if isMember(s, groupID, p.TargetUser) {
			return errors.Wrapf(ErrAlreadyMember, "account %s", p.TargetUser)
		}

	case PermissionChange:
		if p.TargetUser == "" {
			return errors.Wrap(ErrInvalidPayload, "target_user is required")
		}
		if !isMember(s, groupID, p.TargetUser) {
			return errors.Wrapf(ErrTargetNotMember, "account %s", p.TargetUser)
		}
		if !ValidPermissionLevel(p.Level, true) {
			return errors.Wrapf(ErrInvalidPayload, "invalid permission level %d", p.Level)
		}

	case PathPermissionGrant:
		if p.TargetUser == "" {
			return errors.Wrap(ErrInvalidPayload, "target_user is required")
		}
		if !pathWithinGroup(groupID, p.Path) {
			return errors.Wrapf(ErrInvalidPayload, "path %q is outside group %s", p.Path, groupID)
		}
		if !ValidPermissionLevel(p.Level, false) {
			return errors.Wrapf(ErrInvalidPayload, "invalid permission level %d", p.Level)
		}

	case PathPermissionRevoke:
		if p.TargetUser == "" {
			return errors.Wrap(ErrInvalidPayload, "target_user is required")
		}
		if !pathWithinGroup(groupID, p.Path) {
			return errors.Wrapf(ErrInvalidPayload, "path %q is outside group %s", p.Path, groupID)
		}

	case VotingConfigChange:
		if p.ParticipationQuorumBps == nil && p.MajorityThresholdBps == nil && p.VotingPeriod == nil {
			return errors.Wrap(ErrInvalidPayload, "at least one voting config field is required")
		}
		if p.ParticipationQuorumBps != nil && *p.ParticipationQuorumBps > uint16(bpsDenominator) {
			return errors.Wrap(ErrInvalidPayload, "participation quorum must be between 0 and 10000 bps")
		}
		if p.MajorityThresholdBps != nil && *p.MajorityThresholdBps > uint16(bpsDenominator) {
			return errors.Wrap(ErrInvalidPayload, "majority threshold must be between 0 and 10000 bps")
		}
		if p.VotingPeriod != nil {
			period := *p.VotingPeriod
			if period < uint64(e.config.Governance.MinVotingPeriod) || period > uint64(e.config.Governance.MaxVotingPeriod) {
				return errors.Wrap(ErrInvalidPayload, "voting period out of bounds")
			}
		}

	case Metadata:
		if len(p.Changes) == 0 {
			return errors.Wrap(ErrInvalidPayload, "changes cannot be empty")
		}
		// privacy flips are rejected up front, never silently dropped
		if raw, ok := p.Changes["is_private"]; ok {
			var isPrivate bool
			if err := json.Unmarshal(raw, &isPrivate); err != nil {
				return errors.Wrap(ErrInvalidPayload, "is_private must be a boolean")
			}
			if cfg.MemberDriven && !isPrivate {
				return errors.Wrap(ErrInvariantViolation, "cannot make a member-driven group public")
			}
		}

	case CustomProposal:
		if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Description) == "" {
			return errors.Wrap(ErrInvalidPayload, "title and description are required")
		}

	default:
		return errors.Wrapf(ErrInvalidPayload, "unknown proposal kind %d", kind)
	}

	return nil
}
