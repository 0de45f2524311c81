package core

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type customExecution struct {
	ProposalID  string          `json:"proposal_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	CustomData  json.RawMessage `json:"custom_data,omitempty"`
	ExecutedAt  uint64          `json:"executed_at"`
}

// execute applies an approved proposal to group state inside the caller's
// staged overlay, so a failing handler leaves nothing behind. Fired exactly
// once, when a tally first meets its thresholds.
func (e *Engine) execute(s Store, groupID string, proposal *Proposal, now uint64) error {
	cfg, err := loadGroupConfig(s, groupID)
	if err != nil {
		return err
	}
	if !cfg.MemberDriven {
		return errors.Wrapf(ErrNotMemberDriven, "group %s is no longer member-driven", groupID)
	}

	p := proposal.Payload

	switch proposal.Kind {
	case Ban:
		return e.banMember(s, groupID, cfg, p.TargetUser, proposal.Proposer, p.Reason, now)

	case Unban:
		e.unbanMember(s, groupID, p.TargetUser)
		return nil

	case RemoveMember:
		if p.TargetUser == cfg.Owner {
			return errors.Wrap(ErrProtectedTarget, "group owner cannot be removed")
		}
		return e.softRemoveMember(s, groupID, p.TargetUser, proposal.Proposer, now)

	case TransferOwnership:
		removeOld := p.RemoveOldOwner == nil || *p.RemoveOldOwner
		return e.transferOwnershipRecord(s, groupID, cfg, p.NewOwner, proposal.Proposer, removeOld, now)

	case MemberInvite:
		return e.addMemberRecord(s, groupID, p.TargetUser, proposal.Proposer, false, now)

	case JoinRequest:
		return e.addMemberRecord(s, groupID, proposal.Target, proposal.Target, false, now)

	case PermissionChange:
		return e.executePermissionChange(s, groupID, cfg, proposal, now)

	case PathPermissionGrant:
		if !isMember(s, groupID, p.TargetUser) {
			return errors.Wrapf(ErrTargetNotMember, "account %s", p.TargetUser)
		}
		nonce := memberNonce(s, groupID, p.TargetUser)
		return grantPermission(s, groupID, p.TargetUser, p.Path, p.Level, 0, cfg.Owner, nonce, now)

	case PathPermissionRevoke:
		revokePermission(s, groupID, p.TargetUser, p.Path)
		return nil

	case VotingConfigChange:
		return e.executeVotingConfigChange(s, groupID, cfg, proposal, now)

	case Metadata:
		return e.executeMetadata(s, groupID, cfg, proposal)

	case CustomProposal:
		// no group state changes; the execution record is the whole effect
		return putJSON(s, executionPath(groupID, proposal.ID), &customExecution{
			ProposalID:  proposal.ID,
			Title:       p.Title,
			Description: p.Description,
			CustomData:  p.CustomData,
			ExecutedAt:  now,
		})

	default:
		return errors.Wrapf(ErrInvalidPayload, "unknown proposal kind %d", proposal.Kind)
	}
}

func (e *Engine) executePermissionChange(s Store, groupID string, cfg *GroupConfig, proposal *Proposal, now uint64) error {
	p := proposal.Payload

	m, ok := getMember(s, groupID, p.TargetUser)
	if !ok || m.Deleted {
		return errors.Wrapf(ErrTargetNotMember, "account %s", p.TargetUser)
	}

	m.Level = p.Level
	m.UpdatedAt = now
	if p.Reason != "" {
		m.Reason = p.Reason
	}
	if err := putJSON(s, memberPath(groupID, p.TargetUser), m); err != nil {
		return err
	}

	root := groupRootPath(groupID)
	if p.Level == LevelNone {
		revokePermission(s, groupID, p.TargetUser, root)
		return nil
	}
	nonce := memberNonce(s, groupID, p.TargetUser)
	return grantPermission(s, groupID, p.TargetUser, root, p.Level, 0, cfg.Owner, nonce, now)
}

// executeVotingConfigChange overwrites config fields prospectively: the new
// values only bind proposals created after this commit, never this proposal
// or any other already-open one (they carry their own snapshot).
func (e *Engine) executeVotingConfigChange(s Store, groupID string, cfg *GroupConfig, proposal *Proposal, now uint64) error {
	p := proposal.Payload

	vc := cfg.VotingConfig
	if p.ParticipationQuorumBps != nil {
		vc.ParticipationQuorumBps = *p.ParticipationQuorumBps
	}
	if p.MajorityThresholdBps != nil {
		vc.MajorityThresholdBps = *p.MajorityThresholdBps
	}
	if p.VotingPeriod != nil {
		vc.VotingPeriod = *p.VotingPeriod
	}

	cfg.VotingConfig = vc.Sanitized(e.config.Governance)
	cfg.VotingConfigUpdatedAt = now
	if err := saveGroupConfig(s, groupID, cfg); err != nil {
		return err
	}

	e.emit("voting_config_changed", proposal.Proposer, logrus.Fields{
		"group_id":      groupID,
		"proposal_id":   proposal.ID,
		"quorum_bps":    cfg.VotingConfig.ParticipationQuorumBps,
		"majority_bps":  cfg.VotingConfig.MajorityThresholdBps,
		"voting_period": cfg.VotingConfig.VotingPeriod,
	})
	return nil
}

func (e *Engine) executeMetadata(s Store, groupID string, cfg *GroupConfig, proposal *Proposal) error {
	for key, raw := range proposal.Payload.Changes {
		switch key {
		case "owner":
			// ownership moves only through transfer_ownership
			continue
		case "is_private":
			var v bool
			if err := json.Unmarshal(raw, &v); err != nil {
				return errors.Wrap(ErrInvalidPayload, "is_private must be a boolean")
			}
			cfg.IsPrivate = v
		case "member_driven":
			var v bool
			if err := json.Unmarshal(raw, &v); err != nil {
				return errors.Wrap(ErrInvalidPayload, "member_driven must be a boolean")
			}
			cfg.MemberDriven = v
			if v {
				cfg.IsPrivate = true
			}
		default:
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return errors.Wrapf(ErrInvalidPayload, "metadata field %s", key)
			}
			if cfg.Metadata == nil {
				cfg.Metadata = make(map[string]any)
			}
			cfg.Metadata[key] = v
		}
	}

	if cfg.MemberDriven && !cfg.IsPrivate {
		return errors.Wrap(ErrInvariantViolation, "cannot make a member-driven group public")
	}
	return saveGroupConfig(s, groupID, cfg)
}
