package core

import (
	"encoding/json"
	"time"

	"github.com/axiomesh/govern/repo"
	"github.com/pkg/errors"
)

type ProposalStatus uint8

const (
	Active ProposalStatus = iota
	Executed
	Rejected
)

func (s ProposalStatus) String() string {
	switch s {
	case Active:
		return "active"
	case Executed:
		return "executed"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type ProposalKind uint8

const (
	// Ban soft-removes the target from membership and blacklists them
	Ban ProposalKind = iota

	// Unban removes the blacklist entry; membership is not restored
	Unban

	// RemoveMember soft-removes the target from membership
	RemoveMember

	// TransferOwnership sets a new group owner
	TransferOwnership

	// MemberInvite adds the target as a member
	MemberInvite

	// JoinRequest adds the requester as a member; the only proposal kind a
	// non-member may create, on their own behalf
	JoinRequest

	// PermissionChange updates a member's group-wide permission level
	PermissionChange

	// PathPermissionGrant grants a permission level on a sub-path
	PathPermissionGrant

	// PathPermissionRevoke revokes a path grant
	PathPermissionRevoke

	// VotingConfigChange overwrites voting config fields, prospectively
	VotingConfigChange

	// Metadata merges changes into the group config
	Metadata

	// CustomProposal carries opaque application data, no state mutation
	CustomProposal
)

var kindNames = map[ProposalKind]string{
	Ban:                  "ban",
	Unban:                "unban",
	RemoveMember:         "remove_member",
	TransferOwnership:    "transfer_ownership",
	MemberInvite:         "member_invite",
	JoinRequest:          "join_request",
	PermissionChange:     "permission_change",
	PathPermissionGrant:  "path_permission_grant",
	PathPermissionRevoke: "path_permission_revoke",
	VotingConfigChange:   "voting_config_change",
	Metadata:             "metadata",
	CustomProposal:       "custom_proposal",
}

func (k ProposalKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

func ParseKind(s string) (ProposalKind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidPayload, "unknown proposal kind %q", s)
}

// Payload carries the kind-specific fields of a proposal. Which fields are
// required depends on the kind; see Engine.validatePayload.
type Payload struct {
	TargetUser string `json:"target_user,omitempty"`
	NewOwner   string `json:"new_owner,omitempty"`
	// RemoveOldOwner defaults to true when nil (transfer_ownership only)
	RemoveOldOwner *bool  `json:"remove_old_owner,omitempty"`
	Path           string `json:"path,omitempty"`
	Level          uint8  `json:"level,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Message        string `json:"message,omitempty"`

	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	CustomData  json.RawMessage `json:"custom_data,omitempty"`

	Changes map[string]json.RawMessage `json:"changes,omitempty"`

	ParticipationQuorumBps *uint16 `json:"participation_quorum_bps,omitempty"`
	MajorityThresholdBps   *uint16 `json:"majority_threshold_bps,omitempty"`
	VotingPeriod           *uint64 `json:"voting_period,omitempty"`
}

// VotingConfig governs one group's proposals. Durations and timestamps are
// nanoseconds. A copy is snapshotted into every proposal at creation, so
// config changes never apply retroactively.
type VotingConfig struct {
	ParticipationQuorumBps uint16 `json:"participation_quorum_bps"`
	MajorityThresholdBps   uint16 `json:"majority_threshold_bps"`
	VotingPeriod           uint64 `json:"voting_period"`
}

func DefaultVotingConfig(g repo.Governance) VotingConfig {
	return VotingConfig{
		ParticipationQuorumBps: g.ParticipationQuorumBps,
		MajorityThresholdBps:   g.MajorityThresholdBps,
		VotingPeriod:           uint64(g.VotingPeriod),
	}
}

// Sanitized clamps bps fields to the denominator and the period to bounds.
func (c VotingConfig) Sanitized(bounds repo.Governance) VotingConfig {
	if c.ParticipationQuorumBps > repo.BpsDenominator {
		c.ParticipationQuorumBps = repo.BpsDenominator
	}
	if c.MajorityThresholdBps > repo.BpsDenominator {
		c.MajorityThresholdBps = repo.BpsDenominator
	}
	if c.VotingPeriod == 0 {
		c.VotingPeriod = uint64(bounds.VotingPeriod)
	}
	if c.VotingPeriod < uint64(bounds.MinVotingPeriod) {
		c.VotingPeriod = uint64(bounds.MinVotingPeriod)
	}
	if c.VotingPeriod > uint64(bounds.MaxVotingPeriod) {
		c.VotingPeriod = uint64(bounds.MaxVotingPeriod)
	}
	return c
}

// GroupConfig is the persisted root record of a group.
type GroupConfig struct {
	Owner        string         `json:"owner"`
	MemberDriven bool           `json:"member_driven"`
	IsPrivate    bool           `json:"is_private"`
	VotingConfig VotingConfig   `json:"voting_config"`
	Metadata     map[string]any `json:"metadata,omitempty"`

	CreatedAt             uint64 `json:"created_at"`
	VotingConfigUpdatedAt uint64 `json:"voting_config_updated_at,omitempty"`
}

// Member is a membership record. Removal and bans tombstone the record via
// Deleted instead of erasing it, preserving the audit trail.
type Member struct {
	Account   string `json:"account"`
	Level     uint8  `json:"level"`
	GrantedBy string `json:"granted_by"`
	JoinedAt  uint64 `json:"joined_at"`
	IsCreator bool   `json:"is_creator,omitempty"`
	Deleted   bool   `json:"deleted,omitempty"`
	UpdatedAt uint64 `json:"updated_at,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// BlacklistEntry records a ban.
type BlacklistEntry struct {
	Account  string `json:"account"`
	BannedBy string `json:"banned_by"`
	BannedAt uint64 `json:"banned_at"`
	Reason   string `json:"reason,omitempty"`
}

type Proposal struct {
	ID       string       `json:"id"`
	GroupID  string       `json:"group_id"`
	Sequence uint64       `json:"sequence"`
	Kind     ProposalKind `json:"kind"`
	Proposer string       `json:"proposer"`
	Target   string       `json:"target"`
	Payload  Payload      `json:"payload"`

	CreatedAt uint64         `json:"created_at"`
	UpdatedAt uint64         `json:"updated_at,omitempty"`
	Status    ProposalStatus `json:"status"`

	// VotingConfig is the group's config at creation time; the proposal is
	// evaluated under these values for its entire life.
	VotingConfig VotingConfig `json:"voting_config"`
}

// Vote is immutable once written; there is no update path for it.
type Vote struct {
	Voter   string `json:"voter"`
	Approve bool   `json:"approve"`
	CastAt  uint64 `json:"cast_at"`
}

// VoteTally accumulates votes for one proposal. LockedMemberCount is the
// group's member count snapshotted at proposal creation; threshold math
// always runs against it, never the current count.
type VoteTally struct {
	ProposalID        string `json:"proposal_id"`
	YesVotes          uint64 `json:"yes_votes"`
	TotalVotes        uint64 `json:"total_votes"`
	CreatedAt         uint64 `json:"created_at"`
	LockedMemberCount uint64 `json:"locked_member_count"`
}

// Permission levels for group paths.
const (
	LevelNone       uint8 = 0
	LevelWrite      uint8 = 1
	LevelModerate   uint8 = 2
	LevelManage     uint8 = 3
	LevelFullAccess uint8 = 0xFF
)

// ValidPermissionLevel reports whether level is a grantable level.
// FullAccess is reserved for owners and never granted explicitly.
func ValidPermissionLevel(level uint8, allowNone bool) bool {
	if !allowNone && level == LevelNone {
		return false
	}
	switch level {
	case LevelNone, LevelWrite, LevelModerate, LevelManage:
		return true
	}
	return false
}

// PathGrant is a stored path permission. Nonce ties the grant to one
// membership tenure; rejoining bumps the member nonce and invalidates it.
type PathGrant struct {
	Level     uint8  `json:"level"`
	ExpiresAt uint64 `json:"expires_at,omitempty"`
	Nonce     uint64 `json:"nonce,omitempty"`
	GrantedBy string `json:"granted_by"`
	GrantedAt uint64 `json:"granted_at"`
}

// GroupOptions configures CreateGroup.
type GroupOptions struct {
	MemberDriven bool
	IsPrivate    bool
	VotingConfig *VotingConfig
	Metadata     map[string]any
}

func nowNano() uint64 {
	return uint64(time.Now().UnixNano())
}
