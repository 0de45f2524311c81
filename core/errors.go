package core

import "errors"

// Error kinds returned by the engine. Callers match them with errors.Is;
// call sites add context via pkg/errors wrapping.
var (
	ErrGroupNotFound       = errors.New("group not found")
	ErrGroupExists         = errors.New("group already exists")
	ErrNotMemberDriven     = errors.New("group is not member-driven")
	ErrMemberDriven        = errors.New("member-driven groups change membership only through proposals")
	ErrNotAMember          = errors.New("not a member of the group")
	ErrAlreadyMember       = errors.New("already a member of the group")
	ErrBlacklisted         = errors.New("account is blacklisted from the group")
	ErrProposalNotFound    = errors.New("proposal not found")
	ErrProposalNotActive   = errors.New("proposal is not active")
	ErrAlreadyVoted        = errors.New("already voted on this proposal")
	ErrVotingPeriodExpired = errors.New("voting period has expired")
	ErrJoinedAfterProposal = errors.New("joined the group after the proposal was created")
	ErrInvalidPayload      = errors.New("invalid proposal payload")
	ErrProtectedTarget     = errors.New("target is protected from this operation")
	ErrTargetNotMember     = errors.New("target is not a member of the group")
	ErrInvariantViolation  = errors.New("member-driven groups must stay private")
	ErrPermissionDenied    = errors.New("permission denied")
)
