package core

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func loadGroupConfig(s Store, groupID string) (*GroupConfig, error) {
	cfg := &GroupConfig{}
	ok, err := getJSON(s, groupConfigPath(groupID), cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(ErrGroupNotFound, "group %s", groupID)
	}
	return cfg, nil
}

func saveGroupConfig(s Store, groupID string, cfg *GroupConfig) error {
	return putJSON(s, groupConfigPath(groupID), cfg)
}

func getMember(s Store, groupID, account string) (*Member, bool) {
	m := &Member{}
	ok, err := getJSON(s, memberPath(groupID, account), m)
	if !ok || err != nil {
		return nil, false
	}
	return m, true
}

// isMember reports active membership; tombstoned records do not count.
func isMember(s Store, groupID, account string) bool {
	m, ok := getMember(s, groupID, account)
	return ok && !m.Deleted
}

func isBlacklisted(s Store, groupID, account string) bool {
	return s.Has(blacklistPath(groupID, account))
}

func memberNonce(s Store, groupID, account string) uint64 {
	return getUint64(s, memberNoncePath(groupID, account))
}

// CreateGroup establishes a group with its owner as the first member.
// Member-driven groups are forced private; the invariant holds from birth.
func (e *Engine) CreateGroup(groupID, owner string, opts GroupOptions) error {
	if groupID == "" || owner == "" {
		return errors.Wrap(ErrInvalidPayload, "group id and owner are required")
	}
	if e.store.Has(groupConfigPath(groupID)) {
		return errors.Wrapf(ErrGroupExists, "group %s", groupID)
	}

	now := e.now()

	vc := DefaultVotingConfig(e.config.Governance)
	if opts.VotingConfig != nil {
		vc = opts.VotingConfig.Sanitized(e.config.Governance)
	}

	cfg := &GroupConfig{
		Owner:        owner,
		MemberDriven: opts.MemberDriven,
		IsPrivate:    opts.IsPrivate || opts.MemberDriven,
		VotingConfig: vc,
		Metadata:     opts.Metadata,
		CreatedAt:    now,
	}

	s := newStaged(e.store)
	if err := saveGroupConfig(s, groupID, cfg); err != nil {
		return err
	}
	if err := e.addMemberRecord(s, groupID, owner, owner, true, now); err != nil {
		return err
	}
	s.Commit()

	e.emit("group_created", owner, logrus.Fields{
		"group_id":      groupID,
		"member_driven": cfg.MemberDriven,
		"is_private":    cfg.IsPrivate,
	})
	return nil
}

// addMemberRecord writes a fresh membership record. New members always join
// with level None; elevated roles are granted separately. The per-member
// nonce bumps so grants from an earlier tenure stop resolving.
func (e *Engine) addMemberRecord(s Store, groupID, account, grantedBy string, isCreator bool, now uint64) error {
	if isMember(s, groupID, account) {
		return errors.Wrapf(ErrAlreadyMember, "account %s", account)
	}
	if isBlacklisted(s, groupID, account) {
		return errors.Wrapf(ErrBlacklisted, "account %s", account)
	}

	nonce := memberNonce(s, groupID, account) + 1
	putUint64(s, memberNoncePath(groupID, account), nonce)

	m := &Member{
		Account:   account,
		Level:     LevelNone,
		GrantedBy: grantedBy,
		JoinedAt:  now,
		IsCreator: isCreator,
	}
	if err := putJSON(s, memberPath(groupID, account), m); err != nil {
		return err
	}

	// every member may write group content
	if err := grantPermission(s, groupID, account, groupContentPath(groupID), LevelWrite, 0, grantedBy, nonce, now); err != nil {
		return err
	}

	putUint64(s, memberCountPath(groupID), getUint64(s, memberCountPath(groupID))+1)
	return nil
}

// softRemoveMember tombstones the record and decrements the member count.
// The record stays behind for the audit trail, as do any votes already cast.
func (e *Engine) softRemoveMember(s Store, groupID, account, removedBy string, now uint64) error {
	m, ok := getMember(s, groupID, account)
	if !ok || m.Deleted {
		return errors.Wrapf(ErrTargetNotMember, "account %s", account)
	}

	m.Deleted = true
	m.UpdatedAt = now
	if err := putJSON(s, memberPath(groupID, account), m); err != nil {
		return err
	}

	count := getUint64(s, memberCountPath(groupID))
	if count > 0 {
		count--
	}
	putUint64(s, memberCountPath(groupID), count)
	return nil
}

func (e *Engine) banMember(s Store, groupID string, cfg *GroupConfig, target, bannedBy, reason string, now uint64) error {
	if target == cfg.Owner {
		return errors.Wrap(ErrProtectedTarget, "group owner cannot be banned")
	}
	if err := e.softRemoveMember(s, groupID, target, bannedBy, now); err != nil {
		return err
	}
	return putJSON(s, blacklistPath(groupID, target), &BlacklistEntry{
		Account:  target,
		BannedBy: bannedBy,
		BannedAt: now,
		Reason:   reason,
	})
}

// unbanMember is idempotent; it never restores membership.
func (e *Engine) unbanMember(s Store, groupID, target string) {
	s.Delete(blacklistPath(groupID, target))
}

func (e *Engine) transferOwnershipRecord(s Store, groupID string, cfg *GroupConfig, newOwner, by string, removeOldOwner bool, now uint64) error {
	if newOwner == cfg.Owner {
		return errors.Wrap(ErrProtectedTarget, "cannot transfer ownership to the current owner")
	}
	if !isMember(s, groupID, newOwner) {
		return errors.Wrapf(ErrTargetNotMember, "new owner %s", newOwner)
	}
	if isBlacklisted(s, groupID, newOwner) {
		return errors.Wrapf(ErrBlacklisted, "new owner %s", newOwner)
	}

	oldOwner := cfg.Owner
	cfg.Owner = newOwner
	if err := saveGroupConfig(s, groupID, cfg); err != nil {
		return err
	}

	// path grants are keyed by group id, not by the granting owner, so
	// permissions issued under the old tenure keep resolving
	if removeOldOwner && oldOwner != newOwner && isMember(s, groupID, oldOwner) {
		if err := e.softRemoveMember(s, groupID, oldOwner, by, now); err != nil {
			return err
		}
	}
	return nil
}

// --- direct operations for traditional groups ---
//
// Member-driven groups mutate membership exclusively through executed
// proposals; these entry points refuse them.

func (e *Engine) directGuard(groupID, actor string, required uint8) (*GroupConfig, error) {
	cfg, err := loadGroupConfig(e.store, groupID)
	if err != nil {
		return nil, err
	}
	if cfg.MemberDriven {
		return nil, errors.Wrapf(ErrMemberDriven, "group %s", groupID)
	}
	if actor != cfg.Owner && !e.hasPermission(e.store, groupID, cfg, actor, groupRootPath(groupID), required) {
		return nil, errors.Wrapf(ErrPermissionDenied, "actor %s", actor)
	}
	return cfg, nil
}

// AddMember adds a member to a traditional group. Anyone may self-join a
// public group; otherwise the granter needs Manage on the group root.
func (e *Engine) AddMember(groupID, account, grantedBy string) error {
	cfg, err := loadGroupConfig(e.store, groupID)
	if err != nil {
		return err
	}
	if cfg.MemberDriven {
		return errors.Wrapf(ErrMemberDriven, "group %s", groupID)
	}

	selfJoin := account == grantedBy
	if isBlacklisted(e.store, groupID, grantedBy) {
		return errors.Wrapf(ErrBlacklisted, "account %s", grantedBy)
	}
	if !(selfJoin && !cfg.IsPrivate) && grantedBy != cfg.Owner &&
		!e.hasPermission(e.store, groupID, cfg, grantedBy, groupRootPath(groupID), LevelManage) {
		return errors.Wrapf(ErrPermissionDenied, "granter %s", grantedBy)
	}

	now := e.now()
	s := newStaged(e.store)
	if err := e.addMemberRecord(s, groupID, account, grantedBy, false, now); err != nil {
		return err
	}
	s.Commit()

	e.emit("member_added", grantedBy, logrus.Fields{"group_id": groupID, "target": account})
	return nil
}

func (e *Engine) RemoveMember(groupID, account, removedBy string) error {
	cfg, err := e.directGuard(groupID, removedBy, LevelManage)
	if err != nil {
		return err
	}
	if account == cfg.Owner {
		return errors.Wrap(ErrProtectedTarget, "group owner cannot be removed")
	}

	s := newStaged(e.store)
	if err := e.softRemoveMember(s, groupID, account, removedBy, e.now()); err != nil {
		return err
	}
	s.Commit()

	e.emit("member_removed", removedBy, logrus.Fields{"group_id": groupID, "target": account})
	return nil
}

func (e *Engine) BanMember(groupID, account, bannedBy, reason string) error {
	cfg, err := e.directGuard(groupID, bannedBy, LevelManage)
	if err != nil {
		return err
	}

	s := newStaged(e.store)
	if err := e.banMember(s, groupID, cfg, account, bannedBy, reason, e.now()); err != nil {
		return err
	}
	s.Commit()

	e.emit("member_banned", bannedBy, logrus.Fields{"group_id": groupID, "target": account})
	return nil
}

func (e *Engine) UnbanMember(groupID, account, unbannedBy string) error {
	_, err := e.directGuard(groupID, unbannedBy, LevelManage)
	if err != nil {
		return err
	}

	s := newStaged(e.store)
	e.unbanMember(s, groupID, account)
	s.Commit()

	e.emit("member_unbanned", unbannedBy, logrus.Fields{"group_id": groupID, "target": account})
	return nil
}

func (e *Engine) TransferOwnership(groupID, newOwner, by string, removeOldOwner bool) error {
	cfg, err := loadGroupConfig(e.store, groupID)
	if err != nil {
		return err
	}
	if cfg.MemberDriven {
		return errors.Wrapf(ErrMemberDriven, "group %s", groupID)
	}
	if by != cfg.Owner {
		return errors.Wrap(ErrPermissionDenied, "only the owner can transfer ownership")
	}

	s := newStaged(e.store)
	if err := e.transferOwnershipRecord(s, groupID, cfg, newOwner, by, removeOldOwner, e.now()); err != nil {
		return err
	}
	s.Commit()

	e.emit("ownership_transferred", by, logrus.Fields{"group_id": groupID, "new_owner": newOwner})
	return nil
}

// IsMember reports active membership in the group.
func (e *Engine) IsMember(groupID, account string) bool {
	return isMember(e.store, groupID, account)
}

// IsBlacklisted reports whether the account is banned from the group.
func (e *Engine) IsBlacklisted(groupID, account string) bool {
	return isBlacklisted(e.store, groupID, account)
}

// MemberCount returns the current (not locked) member count.
func (e *Engine) MemberCount(groupID string) uint64 {
	return getUint64(e.store, memberCountPath(groupID))
}

// GetGroup returns the group config.
func (e *Engine) GetGroup(groupID string) (*GroupConfig, error) {
	return loadGroupConfig(e.store, groupID)
}

// GetMember returns the membership record, tombstoned or not.
func (e *Engine) GetMember(groupID, account string) (*Member, error) {
	m, ok := getMember(e.store, groupID, account)
	if !ok {
		return nil, errors.Wrapf(ErrTargetNotMember, "account %s", account)
	}
	return m, nil
}
