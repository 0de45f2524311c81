package core

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// pathWithinGroup reports whether path sits under the group's subtree.
func pathWithinGroup(groupID, path string) bool {
	root := groupRootPath(groupID)
	return path == root || strings.HasPrefix(path, root+"/")
}

func parentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return ""
	}
	return path[:idx]
}

func grantPermission(s Store, groupID, grantee, path string, level uint8, expiresAt uint64, grantedBy string, nonce, now uint64) error {
	return putJSON(s, grantPath(groupID, grantee, path), &PathGrant{
		Level:     level,
		ExpiresAt: expiresAt,
		Nonce:     nonce,
		GrantedBy: grantedBy,
		GrantedAt: now,
	})
}

// revokePermission is idempotent on missing grants.
func revokePermission(s Store, groupID, grantee, path string) {
	s.Delete(grantPath(groupID, grantee, path))
}

// hasPermission checks the actor's grant on path or any parent path up to
// the group root. The owner holds implicit full access. Grants from an
// earlier membership tenure (stale nonce) or past their expiry don't count.
func (e *Engine) hasPermission(s Store, groupID string, cfg *GroupConfig, actor, path string, required uint8) bool {
	if actor == cfg.Owner {
		return true
	}
	if !isMember(s, groupID, actor) {
		return false
	}

	nonce := memberNonce(s, groupID, actor)
	now := e.now()
	root := groupRootPath(groupID)

	for p := path; p != ""; p = parentPath(p) {
		grant := &PathGrant{}
		if ok, err := getJSON(s, grantPath(groupID, actor, p), grant); ok && err == nil {
			valid := (grant.Nonce == 0 || grant.Nonce == nonce) &&
				(grant.ExpiresAt == 0 || now < grant.ExpiresAt)
			if valid && grant.Level >= required {
				return true
			}
		}
		if p == root {
			break
		}
	}
	return false
}

// HasPermission reports whether actor holds at least the required level on
// path, with inheritance from parent paths.
func (e *Engine) HasPermission(groupID, actor, path string, required uint8) (bool, error) {
	cfg, err := loadGroupConfig(e.store, groupID)
	if err != nil {
		return false, err
	}
	return e.hasPermission(e.store, groupID, cfg, actor, path, required), nil
}

// GrantPathPermission is the direct grant path for traditional groups.
// Member-driven groups grant only through path_permission_grant proposals.
func (e *Engine) GrantPathPermission(groupID, granter, grantee, path string, level uint8, expiresAt uint64) error {
	cfg, err := loadGroupConfig(e.store, groupID)
	if err != nil {
		return err
	}
	if cfg.MemberDriven {
		return errors.Wrapf(ErrMemberDriven, "group %s", groupID)
	}
	if granter != cfg.Owner && !e.hasPermission(e.store, groupID, cfg, granter, groupRootPath(groupID), LevelManage) {
		return errors.Wrapf(ErrPermissionDenied, "granter %s", granter)
	}
	if !pathWithinGroup(groupID, path) {
		return errors.Wrapf(ErrInvalidPayload, "path %s is outside group %s", path, groupID)
	}
	if !ValidPermissionLevel(level, false) {
		return errors.Wrapf(ErrInvalidPayload, "invalid permission level %d", level)
	}
	if !isMember(e.store, groupID, grantee) {
		return errors.Wrapf(ErrTargetNotMember, "grantee %s", grantee)
	}

	s := newStaged(e.store)
	nonce := memberNonce(s, groupID, grantee)
	if err := grantPermission(s, groupID, grantee, path, level, expiresAt, granter, nonce, e.now()); err != nil {
		return err
	}
	s.Commit()

	e.emit("path_permission_granted", granter, logrus.Fields{
		"group_id": groupID, "target": grantee, "path": path, "level": level,
	})
	return nil
}

// RevokePathPermission removes a direct grant; missing grants are a no-op.
func (e *Engine) RevokePathPermission(groupID, revoker, grantee, path string) error {
	cfg, err := loadGroupConfig(e.store, groupID)
	if err != nil {
		return err
	}
	if cfg.MemberDriven {
		return errors.Wrapf(ErrMemberDriven, "group %s", groupID)
	}
	if revoker != cfg.Owner && !e.hasPermission(e.store, groupID, cfg, revoker, groupRootPath(groupID), LevelManage) {
		return errors.Wrapf(ErrPermissionDenied, "revoker %s", revoker)
	}

	s := newStaged(e.store)
	revokePermission(s, groupID, grantee, path)
	s.Commit()

	e.emit("path_permission_revoked", revoker, logrus.Fields{
		"group_id": groupID, "target": grantee, "path": path,
	})
	return nil
}
