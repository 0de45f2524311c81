package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerHasImplicitFullAccess(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	group := newTraditionalGroup(t, engine, true)

	ok, err := engine.HasPermission(group, "owner", groupContentPath(group)+"/anything", LevelFullAccess)
	require.Nil(t, err)
	assert.True(t, ok)
}

func TestNonMemberHasNoPermission(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	group := newTraditionalGroup(t, engine, true)

	ok, err := engine.HasPermission(group, "stranger", groupContentPath(group), LevelWrite)
	require.Nil(t, err)
	assert.False(t, ok)
}

func TestPermissionInheritance(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	group := newTraditionalGroup(t, engine, true)
	require.Nil(t, engine.AddMember(group, "m1", "owner"))

	require.Nil(t, engine.GrantPathPermission(group, "owner", "m1", groupRootPath(group), LevelModerate, 0))

	// the root grant covers any descendant path
	for _, path := range []string{
		groupRootPath(group),
		groupContentPath(group),
		groupContentPath(group) + "/wiki/page",
	} {
		ok, err := engine.HasPermission(group, "m1", path, LevelModerate)
		require.Nil(t, err)
		assert.True(t, ok, "path %s", path)
	}

	// but never a higher level
	ok, err := engine.HasPermission(group, "m1", groupContentPath(group), LevelManage)
	require.Nil(t, err)
	assert.False(t, ok)
}

func TestPermissionDoesNotEscapeGroup(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	group := newTraditionalGroup(t, engine, true)
	require.Nil(t, engine.AddMember(group, "m1", "owner"))

	err := engine.GrantPathPermission(group, "owner", "m1", "groups/other/content", LevelWrite, 0)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestGrantExpiry(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	group := newTraditionalGroup(t, engine, true)
	require.Nil(t, engine.AddMember(group, "m1", "owner"))

	expiresAt := clock.now + uint64(time.Hour)
	path := groupContentPath(group) + "/tmp"
	require.Nil(t, engine.GrantPathPermission(group, "owner", "m1", path, LevelModerate, expiresAt))

	ok, err := engine.HasPermission(group, "m1", path, LevelModerate)
	require.Nil(t, err)
	assert.True(t, ok)

	// the expiry instant itself no longer qualifies
	clock.now = expiresAt
	ok, err = engine.HasPermission(group, "m1", path, LevelModerate)
	require.Nil(t, err)
	assert.False(t, ok)
}

func TestStaleGrantAfterRejoin(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	group := newTraditionalGroup(t, engine, false)
	require.Nil(t, engine.AddMember(group, "m1", "owner"))

	path := groupContentPath(group) + "/wiki"
	require.Nil(t, engine.GrantPathPermission(group, "owner", "m1", path, LevelModerate, 0))

	require.Nil(t, engine.RemoveMember(group, "m1", "owner"))
	require.Nil(t, engine.AddMember(group, "m1", "owner"))

	// the rejoin bumps the member nonce; grants from the earlier tenure
	// stop resolving even though the record is still stored
	ok, err := engine.HasPermission(group, "m1", path, LevelModerate)
	require.Nil(t, err)
	assert.False(t, ok)

	// the fresh tenure's content write grant works
	ok, err = engine.HasPermission(group, "m1", groupContentPath(group), LevelWrite)
	require.Nil(t, err)
	assert.True(t, ok)
}

func TestRemovedMemberLosesAllPermissions(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	group := newTraditionalGroup(t, engine, false)
	require.Nil(t, engine.AddMember(group, "m1", "owner"))
	require.Nil(t, engine.RemoveMember(group, "m1", "owner"))

	ok, err := engine.HasPermission(group, "m1", groupContentPath(group), LevelWrite)
	require.Nil(t, err)
	assert.False(t, ok)
}

func TestGrantRequiresManage(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	group := newTraditionalGroup(t, engine, true)
	require.Nil(t, engine.AddMember(group, "m1", "owner"))
	require.Nil(t, engine.AddMember(group, "m2", "owner"))

	err := engine.GrantPathPermission(group, "m1", "m2", groupContentPath(group), LevelModerate, 0)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestGrantToNonMember(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	group := newTraditionalGroup(t, engine, true)

	err := engine.GrantPathPermission(group, "owner", "stranger", groupContentPath(group), LevelWrite, 0)
	assert.ErrorIs(t, err, ErrTargetNotMember)
}

func TestRevokeMissingGrantIsNoop(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	group := newTraditionalGroup(t, engine, true)
	require.Nil(t, engine.AddMember(group, "m1", "owner"))

	assert.Nil(t, engine.RevokePathPermission(group, "owner", "m1", groupContentPath(group)+"/nothing"))
}

func TestPathWithinGroup(t *testing.T) {
	assert.True(t, pathWithinGroup("g", "groups/g"))
	assert.True(t, pathWithinGroup("g", "groups/g/content"))
	assert.False(t, pathWithinGroup("g", "groups/gg/content"))
	assert.False(t, pathWithinGroup("g", "groups/other"))
	assert.False(t, pathWithinGroup("g", "accounts/g"))
}
