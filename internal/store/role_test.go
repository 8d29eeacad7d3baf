package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func mkRole(guildID, roleID, desc string) *Role {
	return &Role{GuildID: guildID, RoleID: roleID, Description: desc}
}

// requireRoleOrder asserts the guild's roles occupy exactly 0..n-1 in the
// given role-id order.
func requireRoleOrder(t *testing.T, db *gorm.DB, guildID string, want []string) {
	t.Helper()
	roles, err := ListRoles(db, guildID)
	require.NoError(t, err)
	require.Len(t, roles, len(want))
	for i, r := range roles {
		require.Equal(t, i, r.Idx)
		require.Equal(t, want[i], r.RoleID)
	}
}

func TestUpsertRoleAppendsAndInserts(t *testing.T) {
	s := openTest(t)
	db := s.DB()

	require.NoError(t, UpsertRole(db, mkRole("g1", "r-a", "alpha"), nil, 0))
	require.NoError(t, UpsertRole(db, mkRole("g1", "r-b", "beta"), nil, 0))
	require.NoError(t, UpsertRole(db, mkRole("g1", "r-c", "gamma"), intPtr(1), 0))
	requireRoleOrder(t, db, "g1", []string{"r-a", "r-c", "r-b"})

	require.ErrorIs(t, UpsertRole(db, mkRole("g1", "r-x", ""), intPtr(4), 0), ErrIndexOutOfRange)
}

func TestUpsertRoleRelocatesExisting(t *testing.T) {
	s := openTest(t)
	db := s.DB()

	for _, id := range []string{"r-a", "r-b", "r-c"} {
		require.NoError(t, UpsertRole(db, mkRole("g1", id, ""), nil, 0))
	}

	// upserting a known role id moves it instead of duplicating it
	require.NoError(t, UpsertRole(db, mkRole("g1", "r-c", "updated"), intPtr(0), 0))
	requireRoleOrder(t, db, "g1", []string{"r-c", "r-a", "r-b"})

	head, err := GetRole(db, "g1", 0)
	require.NoError(t, err)
	require.Equal(t, "updated", head.Description)

	// nil index re-appends
	require.NoError(t, UpsertRole(db, mkRole("g1", "r-a", ""), nil, 0))
	requireRoleOrder(t, db, "g1", []string{"r-c", "r-b", "r-a"})
}

func TestUpsertRoleCapacity(t *testing.T) {
	s := openTest(t)
	db := s.DB()

	for i := 0; i < 3; i++ {
		require.NoError(t, UpsertRole(db, mkRole("g1", fmt.Sprintf("r-%d", i), ""), nil, 3))
	}
	require.ErrorIs(t, UpsertRole(db, mkRole("g1", "r-over", ""), nil, 3), ErrCapacityExceeded)

	// relocating an existing role does not count against the ceiling
	require.NoError(t, UpsertRole(db, mkRole("g1", "r-1", ""), intPtr(0), 3))
	requireRoleOrder(t, db, "g1", []string{"r-1", "r-0", "r-2"})
}

func TestDeleteRoleClosesGap(t *testing.T) {
	s := openTest(t)
	db := s.DB()

	for _, id := range []string{"r-a", "r-b", "r-c"} {
		require.NoError(t, UpsertRole(db, mkRole("g1", id, ""), nil, 0))
	}

	removed, err := DeleteRole(db, "g1", 1)
	require.NoError(t, err)
	require.Equal(t, "r-b", removed.RoleID)
	requireRoleOrder(t, db, "g1", []string{"r-a", "r-c"})

	_, err = DeleteRole(db, "g1", 5)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResetGuildDropsRoles(t *testing.T) {
	s := openTest(t)
	db := s.DB()

	require.NoError(t, UpsertRole(db, mkRole("g1", "r-a", ""), nil, 0))
	require.NoError(t, UpsertRole(db, mkRole("g2", "r-z", ""), nil, 0))

	_, _, err := ResetGuild(db, "g1")
	require.NoError(t, err)
	requireRoleOrder(t, db, "g1", nil)
	requireRoleOrder(t, db, "g2", []string{"r-z"})
}
