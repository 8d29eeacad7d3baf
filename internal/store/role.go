package store

import (
	"errors"

	"gorm.io/gorm"
)

const roleTable = "roles"

// UpsertRole inserts r for its guild, or relocates it if the guild already
// offers r.RoleID (the old row is removed first, closing its slot). A nil
// at appends. maxPerGuild caps the guild's role count; zero disables the
// ceiling. Relocating never trips the ceiling since the count is back
// under it by insert time.
func UpsertRole(tx *gorm.DB, r *Role, at *int, maxPerGuild int) error {
	if err := ensureGuild(tx, r.GuildID); err != nil {
		return err
	}

	var prior Role
	err := tx.Where("guild_id = ? AND role_id = ?", r.GuildID, r.RoleID).
		Take(&prior).Error
	switch {
	case err == nil:
		if err := deleteRoleRow(tx, &prior); err != nil {
			return err
		}
	case errors.Is(notFound(err), ErrNotFound):
	default:
		return err
	}

	n, err := countSiblings(tx, roleTable, r.GuildID)
	if err != nil {
		return err
	}
	if maxPerGuild > 0 && n >= maxPerGuild {
		return ErrCapacityExceeded
	}
	idx, err := resolveInsertIndex(at, n)
	if err != nil {
		return err
	}
	if idx < n {
		if err := openSlot(tx, roleTable, r.GuildID, idx); err != nil {
			return err
		}
	}
	r.Idx = idx
	return tx.Create(r).Error
}

// GetRole loads the role at the guild-scoped ordinal.
func GetRole(tx *gorm.DB, guildID string, idx int) (*Role, error) {
	var r Role
	err := tx.Where("guild_id = ? AND idx = ?", guildID, idx).Take(&r).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// ListRoles returns the guild's roles in ordinal order.
func ListRoles(tx *gorm.DB, guildID string) ([]Role, error) {
	var roles []Role
	err := tx.Where("guild_id = ?", guildID).Order("idx").Find(&roles).Error
	return roles, err
}

// DeleteRole removes the role at idx and closes the gap, returning the
// removed row.
func DeleteRole(tx *gorm.DB, guildID string, idx int) (*Role, error) {
	r, err := GetRole(tx, guildID, idx)
	if err != nil {
		return nil, err
	}
	if err := deleteRoleRow(tx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func deleteRoleRow(tx *gorm.DB, r *Role) error {
	if err := tx.Delete(&Role{}, r.ID).Error; err != nil {
		return err
	}
	return closeSlot(tx, roleTable, r.GuildID, r.Idx)
}
