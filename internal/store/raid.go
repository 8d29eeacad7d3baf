package store

import (
	"errors"

	"gorm.io/gorm"
)

const raidTable = "raids"

// CreateRaid appends r to its guild's raid sequence.
func CreateRaid(tx *gorm.DB, r *Raid) error {
	if err := ensureGuild(tx, r.GuildID); err != nil {
		return err
	}
	n, err := countSiblings(tx, raidTable, r.GuildID)
	if err != nil {
		return err
	}
	r.Idx = n
	return tx.Create(r).Error
}

// GetRaidByID loads a raid and its signups.
func GetRaidByID(tx *gorm.DB, id uint) (*Raid, error) {
	var r Raid
	err := tx.Preload("Users").Take(&r, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// GetRaidByMessage resolves a raid from its announcement message, the
// handle users see.
func GetRaidByMessage(tx *gorm.DB, guildID, messageID string) (*Raid, error) {
	var r Raid
	err := tx.Preload("Users").
		Where("guild_id = ? AND message_id = ?", guildID, messageID).
		Take(&r).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// ListRaids returns every raid in the database, signups included. The
// reconciliation sweep walks this.
func ListRaids(tx *gorm.DB) ([]Raid, error) {
	var raids []Raid
	err := tx.Preload("Users").Order("guild_id, idx").Find(&raids).Error
	return raids, err
}

// SetRaidMessage records the posted announcement message.
func SetRaidMessage(tx *gorm.DB, raidID uint, messageID string) error {
	res := tx.Model(&Raid{}).Where("id = ?", raidID).
		UpdateColumn("message_id", messageID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRaidByID removes a raid, its signups, and closes the ordinal gap.
// Missing rows are a no-op.
func DeleteRaidByID(tx *gorm.DB, id uint) error {
	var r Raid
	err := tx.Take(&r, id).Error
	if err != nil {
		if errors.Is(notFound(err), ErrNotFound) {
			return nil
		}
		return err
	}
	return deleteRaidRow(tx, &r)
}

// DeleteRaidByMessage removes the raid owning messageID. Returns the
// deleted raid so the caller can retire its trigger.
func DeleteRaidByMessage(tx *gorm.DB, guildID, messageID string) (*Raid, error) {
	r, err := GetRaidByMessage(tx, guildID, messageID)
	if err != nil {
		return nil, err
	}
	if err := deleteRaidRow(tx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func deleteRaidRow(tx *gorm.DB, r *Raid) error {
	if err := tx.Where("raid_id = ?", r.ID).Delete(&RaidUser{}).Error; err != nil {
		return err
	}
	if err := tx.Delete(&Raid{}, r.ID).Error; err != nil {
		return err
	}
	return closeSlot(tx, raidTable, r.GuildID, r.Idx)
}

// GetRaidUser loads one signup.
func GetRaidUser(tx *gorm.DB, raidID uint, userID string) (*RaidUser, error) {
	var u RaidUser
	err := tx.Where("raid_id = ? AND user_id = ?", raidID, userID).Take(&u).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// UpsertRaidUser creates or updates the signup for (raidID, userID).
func UpsertRaidUser(tx *gorm.DB, raidID uint, userID, role string, cleared bool) (*RaidUser, error) {
	u, err := GetRaidUser(tx, raidID, userID)
	switch {
	case err == nil:
		u.Role = role
		u.Cleared = cleared
		return u, tx.Save(u).Error
	case errors.Is(err, ErrNotFound):
		u = &RaidUser{RaidID: raidID, UserID: userID, Role: role, Cleared: cleared}
		return u, tx.Create(u).Error
	default:
		return nil, err
	}
}

// DeleteRaidUser removes one signup; the raid itself is untouched.
func DeleteRaidUser(tx *gorm.DB, raidID uint, userID string) error {
	u, err := GetRaidUser(tx, raidID, userID)
	if err != nil {
		return err
	}
	return tx.Delete(&RaidUser{}, u.ID).Error
}
