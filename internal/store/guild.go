package store

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ensureGuild creates the guild row on first use. Creation is lazy; a
// guild exists only once it owns at least one child.
func ensureGuild(tx *gorm.DB, guildID string) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Guild{ID: guildID}).Error
}

// ResetGuild removes the guild and everything it owns. The deleted pings
// and raids are returned so the caller can retire their triggers in the
// same transaction.
func ResetGuild(tx *gorm.DB, guildID string) ([]Ping, []Raid, error) {
	var pings []Ping
	if err := tx.Where("guild_id = ?", guildID).Find(&pings).Error; err != nil {
		return nil, nil, err
	}
	var raids []Raid
	if err := tx.Where("guild_id = ?", guildID).Find(&raids).Error; err != nil {
		return nil, nil, err
	}

	if err := tx.Where("raid_id IN (?)",
		tx.Session(&gorm.Session{NewDB: true}).Model(&Raid{}).Select("id").Where("guild_id = ?", guildID),
	).Delete(&RaidUser{}).Error; err != nil {
		return nil, nil, err
	}
	if err := tx.Where("guild_id = ?", guildID).Delete(&Raid{}).Error; err != nil {
		return nil, nil, err
	}
	if err := tx.Where("guild_id = ?", guildID).Delete(&Ping{}).Error; err != nil {
		return nil, nil, err
	}
	if err := tx.Where("guild_id = ?", guildID).Delete(&Role{}).Error; err != nil {
		return nil, nil, err
	}
	if err := tx.Delete(&Guild{ID: guildID}).Error; err != nil {
		return nil, nil, err
	}
	return pings, raids, nil
}
