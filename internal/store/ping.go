package store

import (
	"errors"

	"gorm.io/gorm"
)

const pingTable = "pings"

// CreatePing inserts p for its guild. A nil at appends; otherwise siblings
// at and beyond the slot shift up by one. maxPerGuild caps the guild's
// ping count; zero disables the ceiling.
func CreatePing(tx *gorm.DB, p *Ping, at *int, maxPerGuild int) error {
	if err := ensureGuild(tx, p.GuildID); err != nil {
		return err
	}
	n, err := countSiblings(tx, pingTable, p.GuildID)
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
		if err := openSlot(tx, pingTable, p.GuildID, idx); err != nil {
			return err
		}
	}
	p.Idx = idx
	return tx.Create(p).Error
}

// GetPing loads the ping at the guild-scoped ordinal.
func GetPing(tx *gorm.DB, guildID string, idx int) (*Ping, error) {
	var p Ping
	err := tx.Where("guild_id = ? AND idx = ?", guildID, idx).Take(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// GetPingByID loads a ping by primary key.
func GetPingByID(tx *gorm.DB, id uint) (*Ping, error) {
	var p Ping
	err := tx.Take(&p, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// ListPings returns the guild's pings in ordinal order.
func ListPings(tx *gorm.DB, guildID string) ([]Ping, error) {
	var pings []Ping
	err := tx.Where("guild_id = ?", guildID).Order("idx").Find(&pings).Error
	return pings, err
}

// ListAllPings returns every ping across all guilds. The subscriber
// refresh walks this.
func ListAllPings(tx *gorm.DB) ([]Ping, error) {
	var pings []Ping
	err := tx.Order("guild_id, idx").Find(&pings).Error
	return pings, err
}

// UpdatePing persists all fields of p.
func UpdatePing(tx *gorm.DB, p *Ping) error {
	return tx.Save(p).Error
}

// SetPingSubscribers records the derived member count for one ping.
func SetPingSubscribers(tx *gorm.DB, id uint, count int) error {
	return tx.Model(&Ping{}).Where("id = ?", id).
		UpdateColumn("subscribers", count).Error
}

// DeletePing removes the ping at idx and closes the gap, returning the
// removed row.
func DeletePing(tx *gorm.DB, guildID string, idx int) (*Ping, error) {
	p, err := GetPing(tx, guildID, idx)
	if err != nil {
		return nil, err
	}
	if err := deletePingRow(tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePingByID removes a ping by primary key and closes the gap. Missing
// rows are a no-op so delivery can race entity deletion safely.
func DeletePingByID(tx *gorm.DB, id uint) error {
	var p Ping
	err := tx.Take(&p, id).Error
	if err != nil {
		if errors.Is(notFound(err), ErrNotFound) {
			return nil
		}
		return err
	}
	return deletePingRow(tx, &p)
}

func deletePingRow(tx *gorm.DB, p *Ping) error {
	if err := tx.Delete(&Ping{}, p.ID).Error; err != nil {
		return err
	}
	return closeSlot(tx, pingTable, p.GuildID, p.Idx)
}

// MovePing relocates the ping at from to to, renumbering every sibling in
// between.
func MovePing(tx *gorm.DB, guildID string, from, to int) error {
	n, err := countSiblings(tx, pingTable, guildID)
	if err != nil {
		return err
	}
	if from < 0 || from >= n || to < 0 || to >= n {
		return ErrIndexOutOfRange
	}
	if from == to {
		return nil
	}
	p, err := GetPing(tx, guildID, from)
	if err != nil {
		return err
	}
	// Park the moving row outside the dense range while siblings shift.
	if err := tx.Model(&Ping{}).Where("id = ?", p.ID).
		UpdateColumn("idx", -1).Error; err != nil {
		return err
	}
	if err := relocate(tx, pingTable, guildID, from, to); err != nil {
		return err
	}
	return tx.Model(&Ping{}).Where("id = ?", p.ID).
		UpdateColumn("idx", to).Error
}
