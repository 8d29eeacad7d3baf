package store

import (
	"gorm.io/gorm"
)

// The dense-ordinal invariant: within one guild, the live rows of an
// ordered table always hold idx 0..n-1 with no gaps or duplicates. Every
// helper below runs inside the caller's transaction so concurrent
// operations on the same guild serialize through the store and readers
// never see a half-renumbered list.

func countSiblings(tx *gorm.DB, table, guildID string) (int, error) {
	var n int64
	err := tx.Table(table).Where("guild_id = ?", guildID).Count(&n).Error
	return int(n), err
}

// openSlot shifts idx >= at up by one, making room for an insert at `at`.
func openSlot(tx *gorm.DB, table, guildID string, at int) error {
	return tx.Table(table).
		Where("guild_id = ? AND idx >= ?", guildID, at).
		UpdateColumn("idx", gorm.Expr("idx + 1")).Error
}

// closeSlot shifts idx > removed down by one, closing the gap left by a
// removal at `removed`.
func closeSlot(tx *gorm.DB, table, guildID string, removed int) error {
	return tx.Table(table).
		Where("guild_id = ? AND idx > ?", guildID, removed).
		UpdateColumn("idx", gorm.Expr("idx - 1")).Error
}

// relocate renumbers every sibling between from and to after the row at
// `from` (already parked outside the range by the caller) moves to `to`.
func relocate(tx *gorm.DB, table, guildID string, from, to int) error {
	if from < to {
		return tx.Table(table).
			Where("guild_id = ? AND idx > ? AND idx <= ?", guildID, from, to).
			UpdateColumn("idx", gorm.Expr("idx - 1")).Error
	}
	return tx.Table(table).
		Where("guild_id = ? AND idx >= ? AND idx < ?", guildID, to, from).
		UpdateColumn("idx", gorm.Expr("idx + 1")).Error
}

// resolveInsertIndex validates at against [0, length] and defaults a nil
// at to an append.
func resolveInsertIndex(at *int, length int) (int, error) {
	if at == nil {
		return length, nil
	}
	if *at < 0 || *at > length {
		return 0, ErrIndexOutOfRange
	}
	return *at, nil
}
