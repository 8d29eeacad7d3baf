// Package trigger persists fire schedules and drives the clock loop that
// turns them into dispatch enqueues. A trigger is a weak companion record
// keyed "ref:entityID"; it must never outlive its entity and is re-armed
// from the database on every process start.
package trigger

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"herald/internal/store"
)

// ErrBadSchedule rejects a malformed cron expression. Validation happens
// before any database write so a bad schedule never leaves an orphaned
// entity behind.
var ErrBadSchedule = errors.New("trigger: invalid cron schedule")

const (
	kindCron = "cron"
	kindDate = "date"
)

// parser accepts standard five-field crontab expressions with an optional
// leading seconds field.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Key builds the trigger key for an entity, e.g. Key("ping", 7) == "ping:7".
func Key(ref string, entityID uint) string {
	return fmt.Sprintf("%s:%d", ref, entityID)
}

// ParseCron validates spec and returns its schedule.
func ParseCron(spec string) (cron.Schedule, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadSchedule, spec, err)
	}
	return sched, nil
}

// Registration describes one durable schedule. Exactly one of Cron or
// FireAt is set, matching the entity it belongs to.
type Registration struct {
	Ref      string
	EntityID uint

	Cron   string    // recurring
	FireAt time.Time // one-shot

	Grace    time.Duration // 0 means the engine default applies
	Coalesce bool
}

func (r Registration) key() string { return Key(r.Ref, r.EntityID) }

// row converts the registration to its persisted form, computing the first
// fire instant relative to now.
func (r Registration) row(now time.Time) (store.Trigger, error) {
	t := store.Trigger{
		Key:      r.key(),
		Ref:      r.Ref,
		EntityID: r.EntityID,
		Grace:    int64(r.Grace / time.Second),
		Coalesce: r.Coalesce,
	}
	if r.Cron != "" {
		sched, err := ParseCron(r.Cron)
		if err != nil {
			return store.Trigger{}, err
		}
		t.Kind = kindCron
		t.Spec = r.Cron
		t.NextFire = sched.Next(now).Unix()
		return t, nil
	}
	t.Kind = kindDate
	t.FireAt = r.FireAt.Unix()
	t.NextFire = t.FireAt
	return t, nil
}

// persistRegistration upserts the trigger row inside tx. Re-registering an
// existing key replaces the prior schedule; it is not an error.
func persistRegistration(tx *gorm.DB, row store.Trigger) error {
	return tx.Save(&row).Error
}

// unpersist deletes the trigger row for key. Removing an absent key is a
// no-op: deletes race freely with delivery and the sweep.
func unpersist(tx *gorm.DB, key string) (bool, error) {
	res := tx.Delete(&store.Trigger{}, "key = ?", key)
	return res.RowsAffected > 0, res.Error
}

// updateGrace rewrites only the grace window, leaving the schedule, its
// identity and its next fire instant untouched.
func updateGrace(tx *gorm.DB, key string, grace time.Duration) (bool, error) {
	res := tx.Model(&store.Trigger{}).Where("key = ?", key).
		UpdateColumn("grace", int64(grace/time.Second))
	return res.RowsAffected > 0, res.Error
}

func loadAll(db *gorm.DB) ([]store.Trigger, error) {
	var rows []store.Trigger
	err := db.Find(&rows).Error
	return rows, err
}
