package trigger

import (
	"time"

	"gorm.io/gorm"
)

// Registration and arming are split in two so trigger rows commit or roll
// back with the entity rows they belong to: persist inside the caller's
// transaction, then arm the in-memory engine only once the transaction has
// committed. If the process dies between commit and arm, the next start
// re-arms from the database.

// Register validates reg (before anything is written) and upserts its
// durable row inside tx. Re-registering an existing key replaces the prior
// schedule.
func (s *Service) Register(tx *gorm.DB, reg Registration) error {
	row, err := reg.row(s.now())
	if err != nil {
		return err
	}
	return persistRegistration(tx, row)
}

// Arm makes reg live on the engine, replacing any prior armed state for
// its key. reg must already have passed Register's validation.
func (s *Service) Arm(reg Registration) {
	row, err := reg.row(s.now())
	if err != nil {
		s.log.Error().Err(err).Str("key", reg.key()).Msg("arming rejected")
		return
	}
	a, err := armFromRow(row)
	if err != nil {
		s.log.Error().Err(err).Str("key", reg.key()).Msg("arming rejected")
		return
	}
	s.mu.Lock()
	s.armed[a.key] = a
	s.mu.Unlock()
	s.log.Debug().Str("key", a.key).Time("next", a.next).Msg("trigger armed")
}

// Unregister deletes the durable row inside tx. It reports whether a row
// existed; unregistering an absent key is a no-op, not an error.
func (s *Service) Unregister(tx *gorm.DB, key string) (bool, error) {
	return unpersist(tx, key)
}

// Disarm drops the in-memory armed state for key. Best-effort: a firing
// that already happened is backstopped by delivery's existence check.
func (s *Service) Disarm(key string) {
	s.mu.Lock()
	_, ok := s.armed[key]
	delete(s.armed, key)
	s.mu.Unlock()
	if ok {
		s.log.Debug().Str("key", key).Msg("trigger disarmed")
	}
}

// UpdateGrace rewrites only the grace window of an existing registration,
// preserving its identity and next fire instant.
func (s *Service) UpdateGrace(tx *gorm.DB, key string, grace time.Duration) (bool, error) {
	return updateGrace(tx, key, grace)
}

// ApplyGrace is UpdateGrace's in-memory half.
func (s *Service) ApplyGrace(key string, grace time.Duration) {
	s.mu.Lock()
	if a, ok := s.armed[key]; ok {
		a.grace = grace
	}
	s.mu.Unlock()
}

// NextFire reports the armed next fire instant for key.
func (s *Service) NextFire(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.armed[key]
	if !ok {
		return time.Time{}, false
	}
	return a.next, true
}

// ArmedCount reports how many triggers are currently armed.
func (s *Service) ArmedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.armed)
}
