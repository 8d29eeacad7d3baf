package service

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"herald/internal/dispatch"
	"herald/internal/store"
	"herald/internal/trigger"
)

// Guilds owns the whole-guild operations.
type Guilds struct {
	st   *store.Store
	trig *trigger.Service
	log  zerolog.Logger
}

func NewGuilds(st *store.Store, trig *trigger.Service, log zerolog.Logger) *Guilds {
	return &Guilds{
		st:   st,
		trig: trig,
		log:  log.With().Str("component", "guilds").Logger(),
	}
}

// Reset deletes everything the guild owns: pings, raids, signups, and the
// triggers that drove them.
func (s *Guilds) Reset(ctx context.Context, guildID string) error {
	var keys []string
	err := s.st.Tx(ctx, func(tx *gorm.DB) error {
		pings, raids, err := store.ResetGuild(tx, guildID)
		if err != nil {
			return err
		}
		for _, p := range pings {
			keys = append(keys, trigger.Key(string(dispatch.KindPing), p.ID))
		}
		for _, r := range raids {
			keys = append(keys, trigger.Key(string(dispatch.KindRaid), r.ID))
		}
		for _, key := range keys {
			if _, err := s.trig.Unregister(tx, key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		s.trig.Disarm(key)
	}
	s.log.Info().Str("guild", guildID).Int("triggers", len(keys)).Msg("guild reset")
	return nil
}
