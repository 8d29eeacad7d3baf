// Package service holds the operations the bot surface calls into. Every
// mutating operation follows the same shape: validate inputs before
// anything is written, run one store transaction that keeps entity rows
// and trigger rows in lockstep, then update the in-memory engine only
// after the transaction has committed.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"herald/internal/dispatch"
	"herald/internal/gateway"
	"herald/internal/store"
	"herald/internal/trigger"
)

// Pings manages recurring notification definitions.
type Pings struct {
	st          *store.Store
	trig        *trigger.Service
	gw          gateway.Client
	maxPerGuild int
	log         zerolog.Logger
}

func NewPings(st *store.Store, trig *trigger.Service, gw gateway.Client, maxPerGuild int, log zerolog.Logger) *Pings {
	return &Pings{
		st:          st,
		trig:        trig,
		gw:          gw,
		maxPerGuild: maxPerGuild,
		log:         log.With().Str("component", "pings").Logger(),
	}
}

// CreatePingInput carries everything a new ping needs. At is the target
// ordinal; nil appends.
type CreatePingInput struct {
	RoleID      string
	ChannelID   string
	Schedule    string
	Duration    time.Duration
	Description string
	At          *int
}

// Create validates, inserts the ping together with its recurring trigger,
// and arms the trigger once both rows are committed.
func (s *Pings) Create(ctx context.Context, guildID string, in CreatePingInput) (*store.Ping, error) {
	if _, err := trigger.ParseCron(in.Schedule); err != nil {
		return nil, err
	}
	if in.Duration < 0 {
		return nil, ErrNegativeDuration
	}

	p := &store.Ping{
		GuildID:     guildID,
		RoleID:      in.RoleID,
		ChannelID:   in.ChannelID,
		Schedule:    in.Schedule,
		Duration:    int(in.Duration / time.Second),
		Description: in.Description,
	}
	var reg trigger.Registration
	err := s.st.Tx(ctx, func(tx *gorm.DB) error {
		if err := store.CreatePing(tx, p, in.At, s.maxPerGuild); err != nil {
			return err
		}
		reg = s.registration(p)
		return s.trig.Register(tx, reg)
	})
	if err != nil {
		return nil, err
	}
	s.trig.Arm(reg)
	s.log.Info().Str("guild", guildID).Uint("ping", p.ID).
		Str("schedule", p.Schedule).Msg("ping created")
	return p, nil
}

// PingPatch is a partial update; nil fields are left untouched.
type PingPatch struct {
	RoleID      *string
	ChannelID   *string
	Schedule    *string
	Duration    *time.Duration
	Description *string

	// MoveTo renumbers the ping to another ordinal within its guild.
	MoveTo *int
}

// Edit applies patch to the ping at idx. A schedule change reschedules
// the trigger; a duration-only change rewrites the grace window without
// touching the next fire instant.
func (s *Pings) Edit(ctx context.Context, guildID string, idx int, patch PingPatch) (*store.Ping, error) {
	if patch.Schedule != nil {
		if _, err := trigger.ParseCron(*patch.Schedule); err != nil {
			return nil, err
		}
	}
	if patch.Duration != nil && *patch.Duration < 0 {
		return nil, ErrNegativeDuration
	}

	var (
		p          *store.Ping
		reschedule bool
		regrace    bool
		reg        trigger.Registration
	)
	err := s.st.Tx(ctx, func(tx *gorm.DB) error {
		var err error
		p, err = store.GetPing(tx, guildID, idx)
		if err != nil {
			return err
		}
		if patch.RoleID != nil {
			p.RoleID = *patch.RoleID
			p.Subscribers = nil
		}
		if patch.ChannelID != nil {
			p.ChannelID = *patch.ChannelID
		}
		if patch.Description != nil {
			p.Description = *patch.Description
		}
		reschedule = patch.Schedule != nil && *patch.Schedule != p.Schedule
		if patch.Schedule != nil {
			p.Schedule = *patch.Schedule
		}
		regrace = patch.Duration != nil && int(*patch.Duration/time.Second) != p.Duration
		if patch.Duration != nil {
			p.Duration = int(*patch.Duration / time.Second)
		}
		if err := store.UpdatePing(tx, p); err != nil {
			return err
		}

		switch {
		case reschedule:
			reg = s.registration(p)
			if err := s.trig.Register(tx, reg); err != nil {
				return err
			}
		case regrace:
			if _, err := s.trig.UpdateGrace(tx, s.key(p), pingGrace(p)); err != nil {
				return err
			}
		}

		if patch.MoveTo != nil {
			if err := store.MovePing(tx, guildID, idx, *patch.MoveTo); err != nil {
				return err
			}
			p.Idx = *patch.MoveTo
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	switch {
	case reschedule:
		s.trig.Arm(reg)
	case regrace:
		s.trig.ApplyGrace(s.key(p), pingGrace(p))
	}
	return p, nil
}

// Delete removes the ping at idx; siblings after it shift down by one.
func (s *Pings) Delete(ctx context.Context, guildID string, idx int) error {
	var key string
	err := s.st.Tx(ctx, func(tx *gorm.DB) error {
		p, err := store.DeletePing(tx, guildID, idx)
		if err != nil {
			return err
		}
		key = s.key(p)
		_, err = s.trig.Unregister(tx, key)
		return err
	})
	if err != nil {
		return err
	}
	s.trig.Disarm(key)
	s.log.Info().Str("guild", guildID).Int("idx", idx).Msg("ping deleted")
	return nil
}

// Get returns the ping at the guild-scoped ordinal.
func (s *Pings) Get(ctx context.Context, guildID string, idx int) (*store.Ping, error) {
	return store.GetPing(s.st.DB().WithContext(ctx), guildID, idx)
}

// List returns the guild's pings in ordinal order.
func (s *Pings) List(ctx context.Context, guildID string) ([]store.Ping, error) {
	return store.ListPings(s.st.DB().WithContext(ctx), guildID)
}

// NextFire reports when p will next fire, if its trigger is armed.
func (s *Pings) NextFire(p *store.Ping) (time.Time, bool) {
	return s.trig.NextFire(s.key(p))
}

// RefreshSubscribers rederives each ping's subscriber count from the
// gateway's role membership. Counts the gateway cannot answer keep their
// previous value.
func (s *Pings) RefreshSubscribers(ctx context.Context) error {
	pings, err := store.ListAllPings(s.st.DB().WithContext(ctx))
	if err != nil {
		return err
	}
	updated := 0
	for _, p := range pings {
		n, known, err := s.gw.RoleMemberCount(ctx, p.GuildID, p.RoleID)
		if err != nil {
			s.log.Warn().Err(err).Uint("ping", p.ID).Msg("role member count failed")
			continue
		}
		if !known {
			continue
		}
		if p.Subscribers != nil && *p.Subscribers == n {
			continue
		}
		if err := store.SetPingSubscribers(s.st.DB().WithContext(ctx), p.ID, n); err != nil {
			return err
		}
		updated++
	}
	if updated > 0 {
		s.log.Debug().Int("updated", updated).Msg("subscriber counts refreshed")
	}
	return nil
}

func (s *Pings) key(p *store.Ping) string {
	return trigger.Key(string(dispatch.KindPing), p.ID)
}

func (s *Pings) registration(p *store.Ping) trigger.Registration {
	return trigger.Registration{
		Ref:      string(dispatch.KindPing),
		EntityID: p.ID,
		Cron:     p.Schedule,
		Grace:    pingGrace(p),
		Coalesce: true,
	}
}

func pingGrace(p *store.Ping) time.Duration {
	return time.Duration(p.Duration) * time.Second
}
