// Package sweep periodically reconciles raids against the chat side: a
// raid whose announcement message is gone is deleted together with its
// trigger, the same self-healing path delivery takes on a not-found send,
// just driven by time instead of by a firing.
package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"herald/internal/dispatch"
	"herald/internal/gateway"
	"herald/internal/store"
	"herald/internal/trigger"
)

type Service struct {
	st       *store.Store
	gw       gateway.Client
	trig     *trigger.Service
	interval time.Duration
	log      zerolog.Logger
}

func New(st *store.Store, gw gateway.Client, trig *trigger.Service, interval time.Duration, log zerolog.Logger) *Service {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Service{
		st:       st,
		gw:       gw,
		trig:     trig,
		interval: interval,
		log:      log.With().Str("component", "sweep").Logger(),
	}
}

// Run sweeps once immediately, covering deletions that happened while the
// process was down, then on every interval until ctx is canceled.
func (s *Service) Run(ctx context.Context) {
	s.sweepOnce(ctx)
	tk := time.NewTicker(s.interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context) {
	raids, err := store.ListRaids(s.st.DB())
	if err != nil {
		s.log.Error().Err(err).Msg("listing raids failed; skipping sweep cycle")
		return
	}

	removed := 0
	for _, r := range raids {
		if r.MessageID == "" {
			// announcement not posted yet; nothing to reconcile against
			continue
		}
		if ctx.Err() != nil {
			return
		}

		_, err := s.gw.FetchMessage(ctx, gateway.MessageRef{ChannelID: r.ChannelID, MessageID: r.MessageID})
		switch {
		case err == nil:
			continue
		case errors.Is(err, gateway.ErrNotFound):
			if err := s.removeRaid(ctx, r); err != nil {
				s.log.Error().Err(err).Uint("raid", r.ID).Msg("removing vanished raid failed")
				continue
			}
			removed++
		case errors.Is(err, gateway.ErrForbidden):
			// "can't tell" is not "gone"; leave it for a later cycle
			s.log.Debug().Uint("raid", r.ID).Msg("raid message not visible; skipped")
		default:
			s.log.Warn().Err(err).Uint("raid", r.ID).Msg("raid message fetch failed; skipped")
		}
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("sweep removed vanished raids")
	}
}

func (s *Service) removeRaid(ctx context.Context, r store.Raid) error {
	key := trigger.Key(string(dispatch.KindRaid), r.ID)
	err := s.st.Tx(ctx, func(tx *gorm.DB) error {
		if err := store.DeleteRaidByID(tx, r.ID); err != nil {
			return err
		}
		_, err := s.trig.Unregister(tx, key)
		return err
	})
	if err != nil {
		return err
	}
	s.trig.Disarm(key)
	return nil
}
