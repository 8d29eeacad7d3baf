package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"herald/internal/gateway"
	"herald/internal/store"
	"herald/internal/trigger"
)

// Worker drains the queue and attempts delivery, one item per transaction.
// Failure policy:
//
//	not found   → delete the entity and its trigger (self-healing)
//	forbidden   → log, keep the entity
//	transient   → log, keep the entity, this occurrence is lost
//
// An id whose entity is already gone is the normal race with deletion and
// is dropped silently.
type Worker struct {
	queue *Queue
	st    *store.Store
	gw    gateway.Client
	trig  *trigger.Service
	log   zerolog.Logger
}

func NewWorker(queue *Queue, st *store.Store, gw gateway.Client, trig *trigger.Service, log zerolog.Logger) *Worker {
	return &Worker{
		queue: queue,
		st:    st,
		gw:    gw,
		trig:  trig,
		log:   log.With().Str("component", "delivery").Logger(),
	}
}

// Run consumes until the context is canceled or the queue closes. Errors
// are contained here; nothing escapes as fatal.
func (w *Worker) Run(ctx context.Context) {
	for {
		it, ok := w.queue.Get(ctx)
		if !ok {
			return
		}
		if err := w.deliver(ctx, it); err != nil {
			w.log.Error().Err(err).Str("kind", string(it.Kind)).Uint("id", it.ID).
				Msg("delivery transaction failed")
		}
	}
}

func (w *Worker) deliver(ctx context.Context, it Item) error {
	switch it.Kind {
	case KindPing:
		return w.deliverPing(ctx, it.ID)
	case KindRaid:
		return w.deliverRaid(ctx, it.ID)
	default:
		w.log.Warn().Str("kind", string(it.Kind)).Msg("unknown dispatch kind dropped")
		return nil
	}
}

func (w *Worker) deliverPing(ctx context.Context, id uint) error {
	var disarm string
	err := w.st.Tx(ctx, func(tx *gorm.DB) error {
		p, err := store.GetPingByID(tx, id)
		if errors.Is(err, store.ErrNotFound) {
			// deleted between enqueue and dequeue
			w.log.Debug().Uint("id", id).Msg("ping vanished before delivery")
			return nil
		}
		if err != nil {
			return err
		}

		content := fmt.Sprintf("<@&%s> %s", p.RoleID, p.Description)
		_, err = w.gw.CreateMessage(ctx, p.ChannelID, content,
			gateway.Mentions{Roles: []string{p.RoleID}})
		switch {
		case err == nil:
			w.log.Debug().Uint("id", id).Str("channel", p.ChannelID).Msg("ping delivered")
			return nil
		case errors.Is(err, gateway.ErrNotFound):
			w.log.Info().Uint("id", id).Str("channel", p.ChannelID).
				Msg("ping target gone; removing ping and trigger")
			if err := store.DeletePingByID(tx, id); err != nil {
				return err
			}
			key := trigger.Key(string(KindPing), id)
			if _, err := w.trig.Unregister(tx, key); err != nil {
				return err
			}
			disarm = key
			return nil
		case errors.Is(err, gateway.ErrForbidden):
			w.log.Warn().Err(err).Uint("id", id).Msg("ping delivery forbidden; keeping ping")
			return nil
		default:
			w.log.Warn().Err(err).Uint("id", id).Msg("ping delivery failed; occurrence dropped")
			return nil
		}
	})
	if err == nil && disarm != "" {
		w.trig.Disarm(disarm)
	}
	return err
}

func (w *Worker) deliverRaid(ctx context.Context, id uint) error {
	var disarm string
	err := w.st.Tx(ctx, func(tx *gorm.DB) error {
		r, err := store.GetRaidByID(tx, id)
		if errors.Is(err, store.ErrNotFound) {
			w.log.Debug().Uint("id", id).Msg("raid vanished before delivery")
			return nil
		}
		if err != nil {
			return err
		}

		content, mentions := raidCallout(r)
		_, err = w.gw.CreateMessage(ctx, r.ChannelID, content, mentions)
		switch {
		case err == nil:
			w.log.Debug().Uint("id", id).Str("channel", r.ChannelID).Msg("raid call-out delivered")
			return nil
		case errors.Is(err, gateway.ErrNotFound):
			w.log.Info().Uint("id", id).Str("channel", r.ChannelID).
				Msg("raid channel gone; removing raid and trigger")
			if err := store.DeleteRaidByID(tx, id); err != nil {
				return err
			}
			key := trigger.Key(string(KindRaid), id)
			if _, err := w.trig.Unregister(tx, key); err != nil {
				return err
			}
			disarm = key
			return nil
		case errors.Is(err, gateway.ErrForbidden):
			w.log.Warn().Err(err).Uint("id", id).Msg("raid call-out forbidden; keeping raid")
			return nil
		default:
			w.log.Warn().Err(err).Uint("id", id).Msg("raid call-out failed; occurrence dropped")
			return nil
		}
	})
	if err == nil && disarm != "" {
		w.trig.Disarm(disarm)
	}
	return err
}
