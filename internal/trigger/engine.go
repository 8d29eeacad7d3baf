package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"herald/internal/store"
)

// FireFunc is the registered callback. It runs synchronously on the engine
// goroutine, so it must only hand the entity off (a queue put) and never
// block on the network.
type FireFunc func(ref string, entityID uint)

type Config struct {
	// Tick is the clock-loop resolution.
	Tick time.Duration

	// DefaultGrace applies to triggers registered with a zero grace.
	DefaultGrace time.Duration
}

// Service is the trigger store plus the clock-driven engine. Per armed
// trigger the lifecycle is armed → fired → rearmed (cron) or retired
// (date); retiring deletes the durable row, the entity row is not touched.
type Service struct {
	st   *store.Store
	cfg  Config
	fire FireFunc
	log  zerolog.Logger
	now  func() time.Time

	mu    sync.Mutex
	armed map[string]*armedTrigger

	stopCh chan struct{}
	done   chan struct{}
}

type armedTrigger struct {
	key      string
	ref      string
	entityID uint
	kind     string
	sched    cron.Schedule // nil for date triggers
	next     time.Time
	grace    time.Duration
	coalesce bool
}

func New(st *store.Store, cfg Config, fire FireFunc, log zerolog.Logger) *Service {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	return &Service{
		st:    st,
		cfg:   cfg,
		fire:  fire,
		log:   log.With().Str("component", "trigger").Logger(),
		now:   time.Now,
		armed: make(map[string]*armedTrigger),
	}
}

// Start reloads every persisted registration, re-arms it, and starts the
// clock loop. A row that can no longer be interpreted is trigger-store
// corruption and aborts startup.
func (s *Service) Start(ctx context.Context) error {
	n, err := s.rearm()
	if err != nil {
		return err
	}
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(ctx)
	s.log.Info().Int("armed", n).Dur("tick", s.cfg.Tick).Msg("trigger engine started")
	return nil
}

// rearm rebuilds the armed set from the durable rows.
func (s *Service) rearm() (int, error) {
	rows, err := loadAll(s.st.DB())
	if err != nil {
		return 0, fmt.Errorf("trigger: reload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		a, err := armFromRow(row)
		if err != nil {
			return 0, fmt.Errorf("trigger: reload %s: %w", row.Key, err)
		}
		s.armed[a.key] = a
	}
	return len(s.armed), nil
}

func (s *Service) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.done
	s.stopCh = nil
	s.log.Info().Msg("trigger engine stopped")
}

func (s *Service) loop(ctx context.Context) {
	defer close(s.done)
	tk := time.NewTicker(s.cfg.Tick)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-tk.C:
			s.tick(s.now())
		}
	}
}

// tick fires every due trigger once, applies the misfire policy to missed
// clusters, persists advanced fire instants and retires spent one-shots.
func (s *Service) tick(now time.Time) {
	type firing struct {
		ref string
		id  uint
	}
	var fires []firing
	var retired []string
	type advance struct {
		key  string
		next time.Time
	}
	var advanced []advance

	s.mu.Lock()
	for key, a := range s.armed {
		if a.next.After(now) {
			continue
		}
		grace := a.grace
		if grace <= 0 {
			grace = s.cfg.DefaultGrace
		}

		if a.kind == kindDate {
			// armed → fired → retired, terminal either way
			if now.Sub(a.next) <= grace {
				fires = append(fires, firing{ref: a.ref, id: a.entityID})
			} else {
				s.log.Warn().Str("key", key).Time("due", a.next).
					Msg("one-shot trigger missed beyond grace; dropped")
			}
			delete(s.armed, key)
			retired = append(retired, key)
			continue
		}

		// cron: walk the due occurrences since the last arm
		due := 0
		var lastDue time.Time
		next := a.next
		for !next.After(now) {
			due++
			lastDue = next
			next = a.sched.Next(next)
			if due >= maxMissedWalk {
				// pathological downtime versus a tight spec; jump ahead
				next = a.sched.Next(now)
				break
			}
		}

		withinGrace := now.Sub(lastDue) <= grace
		switch {
		case due == 1 && withinGrace:
			fires = append(fires, firing{ref: a.ref, id: a.entityID})
		case due > 1 && a.coalesce && withinGrace:
			// collapse the missed cluster into a single firing
			fires = append(fires, firing{ref: a.ref, id: a.entityID})
			s.log.Info().Str("key", key).Int("missed", due-1).
				Msg("coalesced missed occurrences into one firing")
		default:
			s.log.Warn().Str("key", key).Int("missed", due).
				Msg("missed occurrence cluster dropped")
		}

		a.next = next
		advanced = append(advanced, advance{key: key, next: next})
	}
	s.mu.Unlock()

	// The handoff: a fire only enqueues, so the loop never blocks on I/O.
	for _, f := range fires {
		s.fire(f.ref, f.id)
	}

	db := s.st.DB()
	for _, key := range retired {
		if _, err := unpersist(db, key); err != nil {
			s.log.Error().Err(err).Str("key", key).Msg("retiring trigger row failed")
		}
	}
	for _, adv := range advanced {
		err := db.Model(&store.Trigger{}).Where("key = ?", adv.key).
			UpdateColumn("next_fire", adv.next.Unix()).Error
		if err != nil {
			s.log.Error().Err(err).Str("key", adv.key).Msg("persisting next fire failed")
		}
	}
}

// maxMissedWalk caps how many missed occurrences the engine enumerates for
// one trigger before jumping straight past now.
const maxMissedWalk = 1000

func armFromRow(row store.Trigger) (*armedTrigger, error) {
	a := &armedTrigger{
		key:      row.Key,
		ref:      row.Ref,
		entityID: row.EntityID,
		kind:     row.Kind,
		next:     time.Unix(row.NextFire, 0),
		grace:    time.Duration(row.Grace) * time.Second,
		coalesce: row.Coalesce,
	}
	switch row.Kind {
	case kindDate:
		if row.NextFire == 0 {
			a.next = time.Unix(row.FireAt, 0)
		}
	case kindCron:
		sched, err := ParseCron(row.Spec)
		if err != nil {
			return nil, err
		}
		a.sched = sched
	default:
		return nil, fmt.Errorf("unknown trigger kind %q", row.Kind)
	}
	return a, nil
}
