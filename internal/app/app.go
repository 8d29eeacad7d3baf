// Package app assembles the daemon: storage, gateway, trigger engine,
// delivery pipeline, sweep, and the slash-command surface, with a
// Start/Stop lifecycle the main binary drives.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"herald/internal/bot"
	"herald/internal/config"
	"herald/internal/dispatch"
	"herald/internal/gateway/discord"
	"herald/internal/service"
	"herald/internal/store"
	"herald/internal/sweep"
	"herald/internal/trigger"
)

type App struct {
	cfg *config.Config
	log zerolog.Logger

	st      *store.Store
	session *discordgo.Session
	gw      *discord.Client
	queue   *dispatch.Queue
	trig    *trigger.Service
	worker  *dispatch.Worker
	sweep   *sweep.Service
	bot     *bot.Bot

	pings  *service.Pings
	raids  *service.Raids
	roles  *service.Roles
	guilds *service.Guilds

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the object graph without touching the network; Start does
// that.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	st, err := store.Open(store.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.BusyTimeout.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("creating session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsGuildMessages

	gw := discord.New(session, log)
	queue := dispatch.NewQueue()
	trig := trigger.New(st, trigger.Config{
		Tick:         cfg.Scheduler.Tick.Std(),
		DefaultGrace: cfg.Scheduler.DefaultMisfireGrace.Std(),
	}, func(ref string, entityID uint) {
		queue.Put(dispatch.Item{Kind: dispatch.Kind(ref), ID: entityID})
	}, log)

	pings := service.NewPings(st, trig, gw, cfg.Pings.MaxPerGuild, log)
	raids := service.NewRaids(st, trig, gw, cfg.Scheduler.RaidMisfireGrace.Std(), log)
	roles := service.NewRoles(st, gw, cfg.Roles.MaxPerGuild, log)
	guilds := service.NewGuilds(st, trig, log)

	a := &App{
		cfg:     cfg,
		log:     log.With().Str("component", "app").Logger(),
		st:      st,
		session: session,
		gw:      gw,
		queue:   queue,
		trig:    trig,
		worker:  dispatch.NewWorker(queue, st, gw, trig, log),
		sweep:   sweep.New(st, gw, trig, cfg.Sweep.Interval.Std(), log),
		pings:   pings,
		raids:   raids,
		roles:   roles,
		guilds:  guilds,
	}
	a.bot = bot.New(session, gw, pings, raids, roles, guilds, cfg.Discord.GuildID, log)
	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	if err := a.session.Open(); err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	if err := a.trig.Start(ctx); err != nil {
		a.session.Close()
		return fmt.Errorf("starting trigger engine: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.goRun("worker", func() { a.worker.Run(runCtx) })
	a.goRun("sweep", func() { a.sweep.Run(runCtx) })
	a.goRun("subscribers", func() { a.subscriberLoop(runCtx) })

	if err := a.bot.Start(runCtx); err != nil {
		a.Stop()
		return err
	}
	a.log.Info().Msg("started")
	return nil
}

// Stop tears the pipeline down in reverse: command surface first, then
// the trigger clock so nothing new is enqueued, then the queue so the
// worker drains and exits.
func (a *App) Stop() {
	a.bot.Stop()
	a.trig.Stop()
	a.queue.Close()
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.session.Close()
	if err := a.st.Close(); err != nil {
		a.log.Warn().Err(err).Msg("store close failed")
	}
	a.log.Info().Msg("stopped")
}

// ApplyConfig absorbs a hot-reloaded config. Only the logging section is
// live; everything else applies on the next restart.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.cfg = cfg
}

func (a *App) subscriberLoop(ctx context.Context) {
	interval := a.cfg.Pings.SubscriberRefresh.Std()
	if interval <= 0 {
		interval = time.Hour
	}
	tk := time.NewTicker(interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			if err := a.pings.RefreshSubscribers(ctx); err != nil {
				a.log.Warn().Err(err).Msg("subscriber refresh failed")
			}
		}
	}
}

func (a *App) goRun(name string, fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
		a.log.Debug().Str("task", name).Msg("task exited")
	}()
}
