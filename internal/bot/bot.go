// Package bot is the slash-command surface. Handlers parse interaction
// options, call into the service layer, and reply ephemerally; they hold
// no state of their own.
package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"herald/internal/gateway"
	"herald/internal/service"
	"herald/internal/store"
	"herald/internal/trigger"
)

type handlerFunc func(ctx context.Context, i *discordgo.InteractionCreate, opts optionMap) (string, error)

// Bot registers the application commands and routes interactions to the
// service layer.
type Bot struct {
	session *discordgo.Session
	gw      gateway.Client
	pings   *service.Pings
	raids   *service.Raids
	roles   *service.Roles
	guilds  *service.Guilds
	log     zerolog.Logger

	guildID    string
	registered []*discordgo.ApplicationCommand
	handlers   map[string]handlerFunc
	unbind     func()
}

func New(session *discordgo.Session, gw gateway.Client, pings *service.Pings, raids *service.Raids, roles *service.Roles, guilds *service.Guilds, guildID string, log zerolog.Logger) *Bot {
	b := &Bot{
		session: session,
		gw:      gw,
		pings:   pings,
		raids:   raids,
		roles:   roles,
		guilds:  guilds,
		guildID: guildID,
		log:     log.With().Str("component", "bot").Logger(),
	}
	b.handlers = map[string]handlerFunc{
		"ping create":          b.pingCreate,
		"ping edit":            b.pingEdit,
		"ping delete":          b.pingDelete,
		"ping move":            b.pingMove,
		"ping list":            b.pingList,
		"raid create":          b.raidCreate,
		"raid add":             b.raidAdd,
		"raid remove":          b.raidRemove,
		"raid cancel":          b.raidCancel,
		"settings role upsert": b.settingsRoleUpsert,
		"settings role remove": b.settingsRoleRemove,
		"settings reset":       b.settingsReset,
	}
	return b
}

// Start installs the interaction handler and registers the command set,
// guild-scoped when a guild id is configured.
func (b *Bot) Start(ctx context.Context) error {
	b.unbind = b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.handleInteraction(ctx, i)
	})
	for _, cmd := range botCommands {
		created, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, b.guildID, cmd)
		if err != nil {
			return fmt.Errorf("registering /%s: %w", cmd.Name, err)
		}
		b.registered = append(b.registered, created)
		b.log.Debug().Str("command", cmd.Name).Msg("command registered")
	}
	return nil
}

// Stop deregisters the commands again. Best-effort; a command left behind
// just 404s into the void until the next start.
func (b *Bot) Stop() {
	if b.unbind != nil {
		b.unbind()
	}
	for _, cmd := range b.registered {
		err := b.session.ApplicationCommandDelete(b.session.State.User.ID, b.guildID, cmd.ID)
		if err != nil {
			b.log.Warn().Err(err).Str("command", cmd.Name).Msg("command delete failed")
		}
	}
	b.registered = nil
}

func (b *Bot) handleInteraction(ctx context.Context, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		return
	}
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(ctx, i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(ctx, i)
	}
}

func (b *Bot) handleCommand(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	name := data.Name
	opts := data.Options

	// descend through subcommand groups to the leaf subcommand
	for len(opts) == 1 && (opts[0].Type == discordgo.ApplicationCommandOptionSubCommand ||
		opts[0].Type == discordgo.ApplicationCommandOptionSubCommandGroup) {
		name += " " + opts[0].Name
		opts = opts[0].Options
	}

	if name == "role" {
		b.roleMenu(ctx, i)
		return
	}
	handler, ok := b.handlers[name]
	if !ok {
		return
	}

	reply, err := handler(ctx, i, makeOptionMap(opts))
	if err != nil {
		reply = b.errorReply(name, err)
	}
	b.respond(i, reply)
}

func (b *Bot) handleComponent(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	idx, ok := roleMenuIndex(data.CustomID)
	if !ok || i.Member == nil {
		return
	}
	reply, err := b.roleToggle(ctx, i, idx)
	if err != nil {
		reply = b.errorReply("role menu", err)
	}
	b.respond(i, reply)
}

// errorReply surfaces validation errors verbatim and hides everything
// else behind a generic failure line.
func (b *Bot) errorReply(command string, err error) string {
	switch {
	case errors.Is(err, service.ErrPastSchedule),
		errors.Is(err, service.ErrNegativeDuration),
		errors.Is(err, trigger.ErrBadSchedule),
		errors.Is(err, store.ErrIndexOutOfRange),
		errors.Is(err, store.ErrCapacityExceeded):
		return crossMark + " " + err.Error()
	case errors.Is(err, store.ErrNotFound):
		return crossMark + " Not found."
	case errors.Is(err, gateway.ErrForbidden):
		return crossMark + " Missing permissions."
	default:
		b.log.Error().Err(err).Str("command", command).Msg("command failed")
		return crossMark + " Something went wrong."
	}
}

func (b *Bot) respond(i *discordgo.InteractionCreate, content string) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("interaction respond failed")
	}
}

// optionMap flattens a subcommand's options for lookup by name.
type optionMap map[string]*discordgo.ApplicationCommandInteractionDataOption

func makeOptionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) optionMap {
	m := make(optionMap, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func (m optionMap) str(name string) (string, bool) {
	o, ok := m[name]
	if !ok {
		return "", false
	}
	return o.StringValue(), true
}

func (m optionMap) integer(name string) (int64, bool) {
	o, ok := m[name]
	if !ok {
		return 0, false
	}
	return o.IntValue(), true
}

func (m optionMap) boolean(name string) (bool, bool) {
	o, ok := m[name]
	if !ok {
		return false, false
	}
	return o.BoolValue(), true
}

func (m optionMap) role(name string, s *discordgo.Session, guildID string) (string, bool) {
	o, ok := m[name]
	if !ok {
		return "", false
	}
	return o.RoleValue(s, guildID).ID, true
}

func (m optionMap) channel(name string, s *discordgo.Session) (string, bool) {
	o, ok := m[name]
	if !ok {
		return "", false
	}
	return o.ChannelValue(s).ID, true
}

func (m optionMap) user(name string, s *discordgo.Session) (*discordgo.User, bool) {
	o, ok := m[name]
	if !ok {
		return nil, false
	}
	return o.UserValue(s), true
}

const (
	checkMark = "✅"
	crossMark = "❌"
)
