package bot

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"

	"herald/internal/gateway"
	"herald/internal/service"
	"herald/internal/store"
)

func (b *Bot) raidCreate(ctx context.Context, i *discordgo.InteractionCreate, opts optionMap) (string, error) {
	host, _ := opts.user("host", b.session)
	hostName, _ := opts.str("host-name")
	hostUID, _ := opts.str("host-uid")
	when, _ := opts.integer("when")
	title, _ := opts.str("title")

	start := time.Unix(when, 0)
	if !start.After(time.Now()) {
		return "", service.ErrPastSchedule
	}

	// The announcement goes out first so its message id can be stored
	// with the raid. A failing create transaction takes the message back
	// down again.
	content, mentions := service.Announcement(&store.Raid{
		HostUserID: host.ID,
		HostName:   hostName,
		HostUID:    hostUID,
		When:       when,
		Title:      title,
	})
	ref, err := b.gw.CreateMessage(ctx, i.ChannelID, content, mentions)
	if err != nil {
		if errors.Is(err, gateway.ErrForbidden) {
			return crossMark + " Missing `Send Messages` permission.", nil
		}
		return "", err
	}

	r, err := b.raids.Create(ctx, i.GuildID, service.CreateRaidInput{
		ChannelID:  i.ChannelID,
		HostUserID: host.ID,
		HostName:   hostName,
		HostUID:    hostUID,
		When:       start,
		Title:      title,
	})
	if err != nil {
		if derr := b.gw.DeleteMessage(ctx, ref); derr != nil {
			b.log.Warn().Err(derr).Str("message", ref.MessageID).Msg("orphaned announcement cleanup failed")
		}
		return "", err
	}
	if err := b.raids.SetMessage(ctx, r.ID, ref.MessageID); err != nil {
		return "", err
	}
	return checkMark, nil
}

func (b *Bot) raidAdd(ctx context.Context, i *discordgo.InteractionCreate, opts optionMap) (string, error) {
	messageID, _ := opts.str("message-id")
	user, _ := opts.user("user", b.session)
	role, _ := opts.str("role")
	cleared, _ := opts.boolean("cleared")

	r, err := b.raids.GetByMessage(ctx, i.GuildID, messageID)
	if err != nil {
		return "", err
	}
	if err := b.raids.AddUser(ctx, r.ID, user.ID, role, cleared); err != nil {
		return "", err
	}
	return checkMark, nil
}

func (b *Bot) raidRemove(ctx context.Context, i *discordgo.InteractionCreate, opts optionMap) (string, error) {
	messageID, _ := opts.str("message-id")
	user, _ := opts.user("user", b.session)
	reason, _ := opts.str("reason")

	r, err := b.raids.GetByMessage(ctx, i.GuildID, messageID)
	if err != nil {
		return "", err
	}
	if err := b.raids.RemoveUser(ctx, r.ID, user.ID, reason); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return crossMark + " That user is not signed up.", nil
		}
		return "", err
	}
	return checkMark, nil
}

func (b *Bot) raidCancel(ctx context.Context, i *discordgo.InteractionCreate, opts optionMap) (string, error) {
	messageID, _ := opts.str("message-id")

	r, err := b.raids.GetByMessage(ctx, i.GuildID, messageID)
	if err != nil {
		return "", err
	}
	if err := b.raids.DeleteByMessage(ctx, i.GuildID, messageID); err != nil {
		return "", err
	}
	err = b.gw.DeleteMessage(ctx, gateway.MessageRef{ChannelID: r.ChannelID, MessageID: messageID})
	if err != nil && !errors.Is(err, gateway.ErrNotFound) {
		b.log.Warn().Err(err).Str("message", messageID).Msg("announcement delete failed")
	}
	return checkMark, nil
}
