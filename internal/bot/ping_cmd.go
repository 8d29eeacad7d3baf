package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"herald/internal/service"
)

func (b *Bot) pingCreate(ctx context.Context, i *discordgo.InteractionCreate, opts optionMap) (string, error) {
	in := service.CreatePingInput{}
	in.RoleID, _ = opts.role("role", b.session, i.GuildID)
	in.Schedule, _ = opts.str("schedule")
	in.ChannelID, _ = opts.channel("channel", b.session)
	in.Description, _ = opts.str("description")
	if d, ok := opts.integer("duration"); ok {
		in.Duration = time.Duration(d) * time.Second
	}
	if at, ok := opts.integer("index"); ok {
		v := int(at)
		in.At = &v
	}

	p, err := b.pings.Create(ctx, i.GuildID, in)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s Created ping %d.", checkMark, p.Idx), nil
}

func (b *Bot) pingEdit(ctx context.Context, i *discordgo.InteractionCreate, opts optionMap) (string, error) {
	idx, _ := opts.integer("index")

	var patch service.PingPatch
	if v, ok := opts.role("role", b.session, i.GuildID); ok {
		patch.RoleID = &v
	}
	if v, ok := opts.channel("channel", b.session); ok {
		patch.ChannelID = &v
	}
	if v, ok := opts.str("schedule"); ok {
		patch.Schedule = &v
	}
	if v, ok := opts.str("description"); ok {
		patch.Description = &v
	}
	if v, ok := opts.integer("duration"); ok {
		d := time.Duration(v) * time.Second
		patch.Duration = &d
	}

	if _, err := b.pings.Edit(ctx, i.GuildID, int(idx), patch); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s Updated ping %d.", checkMark, idx), nil
}

func (b *Bot) pingDelete(ctx context.Context, i *discordgo.InteractionCreate, opts optionMap) (string, error) {
	idx, _ := opts.integer("index")
	if err := b.pings.Delete(ctx, i.GuildID, int(idx)); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s Deleted ping %d.", checkMark, idx), nil
}

func (b *Bot) pingMove(ctx context.Context, i *discordgo.InteractionCreate, opts optionMap) (string, error) {
	idx, _ := opts.integer("index")
	to, _ := opts.integer("to")
	v := int(to)
	if _, err := b.pings.Edit(ctx, i.GuildID, int(idx), service.PingPatch{MoveTo: &v}); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s Moved ping %d to %d.", checkMark, idx, to), nil
}

func (b *Bot) pingList(ctx context.Context, i *discordgo.InteractionCreate, _ optionMap) (string, error) {
	pings, err := b.pings.List(ctx, i.GuildID)
	if err != nil {
		return "", err
	}
	if len(pings) == 0 {
		return "No pings configured.", nil
	}

	var sb strings.Builder
	for _, p := range pings {
		fmt.Fprintf(&sb, "`%d` <@&%s> in <#%s>, `%s`", p.Idx, p.RoleID, p.ChannelID, p.Schedule)
		if p.Subscribers != nil {
			fmt.Fprintf(&sb, ", %d subscribers", *p.Subscribers)
		}
		if next, ok := b.pings.NextFire(&p); ok {
			fmt.Fprintf(&sb, ", next <t:%d:R>", next.Unix())
		}
		if p.Description != "" {
			fmt.Fprintf(&sb, "\n%s", p.Description)
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func (b *Bot) settingsReset(ctx context.Context, i *discordgo.InteractionCreate, _ optionMap) (string, error) {
	if err := b.guilds.Reset(ctx, i.GuildID); err != nil {
		return "", err
	}
	return checkMark + " All pings, raids and menu roles have been removed.", nil
}
