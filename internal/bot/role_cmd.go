package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// roleMenuPrefix keys the menu's toggle buttons; the suffix is the
// role's guild-scoped ordinal.
const roleMenuPrefix = "rolemenu:"

func roleMenuIndex(customID string) (int, bool) {
	s, ok := strings.CutPrefix(customID, roleMenuPrefix)
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(s)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

func (b *Bot) settingsRoleUpsert(ctx context.Context, i *discordgo.InteractionCreate, opts optionMap) (string, error) {
	roleID, _ := opts.role("role", b.session, i.GuildID)
	description, _ := opts.str("description")
	var at *int
	if v, ok := opts.integer("index"); ok {
		idx := int(v)
		at = &idx
	}

	r, err := b.roles.Upsert(ctx, i.GuildID, roleID, description, at)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s <@&%s> is now offered at index %d.", checkMark, r.RoleID, r.Idx), nil
}

func (b *Bot) settingsRoleRemove(ctx context.Context, i *discordgo.InteractionCreate, opts optionMap) (string, error) {
	idx, _ := opts.integer("index")
	removed, err := b.roles.Delete(ctx, i.GuildID, int(idx))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s <@&%s> is no longer offered.", checkMark, removed.RoleID), nil
}

// roleMenu answers /role with one toggle button per offered role. It
// responds itself because the reply carries components, not just text.
func (b *Bot) roleMenu(ctx context.Context, i *discordgo.InteractionCreate) {
	roles, err := b.roles.List(ctx, i.GuildID)
	if err != nil {
		b.respond(i, b.errorReply("role", err))
		return
	}
	if len(roles) == 0 {
		b.respond(i, "No self-assignable roles configured.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Pick your roles:")
	var rows []discordgo.MessageComponent
	row := discordgo.ActionsRow{}
	for _, r := range roles {
		if r.Description != "" {
			fmt.Fprintf(&sb, "\n<@&%s> %s", r.RoleID, r.Description)
		}
		row.Components = append(row.Components, discordgo.Button{
			Label:    b.roleLabel(i.GuildID, r.RoleID),
			Style:    discordgo.SecondaryButton,
			CustomID: roleMenuPrefix + strconv.Itoa(r.Idx),
		})
		// Discord caps an action row at five buttons.
		if len(row.Components) == 5 {
			rows = append(rows, row)
			row = discordgo.ActionsRow{}
		}
	}
	if len(row.Components) > 0 {
		rows = append(rows, row)
	}

	err = b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    sb.String(),
			Components: rows,
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("interaction respond failed")
	}
}

// roleLabel resolves the role's display name, falling back to the raw id
// when the state cache misses.
func (b *Bot) roleLabel(guildID, roleID string) string {
	if r, err := b.session.State.Role(guildID, roleID); err == nil {
		return r.Name
	}
	return roleID
}

func (b *Bot) roleToggle(ctx context.Context, i *discordgo.InteractionCreate, idx int) (string, error) {
	added, roleID, err := b.roles.Toggle(ctx, i.GuildID, idx, i.Member.User.ID, i.Member.Roles)
	if err != nil {
		return "", err
	}
	if added {
		return fmt.Sprintf("%s You now have <@&%s>.", checkMark, roleID), nil
	}
	return fmt.Sprintf("%s <@&%s> removed.", checkMark, roleID), nil
}
