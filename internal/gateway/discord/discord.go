// Package discord adapts a discordgo session to the gateway.Client
// interface, folding Discord's REST failure modes into the gateway error
// taxonomy.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"herald/internal/gateway"
)

// Client wraps a discordgo session. Outbound REST calls share a rate
// limiter so a burst of due triggers doesn't trip Discord's global limit
// on top of discordgo's own per-route handling.
type Client struct {
	sess    *discordgo.Session
	limiter *rate.Limiter
	log     zerolog.Logger
}

func New(sess *discordgo.Session, log zerolog.Logger) *Client {
	return &Client{
		sess:    sess,
		limiter: rate.NewLimiter(rate.Limit(20), 5),
		log:     log.With().Str("component", "discord").Logger(),
	}
}

var _ gateway.Client = (*Client)(nil)

func (c *Client) CreateMessage(ctx context.Context, channelID, content string, mentions gateway.Mentions) (gateway.MessageRef, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gateway.MessageRef{}, err
	}
	msg, err := c.sess.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         content,
		AllowedMentions: allowedMentions(mentions),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return gateway.MessageRef{}, mapError(err)
	}
	return gateway.MessageRef{ChannelID: channelID, MessageID: msg.ID}, nil
}

func (c *Client) EditMessage(ctx context.Context, ref gateway.MessageRef, content string, mentions gateway.Mentions) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	edit := discordgo.NewMessageEdit(ref.ChannelID, ref.MessageID).SetContent(content)
	edit.AllowedMentions = allowedMentions(mentions)
	_, err := c.sess.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	return mapError(err)
}

func (c *Client) DeleteMessage(ctx context.Context, ref gateway.MessageRef) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return mapError(c.sess.ChannelMessageDelete(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx)))
}

func (c *Client) FetchMessage(ctx context.Context, ref gateway.MessageRef) (gateway.MessageRef, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gateway.MessageRef{}, err
	}
	msg, err := c.sess.ChannelMessage(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx))
	if err != nil {
		return gateway.MessageRef{}, mapError(err)
	}
	return gateway.MessageRef{ChannelID: ref.ChannelID, MessageID: msg.ID}, nil
}

// SendDM opens (or reuses) the user's DM channel and posts content there.
// A user with DMs closed surfaces as ErrForbidden.
func (c *Client) SendDM(ctx context.Context, userID, content string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	ch, err := c.sess.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return mapError(err)
	}
	_, err = c.sess.ChannelMessageSendComplex(ch.ID, &discordgo.MessageSend{
		Content: content,
	}, discordgo.WithContext(ctx))
	return mapError(err)
}

func (c *Client) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return mapError(c.sess.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (c *Client) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return mapError(c.sess.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

// RoleMemberCount counts from the session's state cache; it never hits the
// REST API. The count is unknown until the guild's member chunk arrives.
func (c *Client) RoleMemberCount(_ context.Context, guildID, roleID string) (int, bool, error) {
	g, err := c.sess.State.Guild(guildID)
	if err != nil || g == nil {
		return 0, false, nil
	}
	if len(g.Members) == 0 && g.MemberCount > 0 {
		return 0, false, nil
	}
	n := 0
	for _, m := range g.Members {
		for _, r := range m.Roles {
			if r == roleID {
				n++
				break
			}
		}
	}
	return n, true, nil
}

func allowedMentions(m gateway.Mentions) *discordgo.MessageAllowedMentions {
	return &discordgo.MessageAllowedMentions{Roles: m.Roles, Users: m.Users}
}

// mapError folds discordgo REST errors into the gateway taxonomy. Anything
// that is not clearly "gone" or "not allowed" is treated as transient.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		reason := ""
		if rest.Message != nil {
			reason = rest.Message.Message
		}
		switch rest.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", gateway.ErrNotFound, reason)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s", gateway.ErrForbidden, reason)
		}
		if rest.Response.StatusCode >= 500 {
			return fmt.Errorf("%w: status %d", gateway.ErrServer, rest.Response.StatusCode)
		}
		return err
	}
	return fmt.Errorf("%w: %v", gateway.ErrServer, err)
}
