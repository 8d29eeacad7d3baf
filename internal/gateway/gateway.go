// Package gateway defines the chat-side collaborator consumed by delivery
// and reconciliation. Implementations map their transport's failures onto
// the three conditions the rest of the system distinguishes: ErrNotFound
// (the target is gone, self-heal), ErrForbidden (can't tell, leave the
// entity alone) and ErrServer (transient, drop the occurrence).
package gateway

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means the channel or message no longer exists.
	ErrNotFound = errors.New("gateway: not found")

	// ErrForbidden means the bot lacks visibility or permission; the target
	// may still exist.
	ErrForbidden = errors.New("gateway: forbidden")

	// ErrServer is a transient remote failure worth neither deleting for
	// nor retrying within the same occurrence.
	ErrServer = errors.New("gateway: server error")
)

// MessageRef locates a message within a channel.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// Mentions lists the roles and users a message is allowed to notify.
type Mentions struct {
	Roles []string
	Users []string
}

// Client is the outbound chat surface. Every call honors ctx cancellation.
type Client interface {
	CreateMessage(ctx context.Context, channelID, content string, mentions Mentions) (MessageRef, error)
	EditMessage(ctx context.Context, ref MessageRef, content string, mentions Mentions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	FetchMessage(ctx context.Context, ref MessageRef) (MessageRef, error)

	// SendDM delivers content to userID's direct-message channel.
	SendDM(ctx context.Context, userID, content string) error

	// AddRole and RemoveRole grant or revoke roleID on a guild member.
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error

	// RoleMemberCount reports how many members of guildID hold roleID.
	// known is false when the member list is not available to the bot.
	RoleMemberCount(ctx context.Context, guildID, roleID string) (count int, known bool, err error)
}
