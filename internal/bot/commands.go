package bot

import "github.com/bwmarrin/discordgo"

// raid signup roles offered in the slash-command choices.
const (
	raidRoleDPS     = "dps"
	raidRoleTank    = "tank"
	raidRoleSupport = "support"
)

func minValue(v float64) *float64 { return &v }

var botCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "ping",
		Description: "Manage recurring pings.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "create",
				Description: "Create a new ping.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionRole,
						Name:        "role",
						Description: "The role to ping.",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "schedule",
						Description: "The schedule as a cron expression.",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionChannel,
						Name:        "channel",
						Description: "The channel to send the ping to.",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "duration",
						Description: "The duration (in seconds) of the event referenced by the ping.",
						MinValue:    minValue(0),
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "description",
						Description: "Describes the ping.",
					},
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "index",
						Description: "The index to insert the ping at.",
						MinValue:    minValue(0),
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "edit",
				Description: "Modify an existing ping.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "index",
						Description: "The index of the ping to modify.",
						Required:    true,
						MinValue:    minValue(0),
					},
					{
						Type:        discordgo.ApplicationCommandOptionRole,
						Name:        "role",
						Description: "The role to ping.",
					},
					{
						Type:        discordgo.ApplicationCommandOptionChannel,
						Name:        "channel",
						Description: "The channel to send the ping to.",
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "schedule",
						Description: "The schedule as a cron expression.",
					},
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "duration",
						Description: "The duration (in seconds) of the event referenced by the ping.",
						MinValue:    minValue(0),
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "description",
						Description: "Describes the ping.",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "delete",
				Description: "Delete an existing ping.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "index",
						Description: "The index of the ping to delete.",
						Required:    true,
						MinValue:    minValue(0),
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "move",
				Description: "Move a ping to another position in the list.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "index",
						Description: "The index of the ping to move.",
						Required:    true,
						MinValue:    minValue(0),
					},
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "to",
						Description: "The index to move the ping to.",
						Required:    true,
						MinValue:    minValue(0),
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "list",
				Description: "List all existing pings.",
			},
		},
	},
	{
		Name:        "raid",
		Description: "Manage raid announcements.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "create",
				Description: "Create a new raid.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "host",
						Description: "The host of the raid.",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "host-name",
						Description: "The in-game username of the host.",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "host-uid",
						Description: "The in-game uid of the host.",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "when",
						Description: "The time when the raid will start (unix timestamp in seconds).",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "title",
						Description: "The title of the raid announcement (e.g. All raids, Light NM).",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "add",
				Description: "Add a user to a raid.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "message-id",
						Description: "The id of the raid announcement message.",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "user",
						Description: "The user to add.",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "role",
						Description: "The role of the user.",
						Required:    true,
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: raidRoleDPS, Value: raidRoleDPS},
							{Name: raidRoleTank, Value: raidRoleTank},
							{Name: raidRoleSupport, Value: raidRoleSupport},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Name:        "cleared",
						Description: "Whether the user has already cleared the raid.",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "remove",
				Description: "Remove a user from a raid.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "message-id",
						Description: "The id of the raid announcement message.",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "user",
						Description: "The user to remove.",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "reason",
						Description: "Why the user is being removed; sent to them via DM.",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "cancel",
				Description: "Cancel a raid and delete its announcement.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "message-id",
						Description: "The id of the raid announcement message.",
						Required:    true,
					},
				},
			},
		},
	},
	{
		Name:        "role",
		Description: "Pick self-assignable roles.",
	},
	{
		Name:        "settings",
		Description: "Guild-wide settings.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
				Name:        "role",
				Description: "Manage the self-assignable role menu.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "upsert",
						Description: "Add a role to the menu, or move it if already present.",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionRole,
								Name:        "role",
								Description: "The role to offer.",
								Required:    true,
							},
							{
								Type:        discordgo.ApplicationCommandOptionString,
								Name:        "description",
								Description: "Describes the role on the menu.",
								Required:    true,
							},
							{
								Type:        discordgo.ApplicationCommandOptionInteger,
								Name:        "index",
								Description: "The index to insert the role at.",
								MinValue:    minValue(0),
							},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "remove",
						Description: "Take a role off the menu.",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionInteger,
								Name:        "index",
								Description: "The index of the role to remove.",
								Required:    true,
								MinValue:    minValue(0),
							},
						},
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "reset",
				Description: "Delete all pings, raids and menu roles of this guild.",
			},
		},
	},
}
