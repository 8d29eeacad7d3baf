package store

// Guild is the root scope. Rows are created lazily when the first ping or
// raid is inserted and removed only by an explicit reset.
type Guild struct {
	ID string `gorm:"primaryKey"`
}

// Ping is a recurring notification definition. Idx is the guild-scoped
// dense ordinal: for any guild the live pings always occupy 0..n-1.
type Ping struct {
	ID      uint   `gorm:"primaryKey"`
	GuildID string `gorm:"index:idx_pings_guild"`
	Idx     int

	RoleID      string
	ChannelID   string
	Schedule    string
	Duration    int // misfire grace in seconds; 0 means engine default
	Description string

	// Subscribers is the derived member count of RoleID; nil is "unknown".
	Subscribers *int
}

// Role is a self-assignable guild role offered on the role menu. Idx is
// dense per guild, same invariant as Ping.Idx; RoleID is the external
// role snowflake and appears at most once per guild.
type Role struct {
	ID      uint   `gorm:"primaryKey"`
	GuildID string `gorm:"index:idx_roles_guild;uniqueIndex:idx_roles_guild_role"`
	Idx     int

	RoleID      string `gorm:"uniqueIndex:idx_roles_guild_role"`
	Description string
}

// Raid is a one-shot, time-boxed event. MessageID stays empty until the
// announcement message has been posted.
type Raid struct {
	ID      uint   `gorm:"primaryKey"`
	GuildID string `gorm:"index:idx_raids_guild"`
	Idx     int

	ChannelID string
	MessageID string

	HostUserID string
	HostName   string
	HostUID    string
	When       int64 // unix seconds
	Title      string

	Users []RaidUser `gorm:"constraint:OnDelete:CASCADE"`
}

// RaidUser is a signup, unique per (raid, user).
type RaidUser struct {
	ID     uint `gorm:"primaryKey"`
	RaidID uint `gorm:"index:idx_raid_users_raid;uniqueIndex:idx_raid_users_raid_user"`

	UserID  string `gorm:"uniqueIndex:idx_raid_users_raid_user"`
	Role    string // dps, tank or support
	Cleared bool
}

// Trigger is the durable fire schedule for one entity, keyed by the
// entity's dispatch key ("ping:<id>" / "raid:<id>"). It is a weak companion
// record: deleted whenever its entity is deleted, never loaded as part of
// the entity graph.
type Trigger struct {
	Key string `gorm:"primaryKey"`

	Kind     string // "cron" or "date"
	Spec     string // cron expression when Kind is "cron"
	FireAt   int64  // unix seconds when Kind is "date"
	NextFire int64  // unix seconds of the next armed occurrence
	Grace    int64  // seconds; 0 means engine default
	Coalesce bool

	Ref      string // dispatch topic the fire callback publishes to
	EntityID uint
}
