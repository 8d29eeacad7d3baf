package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Config is the full daemon configuration. It is loaded once at startup;
// only the logging level is re-applied when the file changes on disk.
type Config struct {
	Discord   DiscordConfig   `yaml:"discord"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Pings     PingsConfig     `yaml:"pings"`
	Roles     RolesConfig     `yaml:"roles"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type DiscordConfig struct {
	Token string `yaml:"token"`

	// GuildID restricts slash-command registration to a single guild.
	// Empty registers commands globally.
	GuildID string `yaml:"guild_id"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`

	// BusyTimeout is passed to sqlite so concurrent writers back off
	// instead of failing immediately.
	BusyTimeout Duration `yaml:"busy_timeout"`
}

type SchedulerConfig struct {
	// Tick is how often the engine compares armed triggers against the clock.
	Tick Duration `yaml:"tick"`

	// DefaultMisfireGrace applies to registrations whose own grace is zero.
	DefaultMisfireGrace Duration `yaml:"default_misfire_grace"`

	// RaidMisfireGrace is the grace window for one-shot raid triggers.
	RaidMisfireGrace Duration `yaml:"raid_misfire_grace"`
}

type SweepConfig struct {
	Interval Duration `yaml:"interval"`
}

type PingsConfig struct {
	MaxPerGuild       int      `yaml:"max_per_guild"`
	SubscriberRefresh Duration `yaml:"subscriber_refresh"`
}

type RolesConfig struct {
	// MaxPerGuild caps the self-assignable role menu per guild.
	MaxPerGuild int `yaml:"max_per_guild"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Load reads and strictly decodes the YAML config at path, then applies
// defaults and validates. Unknown keys are rejected so typos surface at
// startup instead of silently falling back to defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw YAML bytes into a validated Config.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "./herald.db"
	}
	if c.Database.BusyTimeout <= 0 {
		c.Database.BusyTimeout = Duration(5 * time.Second)
	}
	if c.Scheduler.Tick <= 0 {
		c.Scheduler.Tick = Duration(time.Second)
	}
	if c.Scheduler.DefaultMisfireGrace <= 0 {
		c.Scheduler.DefaultMisfireGrace = Duration(30 * time.Second)
	}
	if c.Scheduler.RaidMisfireGrace <= 0 {
		c.Scheduler.RaidMisfireGrace = Duration(10 * time.Minute)
	}
	if c.Sweep.Interval <= 0 {
		c.Sweep.Interval = Duration(15 * time.Minute)
	}
	if c.Pings.MaxPerGuild <= 0 {
		c.Pings.MaxPerGuild = 25
	}
	if c.Pings.SubscriberRefresh <= 0 {
		c.Pings.SubscriberRefresh = Duration(time.Hour)
	}
	if c.Roles.MaxPerGuild <= 0 {
		c.Roles.MaxPerGuild = 15
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Discord.Token) == "" {
		return errors.New("discord.token is required")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	return nil
}
