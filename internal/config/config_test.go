package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseFull(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(`
discord:
  token: "abc"
  guild_id: "123"
database:
  path: "/tmp/test.db"
scheduler:
  tick: 500ms
  default_misfire_grace: 1m
  raid_misfire_grace: 5m
sweep:
  interval: 10m
pings:
  max_per_guild: 10
  subscriber_refresh: 30m
roles:
  max_per_guild: 8
logging:
  level: debug
  console: true
`))
	require.NoError(t, err)
	require.Equal(t, "abc", cfg.Discord.Token)
	require.Equal(t, "/tmp/test.db", cfg.Database.Path)
	require.Equal(t, 500*time.Millisecond, cfg.Scheduler.Tick.Std())
	require.Equal(t, time.Minute, cfg.Scheduler.DefaultMisfireGrace.Std())
	require.Equal(t, 5*time.Minute, cfg.Scheduler.RaidMisfireGrace.Std())
	require.Equal(t, 10*time.Minute, cfg.Sweep.Interval.Std())
	require.Equal(t, 10, cfg.Pings.MaxPerGuild)
	require.Equal(t, 8, cfg.Roles.MaxPerGuild)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.True(t, cfg.Logging.Console)
}

func TestParseDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte("discord:\n  token: \"abc\"\n"))
	require.NoError(t, err)
	require.Equal(t, time.Second, cfg.Scheduler.Tick.Std())
	require.Equal(t, 30*time.Second, cfg.Scheduler.DefaultMisfireGrace.Std())
	require.Equal(t, 10*time.Minute, cfg.Scheduler.RaidMisfireGrace.Std())
	require.Equal(t, 15*time.Minute, cfg.Sweep.Interval.Std())
	require.Equal(t, 25, cfg.Pings.MaxPerGuild)
	require.Equal(t, time.Hour, cfg.Pings.SubscriberRefresh.Std())
	require.Equal(t, 15, cfg.Roles.MaxPerGuild)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		yaml string
	}{
		{"missing token", "logging:\n  level: info\n"},
		{"unknown key", "discord:\n  token: x\nbogus: 1\n"},
		{"bad level", "discord:\n  token: x\nlogging:\n  level: loud\n"},
		{"bad duration", "discord:\n  token: x\nsweep:\n  interval: \"soon\"\n"},
		{"negative duration", "discord:\n  token: x\nsweep:\n  interval: \"-5m\"\n"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
		})
	}
}
