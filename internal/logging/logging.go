package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"herald/internal/config"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// New builds the root logger. Console mode renders human-friendly key=value
// lines; otherwise output is raw JSON, one event per line. The level is set
// globally so a config reload can change it without rebuilding loggers.
func New(cfg config.LoggingConfig) zerolog.Logger {
	return NewWithOutput(cfg, os.Stderr)
}

// NewWithOutput is New with an explicit sink, used by tests.
func NewWithOutput(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	Apply(cfg)
	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: consoleTimeFormat}
	}
	return zerolog.New(out).
		With().
		Timestamp().
		Logger()
}

// Apply re-applies the runtime-adjustable part of the logging config.
func Apply(cfg config.LoggingConfig) {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
}

// ParseLevel maps a config level string to a zerolog level, defaulting to
// info for anything unrecognized (config validation rejects those anyway).
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond
}
