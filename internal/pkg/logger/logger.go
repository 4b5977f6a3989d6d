// Package logger builds the root zerolog logger shared by every binary:
// human-readable console output when stderr is a terminal, JSON lines
// otherwise, with the level taken from LOG_LEVEL.
package logger

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// New builds a binary's root logger. LOG_LEVEL accepts debug, info, warn,
// and error; anything else (including unset) means info.
func New() zerolog.Logger {
	level := levelFromEnv()

	if isatty.IsTerminal(os.Stderr.Fd()) {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

func levelFromEnv() zerolog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
