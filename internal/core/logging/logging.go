// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Configure builds the root logger. format is "json" or "console";
// level is any zerolog level name.
func Configure(level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var logger zerolog.Logger
	switch format {
	case "console":
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	case "json":
		logger = zerolog.New(os.Stderr)
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", format)
	}
	return logger.Level(lvl).With().Timestamp().Logger(), nil
}
