package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const serviceName = "nutriplano-billing"

// New builds the process logger from ENV and LOG_LEVEL. It runs before the
// config is loaded so startup failures are logged too.
func New() zerolog.Logger {
	return build(os.Stderr, os.Getenv("ENV") == "development", os.Getenv("LOG_LEVEL"))
}

func build(out io.Writer, console bool, level string) zerolog.Logger {
	// Cloud Logging parses the level from a "severity" field.
	zerolog.LevelFieldName = "severity"
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if console {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(out).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Str("app", serviceName).
		Logger()
}

// ParseLevel falls back to info for empty or unknown levels.
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(s)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
