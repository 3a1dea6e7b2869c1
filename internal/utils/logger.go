package utils

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the process-wide logger. Every record carries the
// service name so the assistant's events can be separated from the rest of
// the platform in the shared sink.
func InitLogger(level, format string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)

	var base zerolog.Logger
	if format == "console" {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		base = zerolog.New(os.Stdout)
	}

	log.Logger = base.With().
		Timestamp().
		Str("service", "lending-assistant").
		Logger()
}

// ComponentLogger returns a logger pre-tagged with a component name, for
// subsystems that log outside a per-request event record.
func ComponentLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}
