// Package logging configures the process logger, bridges engine-internal
// log records into it, and writes the per-request decision log.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/wafgate/wafgate/internal/engine"
)

type Config struct {
	Level  string
	Format string
}

// Setup builds the process logger. Unknown levels fall back to info.
func Setup(cfg Config) zerolog.Logger {
	var output io.Writer = os.Stdout
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

// EngineSink adapts a logger into the engine's log sink. The sink swallows
// panics: a logging failure must never change an inspection outcome.
func EngineSink(log zerolog.Logger) engine.LogSink {
	return func(message string) {
		defer func() { _ = recover() }()
		log.Info().Str("source", "engine").Msg(message)
	}
}
