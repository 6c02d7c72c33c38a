// Package logging builds the process logger: JSON lines in production,
// console output in development.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a timestamped logger for service at level. An unknown level
// falls back to info.
func New(service, level, env string) zerolog.Logger {
	return newWithWriter(os.Stderr, service, level, env)
}

func newWithWriter(w io.Writer, service, level, env string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	out := w
	if env == "development" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", service).Logger()
}
