// Package logging builds the zerolog loggers shared by the bridge components.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Tag is the value of the "tag" field on every record written by the bridge.
const Tag = "Mnemosyne"

// New returns a logger writing to w at the named level ("debug", "info", ...).
// Unknown levels fall back to info. A nil writer discards everything.
func New(w io.Writer, level string) zerolog.Logger {
	if w == nil {
		return zerolog.Nop()
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("tag", Tag).Logger()
}

// Console returns a human readable logger for terminals.
func Console(w io.Writer, level string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}, level)
}

// Component derives a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
