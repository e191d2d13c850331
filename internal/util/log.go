// Package util holds small shared helpers that do not belong to a domain
// package.
package util

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a JSON logger at the requested level, falling back to
// info on an unknown level string.
func NewLogger(level string) zerolog.Logger {
	return newLogger(level, os.Stdout)
}

// NewConsoleLogger returns a human-readable logger for interactive sessions.
func NewConsoleLogger(level string) zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return newLogger(level, writer)
}

func newLogger(level string, out io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(lvl)
}
