// Package logging configures the global zerolog logger and emits the
// one-line startup summary each binary logs.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global logger. Empty arguments fall back to
// VIDEOINTEL_LOG_LEVEL and VIDEOINTEL_LOG_FORMAT. Level is one of debug,
// info, warn, error (default info); format is console (default, stderr) or
// json (stdout, for Lambda).
func Init(level, format string) {
	if level == "" {
		level = os.Getenv("VIDEOINTEL_LOG_LEVEL")
	}
	if format == "" {
		format = os.Getenv("VIDEOINTEL_LOG_FORMAT")
	}
	zerolog.SetGlobalLevel(ParseLevel(level))
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = zerolog.New(writerFor(format)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

func writerFor(format string) io.Writer {
	if strings.EqualFold(format, "json") {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
}
