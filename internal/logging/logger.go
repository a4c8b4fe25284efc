// Package logging builds the process logger and persists resolver decisions
// as provenance rows for later audit.
package logging

// #region imports
import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// #endregion imports

// #region logger

// NewWithWriter builds the root logger writing to w. level is a zerolog level
// name ("debug", "info", ...); unknown names fall back to info. pretty
// switches to console output.
func NewWithWriter(w io.Writer, level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).Level(lvl).With().
		Timestamp().
		Str("app", "answer-engine").
		Logger()
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// #endregion logger

// #region time
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// #endregion time
