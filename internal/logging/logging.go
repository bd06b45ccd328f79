// Package logging builds the application's slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Options selects the handler and level.
type Options struct {
	// Format is "text", "json" or "" to pick text on a terminal and JSON otherwise.
	Format string
	// Level is debug, info, warn or error. Unknown values mean info.
	Level string
	// Out defaults to os.Stderr.
	Out io.Writer
}

// New returns a logger writing colorized text through tint on a terminal
// and JSON elsewhere.
func New(opts Options) *slog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	level := ParseLevel(opts.Level)

	format := strings.ToLower(opts.Format)
	if format == "" {
		format = "json"
		if isTerminal(out) {
			format = "text"
		}
	}

	if format == "text" {
		return slog.New(tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(out),
		}))
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
