package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a configured application logger.
// It writes to Stderr so that Stdout stays free for command output (e.g. `watch` JSON lines).
// It standardizes common keys (e.g., "error" -> "err").
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr,
	}))
}

// NewJSON creates a JSON logger for daemon mode, writing to w.
func NewJSON(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr,
	}))
}

// ParseLevel maps a config string to a slog level. Unknown values default to info.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// NewNop returns a no-op logger.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	// Standardize 'error' key to 'err'
	if a.Key == "error" {
		a.Key = "err"
	}
	return a
}
