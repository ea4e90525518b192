package logging

import (
	"io"
	"log/slog"
	"os"
)

// SetupJSON sets slog's default logger to use JSON output at the given level.
func SetupJSON(level slog.Level) {
	logger := slog.New(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
	)
	slog.SetDefault(logger)
}

// SetupText sets slog's default logger to human-readable output on w.
// Used by interactive commands whose stdout carries command results.
func SetupText(w io.Writer, level slog.Level) {
	logger := slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}),
	)
	slog.SetDefault(logger)
}

// ParseLevel maps a config string such as "debug" or "WARN" to a slog level.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level

	err := lvl.UnmarshalText([]byte(s))
	if err != nil {
		return slog.LevelInfo
	}

	return lvl
}
