package logger

import (
	"io"
	"log/slog"
	"time"
)

// NewSlogLogger creates a Logger writing JSON records to w.
// Intended for tests and for embedding the packages in other programs.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	lvl := parseSlogLevel(level)
	return &moduleLogger{
		logger:   slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})),
		level:    lvl,
		timezone: tz,
	}
}

// NewDiscard returns a Logger that drops every record.
func NewDiscard() Logger {
	return NewSlogLogger(io.Discard, LogLevelError, time.UTC)
}
