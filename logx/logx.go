// Package logx wires structured logging for TLink components.
//
// Every core component accepts an optional *slog.Logger via a functional
// option and defaults to NoOp, following the pattern saaskit's
// pkg/httpserver/nooplogger.go uses so the core runtime never forces an
// application to configure logging.
package logx

import (
	"context"
	"io"
	"log/slog"
)

// NoOp returns a logger that discards everything. It is the default logger
// for every TLink component that accepts a *slog.Logger option.
func NoOp() *slog.Logger {
	return slog.New(noopHandler{})
}

type noopHandler struct{}

func (noopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (noopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h noopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h noopHandler) WithGroup(string) slog.Handler           { return h }

// New builds a logger writing to w at level and above: JSON if json is
// true, text otherwise, following the level/format split
// dmitrymomot-saaskit's environment-driven loggers use.
func New(w io.Writer, level slog.Level, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a config-file level name to a slog.Level, defaulting to
// Info on an unrecognized value rather than erroring, since a bad log level
// should never stop the process from starting.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
