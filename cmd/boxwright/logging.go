package main

import (
	"io"
	"log/slog"

	"github.com/go-logr/logr"
)

// newLogger backs logr with a slog text handler. logr's V(1) maps to slog
// level -1, so debug output appears only with --debug.
func newLogger(w io.Writer, debug bool) logr.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return logr.FromSlogHandler(handler)
}
