//go:build debug

package debuglog

import (
	"log/slog"
	"os"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

// Debug emits a structured debug line to stderr.
func Debug(msg string, fields ...Field) {
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	logger.Debug(msg, args...)
}
