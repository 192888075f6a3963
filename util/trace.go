// Package util holds the logging helpers shared by the generators.
package util

import (
	"context"
	"log/slog"
)

// LevelTrace sits between debug and info. It is used for per-artifact
// messages that are too noisy for info but useful when following a build.
const LevelTrace slog.Level = slog.LevelDebug + 2

// Trace logs at LevelTrace through the default logger.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}
