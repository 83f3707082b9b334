// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Level returns the level named by the LOG_LEVEL environment variable. debug
// forces slog.LevelDebug.
func Level(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	level := slog.LevelInfo

	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		switch l {
		case "dev", "development", "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error", "production", "prod":
			level = slog.LevelError
		}
	}
	return level
}

// Init installs a text logger writing to w as the default logger and returns it.
func Init(w io.Writer, debug bool) *slog.Logger {
	logger := slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: Level(debug),
		}),
	)
	slog.SetDefault(logger)
	return logger
}
