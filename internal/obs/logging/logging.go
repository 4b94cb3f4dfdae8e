// Package logging configures the process-wide structured logger.
//
// Grounded on libs/go/core/logging/logging.go: same env-var switch between
// JSON and text handlers, same default-logger-as-return-value shape.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures and returns a slog.Logger tagged with service, and sets
// it as the process default. TASKQUEUE_JSON_LOG=1/true/json selects the
// JSON handler; anything else uses the text handler.
func Init(service string) *slog.Logger {
	mode := strings.ToLower(os.Getenv("TASKQUEUE_JSON_LOG"))
	var handler slog.Handler
	opts := &slog.HandlerOptions{AddSource: false, Level: levelFromEnv()}
	if mode == "1" || mode == "true" || mode == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	logger.Info("logging initialized", "json", mode == "1" || mode == "true" || mode == "json")
	return logger
}

func levelFromEnv() slog.Leveler {
	switch strings.ToLower(os.Getenv("TASKQUEUE_LOG_LEVEL")) {
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
