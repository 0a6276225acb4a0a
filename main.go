package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/libops/fleetctl/internal/cli"
	"github.com/libops/fleetctl/internal/logging"
)

func main() {
	// Set up context-aware logging as default
	setupLogging()

	if err := cli.Execute(); err != nil {
		slog.Error("Run failed", "err", err)
		os.Exit(1)
	}
}

func setupLogging() {
	// Get log level from environment variable
	level := getLogLevel()

	// Create a text handler for human-readable logging
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})

	// Wrap it with the context handler to include run and site context
	contextHandler := logging.NewContextHandler(textHandler)

	// Set as default logger
	slog.SetDefault(slog.New(contextHandler))
}

func getLogLevel() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
