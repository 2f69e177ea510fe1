// Package telemetry provides shared logging configuration for judgerund.
package telemetry

import (
	"log/slog"
	"os"
)

const defaultLogLevel = slog.LevelInfo

// Init sets the default slog logger's level from the LOG_LEVEL environment
// variable (debug|info|warn|error), defaulting to info.
func Init() {
	level := defaultLogLevel
	if levelText, ok := os.LookupEnv("LOG_LEVEL"); ok {
		if err := level.UnmarshalText([]byte(levelText)); err != nil {
			level = slog.LevelDebug
		}
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
