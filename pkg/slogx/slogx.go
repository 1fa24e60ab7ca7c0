// Package slogx builds the gateway's structured logger and threads a
// request-scoped variant of it through context. Handlers never construct
// loggers; they pull the contextual one and add fields.
package slogx

import (
	"log/slog"
	"os"
	"strings"
)

// Config selects the handler and the base fields stamped on every record.
type Config struct {
	Service string
	Version string
	Env     string // e.g. "dev", "prod"
	Level   string // e.g. "debug", "info", "warn", "error"
	Format  string // "text" or "json"; anything else means json
}

// New builds the process-wide logger and installs it as slog's default,
// so code without a context still logs with the service fields attached.
func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		// Source locations are noise in production logs.
		AddSource: cfg.Env == "dev",
		Level:     parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(
		"service", cfg.Service,
		"version", cfg.Version,
		"env", cfg.Env,
	)

	slog.SetDefault(logger)
	return logger
}

func parseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
