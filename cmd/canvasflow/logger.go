package main

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/rendis/canvasflow/internal/logging"
)

// newLogger builds the process logger: tint for humans, JSON for machines.
// Both are wrapped so context correlation IDs reach every record.
func newLogger(cfg Config, w io.Writer) *slog.Logger {
	level := parseLevel(cfg.LogLevel)

	var h slog.Handler
	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		h = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			NoColor:    os.Getenv("NO_COLOR") != "",
		})
	}
	return slog.New(logging.NewCorrelationHandler(h))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
