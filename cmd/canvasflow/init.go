package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/rendis/canvasflow/internal/store"
)

// runInit writes the settings layer from flags and migrates the database.
func runInit(args []string, stdout, stderr io.Writer) error {
	defaults := defaultConfig()

	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db-path", defaults.DBPath, "database path or libsql URL")
	logLevel := fs.String("log-level", defaults.LogLevel, "log level: debug, info, warn, error")
	logFormat := fs.String("log-format", defaults.LogFormat, "log format: text, json")
	delay := fs.Int("simulation-delay-ms", defaults.SimulationDelayMS, "simulated latency per node (negative disables)")
	runtimeURL := fs.String("runtime-url", "", "base URL of the workflow runtime status API")
	poll := fs.Int("poll-interval-ms", defaults.PollIntervalMS, "runtime status poll interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := Config{
		DBPath:            *dbPath,
		LogLevel:          *logLevel,
		LogFormat:         *logFormat,
		SimulationDelayMS: *delay,
		RuntimeURL:        *runtimeURL,
		PollIntervalMS:    *poll,
	}

	path, err := writeSettings(cfg)
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	fmt.Fprintf(stdout, "Config written to %s\n", path)

	s, err := store.NewLibSQLStore(cfg.DSN())
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Migrate(context.Background()); err != nil {
		return fmt.Errorf("migrate %s: %w", cfg.DBPath, err)
	}
	fmt.Fprintf(stdout, "Database ready at %s\n", cfg.DBPath)
	return nil
}
