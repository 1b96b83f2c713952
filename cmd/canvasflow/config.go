package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all canvasflow configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath            string `json:"db_path"`
	LogLevel          string `json:"log_level"`
	LogFormat         string `json:"log_format"` // text | json
	SimulationDelayMS int    `json:"simulation_delay_ms"`
	RuntimeURL        string `json:"runtime_url"`
	PollIntervalMS    int    `json:"poll_interval_ms"`
}

func defaultConfig() Config {
	return Config{
		DBPath:            filepath.Join(canvasflowDir(), "canvasflow.db"),
		LogLevel:          "info",
		LogFormat:         "text",
		SimulationDelayMS: 600,
		PollIntervalMS:    2000,
	}
}

func canvasflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".canvasflow"
	}
	return filepath.Join(home, ".canvasflow")
}

func settingsPath() string {
	return filepath.Join(canvasflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("CANVASFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CANVASFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CANVASFLOW_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("CANVASFLOW_SIMULATION_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SimulationDelayMS = n
		}
	}
	if v := os.Getenv("CANVASFLOW_RUNTIME_URL"); v != "" {
		cfg.RuntimeURL = v
	}
	if v := os.Getenv("CANVASFLOW_POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PollIntervalMS = n
		}
	}

	return cfg
}

// SimulationDelay converts the configured delay. A negative value disables
// the delay; zero falls back to the simulator default.
func (c Config) SimulationDelay() time.Duration {
	return time.Duration(c.SimulationDelayMS) * time.Millisecond
}

// PollInterval converts the configured runtime poll interval.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// DSN returns the libSQL connection string for DBPath. Plain paths are
// opened as local files; URLs (libsql://, http://, file:) pass through.
func (c Config) DSN() string {
	if strings.HasPrefix(c.DBPath, "file:") || strings.Contains(c.DBPath, "://") {
		return c.DBPath
	}
	return "file:" + c.DBPath
}

// writeSettings persists cfg as the settings.json layer.
func writeSettings(cfg Config) (string, error) {
	if err := os.MkdirAll(canvasflowDir(), 0o700); err != nil {
		return "", err
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	path := settingsPath()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
