// Package config loads configuration for the kbops client and stub server.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values. Polling cadence and backoff bounds
// are deployment policy, not protocol: they may be tuned freely without
// breaking the backend contract.
type Config struct {
	// Backend connection
	ServerURL     string
	ClientTimeout time.Duration

	// Import job polling
	PollInterval   time.Duration
	PollMaxRetries int
	BackoffBase    time.Duration
	BackoffCap     time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// fileConfig is the YAML shape of the optional config file. Zero values
// mean "not set"; env vars and defaults fill the gaps.
type fileConfig struct {
	ServerURL      string `yaml:"server_url"`
	ClientTimeout  string `yaml:"client_timeout"`
	PollInterval   string `yaml:"poll_interval"`
	PollMaxRetries *int   `yaml:"poll_max_retries"`
	BackoffBase    string `yaml:"backoff_base"`
	BackoffCap     string `yaml:"backoff_cap"`
	LogFile        string `yaml:"log_file"`
	LogLevel       string `yaml:"log_level"`
}

// Load reads configuration with precedence env > config file > defaults.
// The config file is KBOPS_CONFIG if set, otherwise ~/.config/kbops/config.yaml.
func Load() Config {
	fc, _ := loadFile(configPath())

	return Config{
		ServerURL:      firstOf(os.Getenv("KBOPS_SERVER_URL"), fc.ServerURL, "http://localhost:8686"),
		ClientTimeout:  durationOf(os.Getenv("KBOPS_CLIENT_TIMEOUT"), fc.ClientTimeout, 30*time.Second),
		PollInterval:   durationOf(os.Getenv("KBOPS_POLL_INTERVAL"), fc.PollInterval, 2*time.Second),
		PollMaxRetries: intOf(os.Getenv("KBOPS_POLL_MAX_RETRIES"), fc.PollMaxRetries, 5),
		BackoffBase:    durationOf(os.Getenv("KBOPS_BACKOFF_BASE"), fc.BackoffBase, 500*time.Millisecond),
		BackoffCap:     durationOf(os.Getenv("KBOPS_BACKOFF_CAP"), fc.BackoffCap, 8*time.Second),
		LogFile:        firstOf(os.Getenv("KBOPS_LOG_FILE"), fc.LogFile, defaultLogFile()),
		LogLevel:       parseLogLevel(firstOf(os.Getenv("KBOPS_LOG_LEVEL"), fc.LogLevel, "INFO")),
	}
}

func configPath() string {
	if p := os.Getenv("KBOPS_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "kbops", "config.yaml")
}

func defaultLogFile() string {
	return filepath.Join(os.TempDir(), "kbops.log")
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func durationOf(env, file string, fallback time.Duration) time.Duration {
	for _, v := range []string{env, file} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func intOf(env string, file *int, fallback int) int {
	if env != "" {
		if n, err := strconv.Atoi(env); err == nil && n >= 0 {
			return n
		}
	}
	if file != nil && *file >= 0 {
		return *file
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
