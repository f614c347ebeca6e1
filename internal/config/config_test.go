package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"KBOPS_CONFIG", "KBOPS_SERVER_URL", "KBOPS_CLIENT_TIMEOUT",
		"KBOPS_POLL_INTERVAL", "KBOPS_POLL_MAX_RETRIES",
		"KBOPS_BACKOFF_BASE", "KBOPS_BACKOFF_CAP",
		"KBOPS_LOG_FILE", "KBOPS_LOG_LEVEL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("KBOPS_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load()
	if cfg.ServerURL != "http://localhost:8686" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.PollInterval)
	}
	if cfg.PollMaxRetries != 5 {
		t.Errorf("PollMaxRetries = %d, want 5", cfg.PollMaxRetries)
	}
	if cfg.BackoffBase != 500*time.Millisecond {
		t.Errorf("BackoffBase = %v, want 500ms", cfg.BackoffBase)
	}
	if cfg.BackoffCap != 8*time.Second {
		t.Errorf("BackoffCap = %v, want 8s", cfg.BackoffCap)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
}

func TestLoad_FileThenEnvPrecedence(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	file := []byte("server_url: http://file:1111\npoll_interval: 7s\nlog_level: DEBUG\n")
	if err := os.WriteFile(path, file, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KBOPS_CONFIG", path)

	cfg := Load()
	if cfg.ServerURL != "http://file:1111" {
		t.Errorf("ServerURL = %q, want file value", cfg.ServerURL)
	}
	if cfg.PollInterval != 7*time.Second {
		t.Errorf("PollInterval = %v, want 7s", cfg.PollInterval)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}

	// Env beats the file.
	t.Setenv("KBOPS_SERVER_URL", "http://env:2222")
	t.Setenv("KBOPS_POLL_INTERVAL", "3s")
	cfg = Load()
	if cfg.ServerURL != "http://env:2222" {
		t.Errorf("ServerURL = %q, want env value", cfg.ServerURL)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Errorf("PollInterval = %v, want 3s", cfg.PollInterval)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("KBOPS_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("KBOPS_POLL_INTERVAL", "soon")
	t.Setenv("KBOPS_POLL_MAX_RETRIES", "many")
	t.Setenv("KBOPS_LOG_LEVEL", "LOUD")

	cfg := Load()
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want default 2s", cfg.PollInterval)
	}
	if cfg.PollMaxRetries != 5 {
		t.Errorf("PollMaxRetries = %d, want default 5", cfg.PollMaxRetries)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want default info", cfg.LogLevel)
	}
}
