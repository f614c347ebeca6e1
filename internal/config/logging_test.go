package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDualHandler_TextAndJSON(t *testing.T) {
	var console, file bytes.Buffer
	logger := slog.New(dualHandler(&console, &file, slog.LevelInfo))

	logger.Info("import started", "job_id", "abc123")

	if !strings.Contains(console.String(), "import started") {
		t.Errorf("console output missing message: %q", console.String())
	}

	var entry map[string]any
	if err := json.Unmarshal(file.Bytes(), &entry); err != nil {
		t.Fatalf("file output is not JSON: %v\n%s", err, file.String())
	}
	if entry["msg"] != "import started" {
		t.Errorf("msg = %v, want import started", entry["msg"])
	}
	if entry["job_id"] != "abc123" {
		t.Errorf("job_id = %v, want abc123", entry["job_id"])
	}
}

func TestDualHandler_LevelFilter(t *testing.T) {
	var console, file bytes.Buffer
	logger := slog.New(dualHandler(&console, &file, slog.LevelWarn))

	logger.Debug("poll tick")
	logger.Info("import started")

	if console.Len() != 0 || file.Len() != 0 {
		t.Errorf("sub-warn records leaked: console=%q file=%q", console.String(), file.String())
	}
}

func TestNewLogger_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kbops.log")
	logger, closeLog := NewLogger(Config{LogFile: path, LogLevel: slog.LevelInfo})

	logger.Info("import committed", "job_id", "abc123")
	if err := closeLog(); err != nil {
		t.Fatalf("close log: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("log file is not JSON: %v\n%s", err, data)
	}
	if entry["msg"] != "import committed" {
		t.Errorf("msg = %v, want import committed", entry["msg"])
	}
}

func TestNewLogger_FallsBackWithoutFile(t *testing.T) {
	// Parent directory does not exist, so the file cannot be opened.
	path := filepath.Join(t.TempDir(), "missing", "kbops.log")
	logger, closeLog := NewLogger(Config{LogFile: path, LogLevel: slog.LevelInfo})

	if logger == nil {
		t.Fatal("NewLogger returned nil logger")
	}
	logger.Info("still works")
	if err := closeLog(); err != nil {
		t.Errorf("no-op closer returned error: %v", err)
	}
}
