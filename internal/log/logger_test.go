package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestSetup(t *testing.T) {
	logger = nil
	once = *new(sync.Once)

	Setup("DEBUG", FormatText)
	if logger == nil {
		t.Fatal("Logger should not be nil")
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "INFO", "json").Info("hello", "team_id", "T1")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["team_id"] != "T1" {
		t.Errorf("Expected team_id 'T1', got %v", out["team_id"])
	}

	buf.Reset()
	newLogger(&buf, "INFO", "TEXT").Info("hello", "team_id", "T1")
	if !strings.Contains(buf.String(), "team_id=T1") {
		t.Errorf("Expected text output, got %q", buf.String())
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "warn", "json")
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("INFO should be filtered at WARN, got %q", buf.String())
	}
	l.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("WARN should be logged, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if ValidLevel("bogus") {
		t.Error("bogus should not be a valid level")
	}
	if !ValidLevel("debug") {
		t.Error("debug should be a valid level")
	}
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	WithComponent("webhook").Info("hello")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["component"] != "webhook" {
		t.Errorf("Expected component 'webhook', got %v", out["component"])
	}
	if out["msg"] != "hello" {
		t.Errorf("Expected msg 'hello', got %v", out["msg"])
	}
}
