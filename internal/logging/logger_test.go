package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerWritesJSONWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New().SetOutput(buf).SetLevel(LevelDebug)

	logger.WithField("card_id", "abc-123").Info("card locked")
	if buf.Len() == 0 {
		t.Fatalf("expected log output")
	}

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log json: %v", err)
	}
	if entry.Level != "INFO" || entry.Message != "card locked" {
		t.Fatalf("unexpected log entry: %+v", entry)
	}
	if entry.Fields["card_id"] != "abc-123" {
		t.Fatalf("expected field to propagate")
	}
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New().SetOutput(buf).SetLevel(LevelError)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected sub-error levels to be filtered, got %s", buf.String())
	}

	logger.Error("shown", map[string]interface{}{"k": "v"})
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected error log to be written")
	}
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New().SetOutput(buf).SetLevel(LevelDebug)

	derived := logger.WithField("req", "1")
	derived.Info("derived")
	buf.Reset()

	logger.Info("parent")
	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("failed to parse log json: %v", err)
	}
	if _, ok := entry.Fields["req"]; ok {
		t.Fatal("parent logger picked up derived field")
	}
}

func TestDefaultLoggerHelpers(t *testing.T) {
	buf := &bytes.Buffer{}
	Default = New().SetOutput(buf).SetLevel(LevelDebug)

	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")

	output := buf.String()
	for _, want := range []string{"debug", "info", "warn", "error"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in default logger output, got %s", want, output)
		}
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String(): expected %q, got %q", tt.level, tt.want, got)
		}
	}
}
