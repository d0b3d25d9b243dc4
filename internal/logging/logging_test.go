package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "DEBUG", "Info"} {
		log, err := NewLogger(level, FileOptions{})
		if err != nil {
			t.Fatalf("NewLogger(%q): %v", level, err)
		}
		_ = log.Sync()
	}
	if _, err := NewLogger("loud", FileOptions{}); err == nil {
		t.Fatal("NewLogger accepted an unknown level")
	}
}

func TestNewLoggerFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	log, err := NewLogger("info", FileOptions{Path: path})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.Info("relay listening")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, data)
	}
	if entry["msg"] != "relay listening" {
		t.Fatalf("msg = %v", entry["msg"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatal("log line has no ts field")
	}
}
