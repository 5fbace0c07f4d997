package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewWritesStructuredEntries(t *testing.T) {
	var buf bytes.Buffer
	log := New("test", &buf, "info")

	log.Info("prices refreshed", "count", 12)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["component"] != "test" {
		t.Errorf("component = %v, want test", entry["component"])
	}
	if entry["message"] != "prices refreshed" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["count"] != float64(12) {
		t.Errorf("count = %v, want 12", entry["count"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New("test", &buf, "warn")

	log.Info("should be dropped")
	log.Warn("should pass")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Error("info entry leaked through warn level")
	}
	if !strings.Contains(out, "should pass") {
		t.Error("warn entry missing")
	}
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New("test", &buf, "chatty")

	log.Debug("debug entry")
	log.Info("info entry")

	out := buf.String()
	if strings.Contains(out, "debug entry") {
		t.Error("debug entry passed at default info level")
	}
	if !strings.Contains(out, "info entry") {
		t.Error("info entry missing")
	}
}

func TestWithErrorAndNamed(t *testing.T) {
	var buf bytes.Buffer
	log := New("parent", &buf, "info")

	log.Named("child").WithError(errors.New("boom")).Warn("operation failed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["component"] != "parent.child" {
		t.Errorf("component = %v, want parent.child", entry["component"])
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %v, want boom", entry["error"])
	}
}

func TestNopDiscards(t *testing.T) {
	// Must not panic.
	Nop().Info("into the void", "key", "value")
}

func TestEmitSkipsNonStringKeys(t *testing.T) {
	var buf bytes.Buffer
	log := New("test", &buf, "info")

	log.Info("odd args", 42, "value", "ok", true)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["ok"] != true {
		t.Errorf("ok = %v, want true", entry["ok"])
	}
}
