package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestLoggerWritesActionAndFields(t *testing.T) {
	var buf bytes.Buffer
	lg := NewWithWriter("floor-terminal", &buf)

	lg.Error("room_join_failed", errors.New("ack timeout"), map[string]any{"room": "branch:b1"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decoding log line %q: %v", buf.String(), err)
	}
	if entry["service"] != "floor-terminal" {
		t.Errorf("service = %v", entry["service"])
	}
	if entry["action"] != "room_join_failed" {
		t.Errorf("action = %v", entry["action"])
	}
	if entry["level"] != "error" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry["room"] != "branch:b1" {
		t.Errorf("room field = %v", entry["room"])
	}
	errField, ok := entry["error"].(map[string]any)
	if !ok || errField["msg"] != "ack timeout" {
		t.Errorf("error field = %v", entry["error"])
	}
}

func TestWithAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("hub", &buf).With("relay").Info("relay_started", nil)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decoding log line: %v", err)
	}
	if entry["component"] != "relay" {
		t.Errorf("component = %v", entry["component"])
	}
}

func TestNopDiscards(t *testing.T) {
	Nop().Info("anything", map[string]any{"k": 1})
}
