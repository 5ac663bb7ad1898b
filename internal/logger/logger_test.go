package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNew_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := Component(New(Config{Level: "debug", Format: FormatJSON, Output: &buf}), "registry")

	l.Debug().Str(FieldRequestID, "req_1").Msg("created")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry[FieldComponent] != "registry" {
		t.Errorf("expected component=registry, got %v", entry[FieldComponent])
	}
	if entry[FieldRequestID] != "req_1" {
		t.Errorf("expected request_id=req_1, got %v", entry[FieldRequestID])
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf})

	l.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered at warn level, got %q", buf.String())
	}

	l.Warn().Msg("shown")
	if buf.Len() == 0 {
		t.Error("expected warn to be written")
	}
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "chatty", Output: &buf})

	l.Debug().Msg("hidden")
	l.Info().Msg("shown")

	if bytes.Contains(buf.Bytes(), []byte("hidden")) {
		t.Error("expected debug to be filtered")
	}
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Error("expected info to be written")
	}
}

func TestAsynqLogger(t *testing.T) {
	var buf bytes.Buffer
	a := AsynqLogger{L: New(Config{Output: &buf})}

	a.Info("scheduler ", "started")
	if !bytes.Contains(buf.Bytes(), []byte("scheduler started")) {
		t.Errorf("expected joined message, got %q", buf.String())
	}
}
