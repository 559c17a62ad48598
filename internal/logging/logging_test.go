package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "production", "debug")
	log.Debug().Str("component", "test").Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	if line["message"] != "hello" || line["component"] != "test" || line["level"] != "debug" {
		t.Errorf("unexpected log line: %v", line)
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "production", "warn")
	log.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info line written at warn level: %q", buf.String())
	}
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "production", "chatty")
	log.Debug().Msg("dropped")
	log.Info().Msg("kept")
	if bytes.Contains(buf.Bytes(), []byte("dropped")) || !bytes.Contains(buf.Bytes(), []byte("kept")) {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}
