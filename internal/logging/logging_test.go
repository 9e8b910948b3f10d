package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWritesTagAndComponent(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New(&buf, "debug"), "worker")
	log.Debug().Msg("starting running Mnemosyne thread")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid json record %q: %v", buf.String(), err)
	}
	if rec["tag"] != Tag {
		t.Errorf("expected tag %q, got %v", Tag, rec["tag"])
	}
	if rec["component"] != "worker" {
		t.Errorf("expected component worker, got %v", rec["component"])
	}
	if rec["level"] != "debug" {
		t.Errorf("expected level debug, got %v", rec["level"])
	}
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "chatty")
	log.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug record should be filtered at info, got %q", buf.String())
	}
	log.Info().Msg("shown")
	if buf.Len() == 0 {
		t.Error("info record should be written")
	}
}

func TestNewNilWriterIsNop(t *testing.T) {
	log := New(nil, "debug")
	log.Error().Msg("dropped")
}
