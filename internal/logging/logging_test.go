package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupLevels(t *testing.T) {
	tests := []struct {
		env  string
		want zerolog.Level
	}{
		{"development", zerolog.DebugLevel},
		{"Development", zerolog.DebugLevel},
		{"production", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		logger := SetupWithWriter(tt.env, &bytes.Buffer{}, nil)
		if got := logger.GetLevel(); got != tt.want {
			t.Fatalf("env %q: level %v, want %v", tt.env, got, tt.want)
		}
	}
}

func TestCaptureReceivesJSON(t *testing.T) {
	var out, capture bytes.Buffer
	logger := SetupWithWriter("development", &out, &capture)
	logger.Info().Str("component", "scheduler").Msg("armed")

	var entry map[string]any
	if err := json.Unmarshal(capture.Bytes(), &entry); err != nil {
		t.Fatalf("capture is not JSON: %v (%q)", err, capture.String())
	}
	if entry["message"] != "armed" || entry["component"] != "scheduler" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if out.Len() == 0 {
		t.Fatal("console output empty")
	}
}
