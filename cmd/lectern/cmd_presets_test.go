package main

import (
	"strings"
	"testing"

	"github.com/friendsincode/lectern/internal/models"
)

func TestParsePresetFile(t *testing.T) {
	in := `
presets:
  - name: Prelude
    audio_id: hymns/prelude.mp3
    time_type: absolute
    hour: 10
    minute: 25
  - name: Offering
    audio_id: instrumental/offering.mp3
    time_type: relative
    relative_minutes: 3
`
	reqs, err := parsePresetFile(strings.NewReader(in))
	if err != nil {
		t.Fatalf("parsePresetFile: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("expected 2 presets, got %d", len(reqs))
	}
	if reqs[0].TimeType != models.TimeAbsolute || *reqs[0].Hour != 10 || *reqs[0].Minute != 25 {
		t.Fatalf("unexpected first preset %+v", reqs[0])
	}
	if reqs[1].RelativeMinutes == nil || *reqs[1].RelativeMinutes != 3 || reqs[1].Hour != nil {
		t.Fatalf("unexpected second preset %+v", reqs[1])
	}
}

func TestParsePresetFileRejectsUnknownFields(t *testing.T) {
	_, err := parsePresetFile(strings.NewReader("presets:\n  - name: x\n    colour: red\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestPresetWhen(t *testing.T) {
	h, m, rel := 9, 5, 15
	tests := []struct {
		p    models.AudioSchedulePreset
		want string
	}{
		{models.AudioSchedulePreset{TimeType: models.TimeAbsolute, Hour: &h, Minute: &m}, "at 09:05"},
		{models.AudioSchedulePreset{TimeType: models.TimeRelative, RelativeMinutes: &rel}, "in 15 min"},
		{models.AudioSchedulePreset{TimeType: models.TimeAbsolute}, "-"},
	}
	for _, tt := range tests {
		if got := presetWhen(tt.p); got != tt.want {
			t.Fatalf("presetWhen = %q, want %q", got, tt.want)
		}
	}
}
