package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/lectern/internal/events"
	"github.com/friendsincode/lectern/internal/models"
)

func absolutePreset(name string, hour, minute int) PresetRequest {
	return PresetRequest{
		Name:      name,
		AudioID:   "bell.mp3",
		AudioName: "Bell",
		TimeType:  models.TimeAbsolute,
		Hour:      intPtr(hour),
		Minute:    intPtr(minute),
	}
}

func TestCreatePresetValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     PresetRequest
		wantErr bool
	}{
		{"valid absolute", absolutePreset("Service start", 10, 30), false},
		{"valid relative", PresetRequest{Name: "Five minutes", AudioID: "a", TimeType: models.TimeRelative, RelativeMinutes: intPtr(5)}, false},
		{"blank name", absolutePreset("  ", 10, 30), true},
		{"missing audio", PresetRequest{Name: "x", TimeType: models.TimeRelative, RelativeMinutes: intPtr(5)}, true},
		{"hour out of range", absolutePreset("x", 24, 0), true},
		{"minute out of range", absolutePreset("x", 10, 60), true},
		{"negative minute", absolutePreset("x", 10, -1), true},
		{"absolute without time", PresetRequest{Name: "x", AudioID: "a", TimeType: models.TimeAbsolute}, true},
		{"relative zero", PresetRequest{Name: "x", AudioID: "a", TimeType: models.TimeRelative, RelativeMinutes: intPtr(0)}, true},
		{"unknown type", PresetRequest{Name: "x", AudioID: "a", TimeType: "daily"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.CreatePreset(ctx, tt.req)
			if tt.wantErr && !errors.Is(err, ErrInvalidParameters) {
				t.Fatalf("expected ErrInvalidParameters, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
	if n := len(h.svc.Presets()); n != 2 {
		t.Fatalf("expected 2 presets, got %d", n)
	}
	if n := len(h.repo.presets); n != 2 {
		t.Fatalf("expected 2 persisted presets, got %d", n)
	}
}

func TestActivatePreset(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	later, err := h.svc.CreatePreset(ctx, absolutePreset("Offering", 10, 0))
	if err != nil {
		t.Fatalf("CreatePreset: %v", err)
	}
	earlier, err := h.svc.CreatePreset(ctx, absolutePreset("Doors", 8, 30))
	if err != nil {
		t.Fatalf("CreatePreset: %v", err)
	}
	rel, err := h.svc.CreatePreset(ctx, PresetRequest{Name: "Countdown", AudioID: "tick.mp3", TimeType: models.TimeRelative, RelativeMinutes: intPtr(15)})
	if err != nil {
		t.Fatalf("CreatePreset: %v", err)
	}

	tests := []struct {
		name   string
		preset string
		want   time.Time
	}{
		{"later today", later.ID, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"already passed rolls to tomorrow", earlier.ID, time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)},
		{"relative", rel.ID, t0.Add(15 * time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := h.svc.ActivatePreset(ctx, tt.preset, "/media/audio/x.mp3")
			if err != nil {
				t.Fatalf("ActivatePreset: %v", err)
			}
			if !rec.ScheduledTime.Equal(tt.want) {
				t.Fatalf("scheduled %v, want %v", rec.ScheduledTime, tt.want)
			}
			if rec.AudioPath != "/media/audio/x.mp3" || rec.Status != models.StatusPending {
				t.Fatalf("unexpected schedule %+v", rec)
			}
		})
	}

	if _, err := h.svc.ActivatePreset(ctx, "missing", "/x.mp3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := h.svc.ActivatePreset(ctx, rel.ID, ""); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected ErrInvalidParameters for empty path, got %v", err)
	}
}

func TestActivatePresetAcrossDSTKeepsHour(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	h := newHarness(t, nil, WithLocation(loc))
	// The evening before clocks spring forward.
	h.clk.Advance(time.Date(2026, 3, 7, 19, 0, 0, 0, loc).Sub(h.clk.Now()))

	p, err := h.svc.CreatePreset(context.Background(), absolutePreset("Prelude", 9, 0))
	if err != nil {
		t.Fatalf("CreatePreset: %v", err)
	}
	rec, err := h.svc.ActivatePreset(context.Background(), p.ID, "/media/audio/prelude.mp3")
	if err != nil {
		t.Fatalf("ActivatePreset: %v", err)
	}
	if want := time.Date(2026, 3, 8, 9, 0, 0, 0, loc); !rec.ScheduledTime.Equal(want) {
		t.Fatalf("scheduled %v, want %v", rec.ScheduledTime.In(loc), want)
	}
}

func TestDeletePreset(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	p, err := h.svc.CreatePreset(ctx, absolutePreset("Doors", 8, 30))
	if err != nil {
		t.Fatalf("CreatePreset: %v", err)
	}
	if !h.svc.DeletePreset(ctx, p.ID) {
		t.Fatal("delete returned false")
	}
	if h.svc.DeletePreset(ctx, p.ID) {
		t.Fatal("second delete returned true")
	}
	if len(h.svc.Presets()) != 0 || len(h.repo.presets) != 0 {
		t.Fatal("preset still stored")
	}

	var lists int
	for _, e := range h.bus.log {
		if e.eventType == events.EventPresets {
			lists++
		}
	}
	if lists != 2 {
		t.Fatalf("expected 2 preset list notifications, got %d", lists)
	}
}

func TestImportPresetsReportsBadEntries(t *testing.T) {
	h := newHarness(t, nil)
	stored, errs := h.svc.ImportPresets(context.Background(), []PresetRequest{
		absolutePreset("Doors", 8, 30),
		absolutePreset("", 8, 30),
		absolutePreset("Late", 25, 0),
	})
	if len(stored) != 1 || len(errs) != 2 {
		t.Fatalf("stored %d, errors %d", len(stored), len(errs))
	}
	for _, err := range errs {
		if !errors.Is(err, ErrInvalidParameters) {
			t.Fatalf("unexpected error %v", err)
		}
	}
}
