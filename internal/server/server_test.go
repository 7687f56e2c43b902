package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/lectern/internal/config"
	"github.com/friendsincode/lectern/internal/events"
	"github.com/friendsincode/lectern/internal/logbuffer"
	"github.com/friendsincode/lectern/internal/presentation"
)

func TestSecurityHeadersMiddleware_BaselineHeaders(t *testing.T) {
	h := securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options=%q, want nosniff", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options=%q, want DENY", got)
	}
	if got := rr.Header().Get("Content-Security-Policy"); got == "" {
		t.Fatalf("expected Content-Security-Policy header")
	}
	if got := rr.Header().Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("expected no HSTS on non-HTTPS request, got %q", got)
	}
}

func TestSecurityHeadersMiddleware_SetsHSTSOnHTTPS(t *testing.T) {
	h := securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Fatalf("Strict-Transport-Security=%q", got)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Environment:     "development",
		HTTPBind:        "127.0.0.1",
		HTTPPort:        0,
		Store:           config.StoreFile,
		StateFile:       filepath.Join(dir, "state.json"),
		MediaRoot:       filepath.Join(dir, "media"),
		JWTSigningKey:   "test-signing-key",
		SessionTTL:      time.Hour,
		Location:        time.UTC,
		CleanupInterval: time.Hour,
	}
}

func TestServerBridgesSettings(t *testing.T) {
	srv, err := New(testConfig(t), logbuffer.New(10), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer srv.Close()

	settings := srv.bus.Subscribe(events.EventSettings)
	states := srv.bus.Subscribe(events.EventDisplayState)

	body := bytes.NewBufferString(`{"show_clock":false,"clock_font_size":900,"clock_position":"nowhere"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/display/idle.settings", body)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}

	select {
	case payload := <-settings:
		idle, ok := payload["idle"].(presentation.IdleState)
		if !ok {
			t.Fatalf("unexpected payload %v", payload)
		}
		if idle.ShowClock || idle.ClockFontSize != presentation.MaxClockFontSize || idle.ClockPosition != presentation.PositionCenter {
			t.Fatalf("settings not normalized: %+v", idle)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for settings event")
	}

	select {
	case <-states:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state event")
	}
}

func TestServerServesMediaAndHealth(t *testing.T) {
	cfg := testConfig(t)
	srv, err := New(cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer srv.Close()

	audioDir := filepath.Join(cfg.MediaRoot, "audio")
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(audioDir, "bell.mp3"), []byte("ID3"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	for path, want := range map[string]int{
		"/healthz":              http.StatusOK,
		"/media/audio/bell.mp3": http.StatusOK,
		"/media/audio/none.mp3": http.StatusNotFound,
		"/metrics":              http.StatusOK,
	} {
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != want {
			t.Fatalf("GET %s = %d, want %d", path, rr.Code, want)
		}
	}
}
