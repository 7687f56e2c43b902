package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LECTERN_ENV", "development")
	t.Setenv("LECTERN_TIMEZONE", "UTC")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Store != StoreDatabase || cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("unexpected store defaults: %s/%s", cfg.Store, cfg.DBBackend)
	}
	if cfg.DBDSN != "lectern.db" {
		t.Fatalf("unexpected sqlite dsn %q", cfg.DBDSN)
	}
	if cfg.CleanupInterval != time.Hour {
		t.Fatalf("unexpected cleanup interval %v", cfg.CleanupInterval)
	}
	if !cfg.JWTKeyGenerated || len(cfg.JWTSigningKey) != 64 {
		t.Fatalf("expected a generated jwt key, got %q", cfg.JWTSigningKey)
	}
	if cfg.Location != time.UTC {
		t.Fatalf("expected UTC location, got %v", cfg.Location)
	}
	if cfg.ListenAddr() != "0.0.0.0:8080" {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr())
	}
}

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("LECTERN_STORE", "file")
	t.Setenv("LECTERN_STATE_FILE", "/var/lib/lectern/state.json")
	t.Setenv("LECTERN_REMOTE_KEY", "sunday")
	t.Setenv("LECTERN_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("LECTERN_CLEANUP_INTERVAL_MINUTES", "15")
	t.Setenv("LECTERN_S3_PREFIX", "/church/media/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Store != StoreFile || cfg.StateFile != "/var/lib/lectern/state.json" {
		t.Fatalf("unexpected store %s %q", cfg.Store, cfg.StateFile)
	}
	if cfg.JWTSigningKey != "supersecret" || cfg.JWTKeyGenerated {
		t.Fatalf("unexpected jwt signing key: %q", cfg.JWTSigningKey)
	}
	if cfg.CleanupInterval != 15*time.Minute {
		t.Fatalf("unexpected cleanup interval %v", cfg.CleanupInterval)
	}
	if cfg.S3Prefix != "church/media" {
		t.Fatalf("unexpected s3 prefix %q", cfg.S3Prefix)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown store", map[string]string{"LECTERN_STORE": "etcd"}},
		{"unknown backend", map[string]string{"LECTERN_DB_BACKEND": "oracle"}},
		{"postgres without dsn", map[string]string{"LECTERN_DB_BACKEND": "postgres"}},
		{"bad timezone", map[string]string{"LECTERN_TIMEZONE": "Mars/Olympus"}},
		{"bad port", map[string]string{"LECTERN_HTTP_PORT": "70000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected load to fail")
			}
		})
	}
}

func TestLoadProductionRequiresRemoteKey(t *testing.T) {
	t.Setenv("LECTERN_ENV", "production")
	t.Setenv("LECTERN_JWT_SIGNING_KEY", "supersecret")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail without a remote key")
	}

	t.Setenv("LECTERN_REMOTE_KEY", "sunday")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config load with a remote key to succeed: %v", err)
	}
}
