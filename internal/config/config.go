/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// StoreKind selects where schedules and presets persist.
type StoreKind string

const (
	StoreDatabase StoreKind = "database"
	StoreFile     StoreKind = "file"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int

	Store     StoreKind
	DBBackend DatabaseBackend
	DBDSN     string
	StateFile string

	MediaRoot string

	// S3 Object Storage configuration
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Prefix          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool   // Required for MinIO
	S3PresignTTL      time.Duration

	// Remote surfaces
	RemoteKey       string
	RemoteKeyHash   string // bcrypt, wins over RemoteKey
	JWTSigningKey   string
	JWTKeyGenerated bool
	SessionTTL      time.Duration

	// Media lookup cache
	CacheEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NATSURL string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	Timezone        string
	Location        *time.Location
	CleanupInterval time.Duration
	LogBufferSize   int
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"LECTERN_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"LECTERN_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"LECTERN_HTTP_PORT", "PORT"}, 8080),

		Store:     StoreKind(strings.ToLower(getEnvAny([]string{"LECTERN_STORE"}, string(StoreDatabase)))),
		DBBackend: DatabaseBackend(strings.ToLower(getEnvAny([]string{"LECTERN_DB_BACKEND"}, string(DatabaseSQLite)))),
		DBDSN:     getEnvAny([]string{"LECTERN_DB_DSN", "DATABASE_URL"}, ""),
		StateFile: getEnvAny([]string{"LECTERN_STATE_FILE"}, "./lectern-schedules.json"),

		MediaRoot: getEnvAny([]string{"LECTERN_MEDIA_ROOT"}, "./media"),

		S3AccessKeyID:     getEnvAny([]string{"LECTERN_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"LECTERN_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"LECTERN_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"LECTERN_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Prefix:          strings.Trim(getEnvAny([]string{"LECTERN_S3_PREFIX"}, ""), "/"),
		S3Endpoint:        getEnvAny([]string{"LECTERN_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"LECTERN_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),
		S3PresignTTL:      time.Duration(getEnvIntAny([]string{"LECTERN_S3_PRESIGN_TTL_MINUTES"}, 360)) * time.Minute,

		RemoteKey:     getEnvAny([]string{"LECTERN_REMOTE_KEY"}, ""),
		RemoteKeyHash: getEnvAny([]string{"LECTERN_REMOTE_KEY_HASH"}, ""),
		JWTSigningKey: getEnvAny([]string{"LECTERN_JWT_SIGNING_KEY"}, ""),
		SessionTTL:    time.Duration(getEnvIntAny([]string{"LECTERN_SESSION_TTL_HOURS"}, 12)) * time.Hour,

		CacheEnabled:  getEnvBoolAny([]string{"LECTERN_CACHE_ENABLED"}, false),
		RedisAddr:     getEnvAny([]string{"LECTERN_REDIS_ADDR", "REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"LECTERN_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"LECTERN_REDIS_DB", "REDIS_DB"}, 0),

		NATSURL: getEnvAny([]string{"LECTERN_NATS_URL", "NATS_URL"}, ""),

		TracingEnabled:    getEnvBoolAny([]string{"LECTERN_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"LECTERN_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"LECTERN_TRACING_SAMPLE_RATE"}, 1.0),

		Timezone:        getEnvAny([]string{"LECTERN_TIMEZONE", "TZ"}, "Local"),
		CleanupInterval: time.Duration(getEnvIntAny([]string{"LECTERN_CLEANUP_INTERVAL_MINUTES"}, 60)) * time.Minute,
		LogBufferSize:   getEnvIntAny([]string{"LECTERN_LOG_BUFFER_SIZE"}, 500),
	}

	if cfg.Store != StoreDatabase && cfg.Store != StoreFile {
		return nil, fmt.Errorf("unsupported store %q", cfg.Store)
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		if cfg.DBBackend != DatabaseSQLite {
			return nil, fmt.Errorf("LECTERN_DB_DSN must be provided for %s", cfg.DBBackend)
		}
		cfg.DBDSN = "lectern.db"
	}

	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid http port %d", cfg.HTTPPort)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}

	if cfg.IsProduction() {
		if cfg.RemoteKey == "" && cfg.RemoteKeyHash == "" {
			return nil, fmt.Errorf("LECTERN_REMOTE_KEY or LECTERN_REMOTE_KEY_HASH must be set in production")
		}
		if cfg.JWTSigningKey == "" {
			return nil, fmt.Errorf("LECTERN_JWT_SIGNING_KEY must be set in production")
		}
	}

	if cfg.JWTSigningKey == "" {
		key, err := randomKey()
		if err != nil {
			return nil, fmt.Errorf("generate jwt signing key: %w", err)
		}
		cfg.JWTSigningKey = key
		cfg.JWTKeyGenerated = true
	}

	return cfg, nil
}

// IsProduction reports whether the process runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// ListenAddr returns the HTTP listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func randomKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
