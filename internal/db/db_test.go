package db

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"

	"github.com/friendsincode/lectern/internal/config"
	"github.com/friendsincode/lectern/internal/models"
	"github.com/friendsincode/lectern/internal/telemetry"
)

func TestConnectAndMigrateSQLite(t *testing.T) {
	cfg := &config.Config{
		Environment: "test",
		DBBackend:   config.DatabaseSQLite,
		DBDSN:       ":memory:",
	}
	database, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer Close(database)

	if err := Migrate(database); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	s := models.AudioSchedule{
		ID:            uuid.NewString(),
		AudioID:       "bell.mp3",
		TimeType:      models.TimeRelative,
		ScheduledTime: time.Now().Add(time.Minute),
		Status:        models.StatusPending,
	}
	if err := database.Create(&s).Error; err != nil {
		t.Fatalf("Create: %v", err)
	}
	var count int64
	if err := database.Model(&models.AudioSchedule{}).Count(&count).Error; err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestConnectRejectsUnknownBackend(t *testing.T) {
	if _, err := Connect(&config.Config{DBBackend: "oracle"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestCallbacksLabelScheduleTables(t *testing.T) {
	database, err := Connect(&config.Config{DBBackend: config.DatabaseSQLite, DBDSN: ":memory:"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer Close(database)
	if err := Migrate(database); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	createErrs := telemetry.DatabaseErrorsTotal.WithLabelValues("create", "audio_schedules")
	queryErrs := telemetry.DatabaseErrorsTotal.WithLabelValues("query", "audio_schedule_presets")
	beforeCreate := testutil.ToFloat64(createErrs)
	beforeQuery := testutil.ToFloat64(queryErrs)

	s := models.AudioSchedule{ID: uuid.NewString(), TimeType: models.TimeRelative, Status: models.StatusPending}
	if err := database.Create(&s).Error; err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := database.Create(&s).Error; err == nil {
		t.Fatal("duplicate primary key should fail")
	}
	if got := testutil.ToFloat64(createErrs) - beforeCreate; got != 1 {
		t.Fatalf("create errors on audio_schedules grew by %v, want 1", got)
	}

	var p models.AudioSchedulePreset
	if err := database.First(&p).Error; !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("First: %v", err)
	}
	if got := testutil.ToFloat64(queryErrs) - beforeQuery; got != 0 {
		t.Fatalf("not-found counted as error: %v", got)
	}
}

func TestTableLabelFoldsUnknownTables(t *testing.T) {
	tests := map[string]string{
		"audio_schedules":        "audio_schedules",
		"audio_schedule_presets": "audio_schedule_presets",
		"sqlite_master":          "other",
		"":                       "other",
	}
	for table, want := range tests {
		db := &gorm.DB{Statement: &gorm.Statement{Table: table}}
		if got := tableLabel(db); got != want {
			t.Errorf("tableLabel(%q) = %q, want %q", table, got, want)
		}
	}
}
