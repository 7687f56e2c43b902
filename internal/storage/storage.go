/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage persists audio schedules and presets. Both backends
// replace the whole collection on every save.
package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/lectern/internal/config"
	"github.com/friendsincode/lectern/internal/models"
)

// Repository loads and saves the scheduler's collections.
type Repository interface {
	Load(ctx context.Context) ([]models.AudioSchedule, []models.AudioSchedulePreset, error)
	SaveSchedules(ctx context.Context, schedules []models.AudioSchedule) error
	SavePresets(ctx context.Context, presets []models.AudioSchedulePreset) error
}

// New returns the repository selected by cfg.Store. database may be nil for
// the file store.
func New(cfg *config.Config, database *gorm.DB) (Repository, error) {
	switch cfg.Store {
	case config.StoreFile:
		return NewFileRepository(cfg.StateFile)
	case config.StoreDatabase:
		if database == nil {
			return nil, fmt.Errorf("database store requires a connection")
		}
		return NewGormRepository(database), nil
	default:
		return nil, fmt.Errorf("unsupported store %q", cfg.Store)
	}
}
