/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/lectern/internal/models"
	"github.com/friendsincode/lectern/internal/telemetry"
)

// GormRepository stores collections in the configured SQL database.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository wraps an open, migrated connection.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Load implements Repository.
func (r *GormRepository) Load(ctx context.Context) ([]models.AudioSchedule, []models.AudioSchedulePreset, error) {
	var schedules []models.AudioSchedule
	if err := r.db.WithContext(ctx).Order("scheduled_time ASC").Find(&schedules).Error; err != nil {
		return nil, nil, fmt.Errorf("load schedules: %w", err)
	}
	var presets []models.AudioSchedulePreset
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&presets).Error; err != nil {
		return nil, nil, fmt.Errorf("load presets: %w", err)
	}
	return schedules, presets, nil
}

// SaveSchedules implements Repository.
func (r *GormRepository) SaveSchedules(ctx context.Context, schedules []models.AudioSchedule) error {
	ctx, span := telemetry.StartSpan(ctx, "storage", "SaveSchedules")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{"rows": len(schedules)})

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.AudioSchedule{}).Error; err != nil {
			return fmt.Errorf("clear schedules: %w", err)
		}
		if len(schedules) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(schedules, 100).Error; err != nil {
			return fmt.Errorf("insert schedules: %w", err)
		}
		return nil
	})
	telemetry.RecordError(span, err)
	return err
}

// SavePresets implements Repository.
func (r *GormRepository) SavePresets(ctx context.Context, presets []models.AudioSchedulePreset) error {
	ctx, span := telemetry.StartSpan(ctx, "storage", "SavePresets")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{"rows": len(presets)})

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.AudioSchedulePreset{}).Error; err != nil {
			return fmt.Errorf("clear presets: %w", err)
		}
		if len(presets) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(presets, 100).Error; err != nil {
			return fmt.Errorf("insert presets: %w", err)
		}
		return nil
	})
	telemetry.RecordError(span, err)
	return err
}
