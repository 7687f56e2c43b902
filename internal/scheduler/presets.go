/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/friendsincode/lectern/internal/events"
	"github.com/friendsincode/lectern/internal/models"
	"github.com/friendsincode/lectern/internal/telemetry"
)

// CreatePreset validates and stores a preset.
func (s *Service) CreatePreset(ctx context.Context, req PresetRequest) (models.AudioSchedulePreset, error) {
	p := models.AudioSchedulePreset{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		AudioID:   req.AudioID,
		AudioName: req.AudioName,
		TimeType:  req.TimeType,
	}
	if p.Name == "" {
		return models.AudioSchedulePreset{}, fmt.Errorf("%w: preset name is required", ErrInvalidParameters)
	}
	if p.AudioID == "" {
		return models.AudioSchedulePreset{}, fmt.Errorf("%w: audio id is required", ErrInvalidParameters)
	}
	if p.AudioName == "" {
		p.AudioName = p.AudioID
	}

	switch req.TimeType {
	case models.TimeAbsolute:
		if req.Hour == nil || req.Minute == nil {
			return models.AudioSchedulePreset{}, fmt.Errorf("%w: hour and minute are required", ErrInvalidParameters)
		}
		if *req.Hour < 0 || *req.Hour > 23 || *req.Minute < 0 || *req.Minute > 59 {
			return models.AudioSchedulePreset{}, fmt.Errorf("%w: time %d:%d out of range", ErrInvalidParameters, *req.Hour, *req.Minute)
		}
		h, m := *req.Hour, *req.Minute
		p.Hour, p.Minute = &h, &m
	case models.TimeRelative:
		if req.RelativeMinutes == nil || *req.RelativeMinutes <= 0 {
			return models.AudioSchedulePreset{}, fmt.Errorf("%w: relative minutes must be positive", ErrInvalidParameters)
		}
		v := *req.RelativeMinutes
		p.RelativeMinutes = &v
	default:
		return models.AudioSchedulePreset{}, fmt.Errorf("%w: unknown time type %q", ErrInvalidParameters, req.TimeType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p.CreatedAt = s.clock.Now()
	s.presets = append(s.presets, p)
	s.persistPresetsLocked(ctx)
	s.publishPresetsLocked()

	s.logger.Info().Str("preset", p.ID).Str("name", p.Name).Msg("preset created")
	return p.Clone(), nil
}

// DeletePreset removes a preset. It returns false for unknown ids.
func (s *Service) DeletePreset(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.presets {
		if s.presets[i].ID != id {
			continue
		}
		s.presets = append(s.presets[:i], s.presets[i+1:]...)
		s.persistPresetsLocked(ctx)
		s.publishPresetsLocked()
		s.logger.Info().Str("preset", id).Msg("preset deleted")
		return true
	}
	return false
}

// Preset looks one preset up.
func (s *Service) Preset(id string) (models.AudioSchedulePreset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.presets {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return models.AudioSchedulePreset{}, false
}

// Presets returns every preset, oldest first.
func (s *Service) Presets() []models.AudioSchedulePreset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presetsSnapshotLocked()
}

// ActivatePreset creates a schedule from a preset. Absolute presets target
// today at the preset's hour and minute in the configured zone, rolling over
// to the same wall-clock time tomorrow when that has passed.
func (s *Service) ActivatePreset(ctx context.Context, id, audioPath string) (models.AudioSchedule, error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler", "ActivatePreset")
	defer span.End()

	p, ok := s.Preset(id)
	if !ok {
		err := fmt.Errorf("%w: preset %s", ErrNotFound, id)
		telemetry.RecordError(span, err)
		return models.AudioSchedule{}, err
	}

	req := CreateRequest{
		AudioID:   p.AudioID,
		AudioName: p.AudioName,
		AudioPath: audioPath,
		TimeType:  p.TimeType,
	}
	switch p.TimeType {
	case models.TimeAbsolute:
		if p.Hour != nil && p.Minute != nil {
			now := s.clock.Now().In(s.loc)
			at := time.Date(now.Year(), now.Month(), now.Day(), *p.Hour, *p.Minute, 0, 0, s.loc)
			req.AbsoluteTime = &at
		}
	case models.TimeRelative:
		req.RelativeMinutes = p.RelativeMinutes
	}
	return s.Create(ctx, req)
}

// ImportPresets stores several presets, skipping invalid ones. It returns the
// stored presets and the per-entry errors.
func (s *Service) ImportPresets(ctx context.Context, reqs []PresetRequest) ([]models.AudioSchedulePreset, []error) {
	var (
		stored []models.AudioSchedulePreset
		errs   []error
	)
	for i, req := range reqs {
		p, err := s.CreatePreset(ctx, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("preset %d (%s): %w", i, req.Name, err))
			continue
		}
		stored = append(stored, p)
	}
	return stored, errs
}

func (s *Service) presetsSnapshotLocked() []models.AudioSchedulePreset {
	out := make([]models.AudioSchedulePreset, len(s.presets))
	for i, p := range s.presets {
		out[i] = p.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Service) persistPresetsLocked(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.repo.SavePresets(ctx, s.presetsSnapshotLocked()); err != nil {
		telemetry.PersistenceErrorsTotal.WithLabelValues("presets").Inc()
		s.logger.Warn().Err(err).Msg("failed to persist presets")
	}
}

func (s *Service) publishPresetsLocked() {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.EventPresets, events.Payload{"presets": s.presetsSnapshotLocked()})
}
