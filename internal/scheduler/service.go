/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler arms one-shot audio cues that play only while the
// display is idle, and keeps reusable presets for them.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/friendsincode/lectern/internal/events"
	"github.com/friendsincode/lectern/internal/media"
	"github.com/friendsincode/lectern/internal/models"
	"github.com/friendsincode/lectern/internal/presentation"
	"github.com/friendsincode/lectern/internal/telemetry"
)

var (
	// ErrInvalidParameters rejects a request missing its time field or with
	// a non-positive relative delay.
	ErrInvalidParameters = errors.New("invalid schedule parameters")
	// ErrNotFound is returned for unknown preset ids.
	ErrNotFound = errors.New("not found")
)

// retention is how long finished schedules stay visible.
const retention = time.Hour

const (
	persistTimeout = 5 * time.Second
	resolveTimeout = 5 * time.Second
)

// Display is the part of the presentation store the scheduler drives.
type Display interface {
	Mode() presentation.Mode
	LoadAudio(src, name string)
	PlayAudio()
}

// Resolver turns a stored audio id into a playable source. Sources may be
// short-lived (presigned URLs), so they are resolved again when a schedule
// fires.
type Resolver interface {
	Resolve(ctx context.Context, kind media.Kind, id string) (media.Item, error)
}

// Repository persists schedules and presets.
type Repository interface {
	Load(ctx context.Context) ([]models.AudioSchedule, []models.AudioSchedulePreset, error)
	SaveSchedules(ctx context.Context, schedules []models.AudioSchedule) error
	SavePresets(ctx context.Context, presets []models.AudioSchedulePreset) error
}

// Publisher receives list and lifecycle notifications.
type Publisher interface {
	Publish(eventType events.EventType, payload events.Payload)
}

// LifecycleType names a schedule transition.
type LifecycleType string

const (
	LifecycleCreated   LifecycleType = "created"
	LifecycleTriggered LifecycleType = "triggered"
	LifecycleSkipped   LifecycleType = "skipped"
	LifecycleCancelled LifecycleType = "cancelled"
	LifecycleExpired   LifecycleType = "expired"
)

// CreateRequest describes a new schedule.
type CreateRequest struct {
	AudioID         string
	AudioName       string
	AudioPath       string
	TimeType        models.TimeType
	AbsoluteTime    *time.Time
	RelativeMinutes *int
}

// PresetRequest describes a new preset.
type PresetRequest struct {
	Name            string
	AudioID         string
	AudioName       string
	TimeType        models.TimeType
	Hour            *int
	Minute          *int
	RelativeMinutes *int
}

// Option configures a Service.
type Option func(*Service)

// WithLocation sets the zone preset hours are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithResolver makes fire-time playback resolve the schedule's audio id
// instead of replaying the path captured at creation.
func WithResolver(r Resolver) Option {
	return func(s *Service) {
		s.resolver = r
	}
}

// WithCleanupInterval sets how often Run sweeps finished schedules.
func WithCleanupInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cleanupInterval = d
		}
	}
}

// Service owns the schedule and preset collections and their timers.
type Service struct {
	clock    clockwork.Clock
	display  Display
	repo     Repository
	bus      Publisher
	resolver Resolver
	logger   zerolog.Logger

	loc             *time.Location
	cleanupInterval time.Duration

	mu        sync.Mutex
	schedules []models.AudioSchedule
	presets   []models.AudioSchedulePreset
	timers    map[string]clockwork.Timer
	closed    bool
}

// New loads persisted collections, expires pending schedules whose time
// passed while the process was down, re-arms the rest, and sweeps old
// history.
func New(ctx context.Context, clk clockwork.Clock, display Display, repo Repository, bus Publisher, logger zerolog.Logger, opts ...Option) (*Service, error) {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	s := &Service{
		clock:           clk,
		display:         display,
		repo:            repo,
		bus:             bus,
		logger:          logger.With().Str("component", "audio_scheduler").Logger(),
		loc:             time.Local,
		cleanupInterval: time.Hour,
		timers:          make(map[string]clockwork.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}

	schedules, presets, err := repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	s.schedules = schedules
	s.presets = presets

	s.restore()
	s.Cleanup()
	return s, nil
}

func (s *Service) restore() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	expired := 0
	for i := range s.schedules {
		rec := &s.schedules[i]
		if rec.Status != models.StatusPending {
			continue
		}
		if rec.ScheduledTime.After(now) {
			s.armLocked(rec.ID, rec.ScheduledTime.Sub(now))
			continue
		}
		rec.Status = models.StatusExpired
		expired++
		s.logger.Info().Str("schedule", rec.ID).Time("scheduled_time", rec.ScheduledTime).Msg("schedule expired while offline")
		s.emitLocked(LifecycleExpired, *rec, now)
	}
	if expired > 0 {
		s.persistSchedulesLocked()
		s.publishSchedulesLocked()
	}
	s.updatePendingGaugeLocked()
	s.logger.Info().Int("armed", len(s.timers)).Int("expired", expired).Msg("schedules restored")
}

// Run sweeps finished schedules until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.cleanupInterval).Msg("schedule cleanup loop started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("schedule cleanup loop stopped")
			return ctx.Err()
		case <-ticker.Chan():
			s.Cleanup()
		}
	}
}

// Close disarms every timer. Pending schedules stay persisted and are
// re-armed by the next New.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.closed = true
}

// Create validates req, stores a pending schedule and arms its timer.
func (s *Service) Create(ctx context.Context, req CreateRequest) (models.AudioSchedule, error) {
	_, span := telemetry.StartSpan(ctx, "scheduler", "Create")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.buildLocked(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return models.AudioSchedule{}, err
	}
	telemetry.AddSpanAttributes(span, map[string]any{
		"schedule_id":    rec.ID,
		"time_type":      string(rec.TimeType),
		"scheduled_time": rec.ScheduledTime,
	})

	s.schedules = append(s.schedules, rec)
	s.armLocked(rec.ID, rec.ScheduledTime.Sub(s.clock.Now()))
	s.persistSchedulesLocked()
	s.publishSchedulesLocked()
	s.emitLocked(LifecycleCreated, rec, rec.CreatedAt)
	s.updatePendingGaugeLocked()

	s.logger.Info().
		Str("schedule", rec.ID).
		Str("audio", rec.AudioName).
		Time("scheduled_time", rec.ScheduledTime).
		Msg("schedule created")
	return rec.Clone(), nil
}

func (s *Service) buildLocked(req CreateRequest) (models.AudioSchedule, error) {
	if req.AudioPath == "" && (req.AudioID == "" || s.resolver == nil) {
		return models.AudioSchedule{}, fmt.Errorf("%w: audio path is required", ErrInvalidParameters)
	}
	now := s.clock.Now()
	rec := models.AudioSchedule{
		ID:        uuid.NewString(),
		AudioID:   req.AudioID,
		AudioName: req.AudioName,
		AudioPath: req.AudioPath,
		TimeType:  req.TimeType,
		Status:    models.StatusPending,
		CreatedAt: now,
	}
	if rec.AudioName == "" {
		rec.AudioName = req.AudioID
	}

	switch req.TimeType {
	case models.TimeRelative:
		if req.RelativeMinutes == nil || *req.RelativeMinutes <= 0 {
			return models.AudioSchedule{}, fmt.Errorf("%w: relative minutes must be positive", ErrInvalidParameters)
		}
		minutes := *req.RelativeMinutes
		rec.RelativeMinutes = &minutes
		rec.ScheduledTime = now.Add(time.Duration(minutes) * time.Minute)
	case models.TimeAbsolute:
		if req.AbsoluteTime == nil || req.AbsoluteTime.IsZero() {
			return models.AudioSchedule{}, fmt.Errorf("%w: absolute time is required", ErrInvalidParameters)
		}
		rec.ScheduledTime = nextOccurrence(*req.AbsoluteTime, now)
	default:
		return models.AudioSchedule{}, fmt.Errorf("%w: unknown time type %q", ErrInvalidParameters, req.TimeType)
	}
	return rec, nil
}

// nextOccurrence treats at as a time of day: an instant not after now moves
// forward by whole calendar days, in its own zone so the wall-clock hour
// survives DST changes, until it is.
func nextOccurrence(at, now time.Time) time.Time {
	if at.After(now) {
		return at
	}
	if days := int(now.Sub(at) / (24 * time.Hour)); days > 1 {
		at = at.AddDate(0, 0, days-1)
	}
	for !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// Cancel disarms and removes a pending schedule. It returns false for unknown
// ids and for schedules that already fired.
func (s *Service) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 || s.schedules[idx].Status != models.StatusPending {
		return false
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	rec := s.schedules[idx]
	s.schedules = append(s.schedules[:idx], s.schedules[idx+1:]...)

	s.persistSchedulesLocked()
	s.publishSchedulesLocked()
	rec.Status = models.StatusSkipped
	rec.SkipReason = models.SkipCancelled
	s.emitLocked(LifecycleCancelled, rec, s.clock.Now())
	s.updatePendingGaugeLocked()

	s.logger.Info().Str("schedule", id).Msg("schedule cancelled")
	return true
}

// fire runs when a schedule's timer expires. A schedule that was cancelled or
// already transitioned is left alone. The audio id is resolved without
// holding the lock, so the pending check is repeated afterwards.
func (s *Service) fire(id string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	idx := s.indexLocked(id)
	if idx < 0 || s.schedules[idx].Status != models.StatusPending {
		s.mu.Unlock()
		return
	}
	audioID, src := s.schedules[idx].AudioID, s.schedules[idx].AudioPath
	s.mu.Unlock()

	var resolveErr error
	if s.resolver != nil && audioID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		item, err := s.resolver.Resolve(ctx, media.KindAudio, audioID)
		cancel()
		if err != nil {
			resolveErr = err
		} else {
			src = item.Path
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	idx = s.indexLocked(id)
	if idx < 0 || s.schedules[idx].Status != models.StatusPending {
		return
	}

	rec := &s.schedules[idx]
	now := s.clock.Now()
	lifecycle := LifecycleSkipped
	switch mode := s.display.Mode(); {
	case mode != presentation.ModeIdle:
		rec.Status = models.StatusSkipped
		rec.SkipReason = models.SkipNotIdle
		s.logger.Info().Str("schedule", id).Str("mode", string(mode)).Msg("schedule skipped, display not idle")
	case resolveErr != nil:
		rec.Status = models.StatusSkipped
		rec.SkipReason = models.SkipMediaMissing
		s.logger.Warn().Err(resolveErr).Str("schedule", id).Str("audio_id", audioID).Msg("schedule skipped, audio did not resolve")
	default:
		s.display.LoadAudio(src, rec.AudioName)
		s.display.PlayAudio()
		rec.Status = models.StatusTriggered
		rec.TriggeredAt = &now
		lifecycle = LifecycleTriggered
		s.logger.Info().Str("schedule", id).Str("audio", rec.AudioName).Msg("schedule triggered")
	}

	s.persistSchedulesLocked()
	s.publishSchedulesLocked()
	s.emitLocked(lifecycle, *rec, now)
	s.updatePendingGaugeLocked()
}

// Cleanup drops finished schedules older than an hour and expired ones.
// It returns how many were removed.
func (s *Service) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	kept := s.schedules[:0:0]
	for _, rec := range s.schedules {
		if keep(rec, now) {
			kept = append(kept, rec)
		}
	}
	removed := len(s.schedules) - len(kept)
	if removed == 0 {
		return 0
	}
	s.schedules = kept
	s.persistSchedulesLocked()
	s.publishSchedulesLocked()
	s.logger.Info().Int("removed", removed).Msg("old schedules cleaned up")
	return removed
}

func keep(rec models.AudioSchedule, now time.Time) bool {
	switch rec.Status {
	case models.StatusPending:
		return true
	case models.StatusTriggered:
		return rec.TriggeredAt != nil && now.Sub(*rec.TriggeredAt) < retention
	case models.StatusSkipped:
		return now.Sub(rec.ScheduledTime) < retention
	default:
		return false
	}
}

// Pending returns pending schedules, soonest first.
func (s *Service) Pending() []models.AudioSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.AudioSchedule, 0, len(s.timers))
	for _, rec := range s.schedules {
		if rec.Status == models.StatusPending {
			out = append(out, rec.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	return out
}

// Schedules returns every schedule, newest first.
func (s *Service) Schedules() []models.AudioSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedulesSnapshotLocked()
}

// Schedule looks one schedule up.
func (s *Service) Schedule(id string) (models.AudioSchedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return s.schedules[idx].Clone(), true
	}
	return models.AudioSchedule{}, false
}

func (s *Service) schedulesSnapshotLocked() []models.AudioSchedule {
	out := make([]models.AudioSchedule, len(s.schedules))
	for i, rec := range s.schedules {
		out[i] = rec.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Service) indexLocked(id string) int {
	for i := range s.schedules {
		if s.schedules[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Service) armLocked(id string, delay time.Duration) {
	if s.closed {
		return
	}
	if delay < 0 {
		delay = 0
	}
	s.timers[id] = s.clock.AfterFunc(delay, func() { s.fire(id) })
}

func (s *Service) persistSchedulesLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	out := make([]models.AudioSchedule, len(s.schedules))
	for i, rec := range s.schedules {
		out[i] = rec.Clone()
	}
	if err := s.repo.SaveSchedules(ctx, out); err != nil {
		telemetry.PersistenceErrorsTotal.WithLabelValues("schedules").Inc()
		s.logger.Warn().Err(err).Msg("failed to persist schedules")
	}
}

func (s *Service) publishSchedulesLocked() {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.EventSchedules, events.Payload{"schedules": s.schedulesSnapshotLocked()})
}

func (s *Service) emitLocked(t LifecycleType, rec models.AudioSchedule, at time.Time) {
	telemetry.ScheduleEventsTotal.WithLabelValues(string(t)).Inc()
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.EventScheduleLifecycle, events.Payload{
		"type":      string(t),
		"schedule":  rec.Clone(),
		"timestamp": at,
	})
}

func (s *Service) updatePendingGaugeLocked() {
	telemetry.SchedulesPending.Set(float64(len(s.timers)))
}
