/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// TimeType selects how a schedule's fire time is expressed.
type TimeType string

const (
	TimeAbsolute TimeType = "absolute"
	TimeRelative TimeType = "relative"
)

// Valid reports whether t is a known time type.
func (t TimeType) Valid() bool {
	return t == TimeAbsolute || t == TimeRelative
}

// ScheduleStatus tracks a schedule through its one-shot lifecycle.
type ScheduleStatus string

const (
	StatusPending   ScheduleStatus = "pending"
	StatusTriggered ScheduleStatus = "triggered"
	StatusSkipped   ScheduleStatus = "skipped"
	StatusExpired   ScheduleStatus = "expired"
)

// Terminal reports whether no further transition can happen.
func (s ScheduleStatus) Terminal() bool {
	return s != StatusPending
}

// SkipReason explains a skipped or cancelled schedule.
type SkipReason string

const (
	SkipNotIdle   SkipReason = "not_idle"
	SkipCancelled SkipReason = "cancelled"

	// SkipMediaMissing means the audio id no longer resolved at fire time.
	SkipMediaMissing SkipReason = "media_missing"
)

// AudioSchedule is a one-shot request to play an audio item at a given time,
// honoured only when the display is idle.
type AudioSchedule struct {
	ID              string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	AudioID         string         `gorm:"type:varchar(255)" json:"audio_id"`
	AudioName       string         `gorm:"type:varchar(255)" json:"audio_name"`
	AudioPath       string         `gorm:"type:text" json:"audio_path"`
	TimeType        TimeType       `gorm:"type:varchar(16)" json:"time_type"`
	ScheduledTime   time.Time      `gorm:"index" json:"scheduled_time"`
	RelativeMinutes *int           `json:"relative_minutes,omitempty"`
	Status          ScheduleStatus `gorm:"type:varchar(16);index" json:"status"`
	SkipReason      SkipReason     `gorm:"type:varchar(16)" json:"skip_reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	TriggeredAt     *time.Time     `json:"triggered_at,omitempty"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (AudioSchedule) TableName() string { return "audio_schedules" }

// Clone returns a copy that shares no pointers with s.
func (s AudioSchedule) Clone() AudioSchedule {
	out := s
	if s.RelativeMinutes != nil {
		v := *s.RelativeMinutes
		out.RelativeMinutes = &v
	}
	if s.TriggeredAt != nil {
		v := *s.TriggeredAt
		out.TriggeredAt = &v
	}
	return out
}

// AudioSchedulePreset is a reusable template that produces a fresh
// AudioSchedule when activated.
type AudioSchedulePreset struct {
	ID              string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name            string    `gorm:"type:varchar(255)" json:"name"`
	AudioID         string    `gorm:"type:varchar(255)" json:"audio_id"`
	AudioName       string    `gorm:"type:varchar(255)" json:"audio_name"`
	TimeType        TimeType  `gorm:"type:varchar(16)" json:"time_type"`
	Hour            *int      `json:"hour,omitempty"`
	Minute          *int      `json:"minute,omitempty"`
	RelativeMinutes *int      `json:"relative_minutes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (AudioSchedulePreset) TableName() string { return "audio_schedule_presets" }

// Clone returns a copy that shares no pointers with p.
func (p AudioSchedulePreset) Clone() AudioSchedulePreset {
	out := p
	out.Hour = cloneInt(p.Hour)
	out.Minute = cloneInt(p.Minute)
	out.RelativeMinutes = cloneInt(p.RelativeMinutes)
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
