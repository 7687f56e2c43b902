/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/lectern/internal/media"
	"github.com/friendsincode/lectern/internal/models"
	"github.com/friendsincode/lectern/internal/scheduler"
)

type scheduleRequest struct {
	AudioID         string          `json:"audio_id"`
	AudioName       string          `json:"audio_name"`
	TimeType        models.TimeType `json:"time_type"`
	AbsoluteTime    *time.Time      `json:"absolute_time"`
	RelativeMinutes *int            `json:"relative_minutes"`
}

type presetRequest struct {
	Name            string          `json:"name"`
	AudioID         string          `json:"audio_id"`
	AudioName       string          `json:"audio_name"`
	TimeType        models.TimeType `json:"time_type"`
	Hour            *int            `json:"hour"`
	Minute          *int            `json:"minute"`
	RelativeMinutes *int            `json:"relative_minutes"`
}

func (p presetRequest) toRequest() scheduler.PresetRequest {
	return scheduler.PresetRequest{
		Name:            p.Name,
		AudioID:         p.AudioID,
		AudioName:       p.AudioName,
		TimeType:        p.TimeType,
		Hour:            p.Hour,
		Minute:          p.Minute,
		RelativeMinutes: p.RelativeMinutes,
	}
}

// createSchedule resolves the audio identifier before handing the request to
// the scheduler, so an unknown file never becomes a pending schedule.
func (a *API) createSchedule(ctx context.Context, req scheduleRequest) (models.AudioSchedule, error) {
	if req.AudioID == "" {
		return models.AudioSchedule{}, fmt.Errorf("%w: audio_id is required", scheduler.ErrInvalidParameters)
	}
	item, err := a.resolve(ctx, media.KindAudio, req.AudioID)
	if err != nil {
		return models.AudioSchedule{}, err
	}
	name := req.AudioName
	if name == "" {
		name = item.DisplayName
	}
	return a.scheduler.Create(ctx, scheduler.CreateRequest{
		AudioID:         req.AudioID,
		AudioName:       name,
		AudioPath:       item.Path,
		TimeType:        req.TimeType,
		AbsoluteTime:    req.AbsoluteTime,
		RelativeMinutes: req.RelativeMinutes,
	})
}

func (a *API) activatePreset(ctx context.Context, id string) (models.AudioSchedule, error) {
	preset, ok := a.scheduler.Preset(id)
	if !ok {
		return models.AudioSchedule{}, fmt.Errorf("%w: preset %s", scheduler.ErrNotFound, id)
	}
	item, err := a.resolve(ctx, media.KindAudio, preset.AudioID)
	if err != nil {
		return models.AudioSchedule{}, err
	}
	return a.scheduler.ActivatePreset(ctx, id, item.Path)
}

func (a *API) handleSchedulesList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"schedules": a.scheduler.Schedules()})
}

func (a *API) handleSchedulesPending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"schedules": a.scheduler.Pending()})
}

func (a *API) handleSchedulesCreate(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	rec, err := a.createSchedule(r.Context(), req)
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) handleSchedulesCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scheduleID")
	if !a.scheduler.Cancel(id) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePresetsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"presets": a.scheduler.Presets()})
}

func (a *API) handlePresetsCreate(w http.ResponseWriter, r *http.Request) {
	var req presetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	preset, err := a.scheduler.CreatePreset(r.Context(), req.toRequest())
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code)
		return
	}
	writeJSON(w, http.StatusCreated, preset)
}

func (a *API) handlePresetsDelete(w http.ResponseWriter, r *http.Request) {
	if !a.scheduler.DeletePreset(r.Context(), chi.URLParam(r, "presetID")) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePresetsActivate(w http.ResponseWriter, r *http.Request) {
	rec, err := a.activatePreset(r.Context(), chi.URLParam(r, "presetID"))
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}
