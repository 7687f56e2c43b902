/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/lectern/internal/media"
	"github.com/friendsincode/lectern/internal/presentation"
	"github.com/friendsincode/lectern/internal/scheduler"
	"github.com/friendsincode/lectern/internal/telemetry"
)

var (
	errUnknownAction  = errors.New("unknown action")
	errInvalidPayload = errors.New("invalid payload")
)

// Command is one remote control instruction, as sent over the websocket or
// posted to /display/{action}.
type Command struct {
	ID     string          `json:"id,omitempty"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// commandFunc executes a command and returns the value echoed to the caller.
type commandFunc func(ctx context.Context, data json.RawMessage) (any, error)

type modeData struct {
	Mode presentation.Mode `json:"mode"`
}

type textData struct {
	Title       string                   `json:"title"`
	Content     string                   `json:"content"`
	ContentType presentation.ContentType `json:"content_type"`
}

type bibleData struct {
	Title      string                    `json:"title"`
	Slides     []string                  `json:"slides"`
	StartIndex int                       `json:"start_index"`
	Context    presentation.BibleContext `json:"context"`
}

type slideData struct {
	Index *int `json:"index"`
}

type loadData struct {
	MediaID string `json:"media_id"`
	Src     string `json:"src"`
	Name    string `json:"name"`
}

type seekData struct {
	Time *float64 `json:"time"`
}

type volumeData struct {
	Volume *float64 `json:"volume"`
}

type progressData struct {
	Time     float64 `json:"time"`
	Duration float64 `json:"duration"`
}

type idData struct {
	ID string `json:"id"`
}

func (a *API) commandTable() map[string]commandFunc {
	s := a.store
	simple := func(fn func()) commandFunc {
		return func(context.Context, json.RawMessage) (any, error) {
			fn()
			return nil, nil
		}
	}

	return map[string]commandFunc{
		"mode.set": func(_ context.Context, raw json.RawMessage) (any, error) {
			d, err := decode[modeData](raw)
			if err != nil {
				return nil, err
			}
			if !d.Mode.Valid() {
				return nil, fmt.Errorf("%w: unknown mode %q", errInvalidPayload, d.Mode)
			}
			s.SetMode(d.Mode)
			return nil, nil
		},
		"display.idle": simple(s.GoIdle),
		"idle.settings": func(_ context.Context, raw json.RawMessage) (any, error) {
			d, err := decode[presentation.IdleState](raw)
			if err != nil {
				return nil, err
			}
			s.SetIdleSettings(d)
			return nil, nil
		},
		"text.load": func(_ context.Context, raw json.RawMessage) (any, error) {
			d, err := decode[textData](raw)
			if err != nil {
				return nil, err
			}
			s.LoadText(d.Title, d.Content, d.ContentType)
			return nil, nil
		},
		"bible.load": func(_ context.Context, raw json.RawMessage) (any, error) {
			d, err := decode[bibleData](raw)
			if err != nil {
				return nil, err
			}
			s.LoadBibleChapter(d.Title, d.Slides, d.StartIndex, d.Context)
			return nil, nil
		},
		"slide.next": simple(s.NextSlide),
		"slide.prev": simple(s.PrevSlide),
		"slide.goto": func(_ context.Context, raw json.RawMessage) (any, error) {
			d, err := decode[slideData](raw)
			if err != nil {
				return nil, err
			}
			if d.Index == nil {
				return nil, fmt.Errorf("%w: index is required", errInvalidPayload)
			}
			s.GoToSlide(*d.Index)
			return nil, nil
		},

		"video.load": func(ctx context.Context, raw json.RawMessage) (any, error) {
			src, _, err := a.resolveLoad(ctx, media.KindVideo, raw)
			if err != nil {
				return nil, err
			}
			s.LoadVideo(src)
			return nil, nil
		},
		"video.play":   simple(s.PlayVideo),
		"video.pause":  simple(s.PauseVideo),
		"video.stop":   simple(s.StopVideo),
		"video.seek":   seek(s.SeekVideo),
		"video.volume": volume(s.SetVolume),
		"video.time":   progress(s.UpdateVideoTime),

		"audio.load": func(ctx context.Context, raw json.RawMessage) (any, error) {
			src, name, err := a.resolveLoad(ctx, media.KindAudio, raw)
			if err != nil {
				return nil, err
			}
			s.LoadAudio(src, name)
			return nil, nil
		},
		"audio.play":   simple(s.PlayAudio),
		"audio.pause":  simple(s.PauseAudio),
		"audio.stop":   simple(s.StopAudio),
		"audio.seek":   seek(s.SeekAudio),
		"audio.volume": volume(s.SetAudioVolume),
		"audio.time":   progress(s.UpdateAudioTime),

		"schedule.create": func(ctx context.Context, raw json.RawMessage) (any, error) {
			d, err := decode[scheduleRequest](raw)
			if err != nil {
				return nil, err
			}
			return a.createSchedule(ctx, d)
		},
		"schedule.cancel": func(_ context.Context, raw json.RawMessage) (any, error) {
			d, err := decode[idData](raw)
			if err != nil {
				return nil, err
			}
			if !a.scheduler.Cancel(d.ID) {
				return nil, fmt.Errorf("%w: schedule %s", scheduler.ErrNotFound, d.ID)
			}
			return nil, nil
		},
		"preset.create": func(ctx context.Context, raw json.RawMessage) (any, error) {
			d, err := decode[presetRequest](raw)
			if err != nil {
				return nil, err
			}
			return a.scheduler.CreatePreset(ctx, d.toRequest())
		},
		"preset.delete": func(ctx context.Context, raw json.RawMessage) (any, error) {
			d, err := decode[idData](raw)
			if err != nil {
				return nil, err
			}
			if !a.scheduler.DeletePreset(ctx, d.ID) {
				return nil, fmt.Errorf("%w: preset %s", scheduler.ErrNotFound, d.ID)
			}
			return nil, nil
		},
		"preset.activate": func(ctx context.Context, raw json.RawMessage) (any, error) {
			d, err := decode[idData](raw)
			if err != nil {
				return nil, err
			}
			return a.activatePreset(ctx, d.ID)
		},
	}
}

func seek(fn func(float64)) commandFunc {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		d, err := decode[seekData](raw)
		if err != nil {
			return nil, err
		}
		if d.Time == nil {
			return nil, fmt.Errorf("%w: time is required", errInvalidPayload)
		}
		fn(*d.Time)
		return nil, nil
	}
}

func volume(fn func(float64)) commandFunc {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		d, err := decode[volumeData](raw)
		if err != nil {
			return nil, err
		}
		if d.Volume == nil {
			return nil, fmt.Errorf("%w: volume is required", errInvalidPayload)
		}
		fn(*d.Volume)
		return nil, nil
	}
}

func progress(fn func(seconds, duration float64)) commandFunc {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		d, err := decode[progressData](raw)
		if err != nil {
			return nil, err
		}
		fn(d.Time, d.Duration)
		return nil, nil
	}
}

// Execute runs one command. Unknown actions and malformed payloads leave the
// state untouched.
func (a *API) Execute(ctx context.Context, action string, data json.RawMessage) (any, error) {
	fn, ok := a.commands[action]
	if !ok {
		telemetry.DisplayCommandsTotal.WithLabelValues("unknown", "error").Inc()
		return nil, fmt.Errorf("%w: %q", errUnknownAction, action)
	}

	ctx, span := telemetry.StartSpan(ctx, "api", "command."+action)
	defer span.End()

	result, err := fn(ctx, data)
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.DisplayCommandsTotal.WithLabelValues(action, "error").Inc()
		return nil, err
	}
	telemetry.DisplayCommandsTotal.WithLabelValues(action, "ok").Inc()
	return result, nil
}

// resolveLoad turns a load payload into a playable source. A media_id goes
// through the resolver; a bare src is used as given.
func (a *API) resolveLoad(ctx context.Context, kind media.Kind, raw json.RawMessage) (string, string, error) {
	d, err := decode[loadData](raw)
	if err != nil {
		return "", "", err
	}
	if d.MediaID == "" {
		src := strings.TrimSpace(d.Src)
		if src == "" {
			return "", "", fmt.Errorf("%w: media_id or src is required", errInvalidPayload)
		}
		return src, d.Name, nil
	}

	item, err := a.resolve(ctx, kind, d.MediaID)
	if err != nil {
		return "", "", err
	}
	name := d.Name
	if name == "" {
		name = item.DisplayName
	}
	return item.Path, name, nil
}

func (a *API) resolve(ctx context.Context, kind media.Kind, id string) (media.Item, error) {
	if a.media == nil {
		return media.Item{}, fmt.Errorf("%w: no media library configured", media.ErrNotFound)
	}
	item, err := a.media.Resolve(ctx, kind, id)
	if err != nil {
		a.logger.Warn().Err(err).Str("kind", string(kind)).Str("media_id", id).Msg("media resolve failed")
		if !errors.Is(err, media.ErrNotFound) {
			err = fmt.Errorf("%w: %v", media.ErrNotFound, err)
		}
		return media.Item{}, err
	}
	return item, nil
}

func (a *API) handleDisplayCommand(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")

	var data json.RawMessage
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
	}

	result, err := a.Execute(r.Context(), action, data)
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code)
		return
	}
	if result != nil {
		writeJSON(w, http.StatusOK, result)
		return
	}
	writeJSON(w, http.StatusOK, a.store.Snapshot())
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	return v, nil
}
