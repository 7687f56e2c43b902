/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/lectern/internal/auth"
	"github.com/friendsincode/lectern/internal/events"
	"github.com/friendsincode/lectern/internal/logbuffer"
	"github.com/friendsincode/lectern/internal/media"
	"github.com/friendsincode/lectern/internal/presentation"
	"github.com/friendsincode/lectern/internal/scheduler"
)

// API exposes the controller over HTTP and the events websocket.
type API struct {
	store     *presentation.Store
	scheduler *scheduler.Service
	media     media.Resolver
	bus       *events.Bus
	logBuffer *logbuffer.Buffer
	logger    zerolog.Logger

	keys       *auth.KeyVerifier
	jwtSecret  []byte
	sessionTTL time.Duration

	commands map[string]commandFunc
}

// New creates the API router wrapper.
func New(store *presentation.Store, sched *scheduler.Service, resolver media.Resolver, bus *events.Bus, logBuf *logbuffer.Buffer, logger zerolog.Logger) *API {
	a := &API{
		store:      store,
		scheduler:  sched,
		media:      resolver,
		bus:        bus,
		logBuffer:  logBuf,
		logger:     logger.With().Str("component", "api").Logger(),
		sessionTTL: 12 * time.Hour,
	}
	a.commands = a.commandTable()
	return a
}

// SetSessions enables POST /session. keys may be disabled, in which case any
// caller receives a token.
func (a *API) SetSessions(keys *auth.KeyVerifier, jwtSecret []byte, ttl time.Duration) {
	a.keys = keys
	a.jwtSecret = jwtSecret
	if ttl > 0 {
		a.sessionTTL = ttl
	}
}

// Routes mounts every endpoint under /api/v1.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Post("/session", a.handleSession)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.keys, a.jwtSecret))

			pr.Get("/state", a.handleState)
			pr.Post("/display/{action}", a.handleDisplayCommand)
			pr.Get("/events", a.handleEvents)

			pr.Route("/schedules", func(r chi.Router) {
				r.Get("/", a.handleSchedulesList)
				r.Post("/", a.handleSchedulesCreate)
				r.Get("/pending", a.handleSchedulesPending)
				r.Delete("/{scheduleID}", a.handleSchedulesCancel)
			})

			pr.Route("/presets", func(r chi.Router) {
				r.Get("/", a.handlePresetsList)
				r.Post("/", a.handlePresetsCreate)
				r.Delete("/{presetID}", a.handlePresetsDelete)
				r.Post("/{presetID}/activate", a.handlePresetsActivate)
			})

			pr.Get("/media/{kind}", a.handleMediaList)

			pr.Route("/logs", func(r chi.Router) {
				r.Get("/", a.handleLogs)
				r.Get("/stats", a.handleLogStats)
				r.Delete("/", a.handleClearLogs)
			})
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.store.Snapshot())
}

type sessionRequest struct {
	Key      string `json:"key"`
	ClientID string `json:"client_id"`
	Role     string `json:"role"`
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if len(a.jwtSecret) == 0 {
		writeError(w, http.StatusServiceUnavailable, "sessions_disabled")
		return
	}

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if a.keys.Enabled() {
		if err := a.keys.Verify(req.Key); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}

	role := req.Role
	switch role {
	case "":
		role = auth.RoleController
	case auth.RoleController, auth.RoleSurface:
	default:
		writeError(w, http.StatusBadRequest, "invalid_role")
		return
	}
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = role
	}

	token, err := auth.Issue(a.jwtSecret, auth.Claims{ClientID: clientID, Role: role}, a.sessionTTL)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to issue session token")
		writeError(w, http.StatusInternalServerError, "token_failed")
		return
	}

	a.logger.Info().Str("client", clientID).Str("role", role).Msg("session issued")
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(a.sessionTTL.Seconds()),
	})
}

func (a *API) handleMediaList(w http.ResponseWriter, r *http.Request) {
	kind := media.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_kind")
		return
	}
	if a.media == nil {
		writeError(w, http.StatusServiceUnavailable, "media_unavailable")
		return
	}
	items, err := a.media.List(r.Context(), kind)
	if err != nil {
		a.logger.Warn().Err(err).Str("kind", string(kind)).Msg("media list failed")
		writeError(w, http.StatusInternalServerError, "media_list_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}

	q := logbuffer.Query{
		Level:      r.URL.Query().Get("level"),
		Component:  r.URL.Query().Get("component"),
		Search:     r.URL.Query().Get("search"),
		Descending: r.URL.Query().Get("order") != "asc",
		Limit:      200,
	}
	if since := r.URL.Query().Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			q.Since = t
		}
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			q.Limit = n
		}
	}

	entries := a.logBuffer.Find(q)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (a *API) handleLogStats(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, a.logBuffer.Stats())
}

func (a *API) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}
	a.logBuffer.Clear()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// statusFor maps command errors onto HTTP status codes and error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errUnknownAction):
		return http.StatusBadRequest, "unknown_action"
	case errors.Is(err, errInvalidPayload):
		return http.StatusBadRequest, "invalid_payload"
	case errors.Is(err, scheduler.ErrInvalidParameters):
		return http.StatusBadRequest, "invalid_parameters"
	case errors.Is(err, media.ErrNotFound):
		return http.StatusNotFound, "media_not_found"
	case errors.Is(err, scheduler.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
