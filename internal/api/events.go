/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/lectern/internal/auth"
	"github.com/friendsincode/lectern/internal/events"
	"github.com/friendsincode/lectern/internal/presentation"
	"github.com/friendsincode/lectern/internal/telemetry"
)

const (
	pingInterval = 15 * time.Second
	writeTimeout = 5 * time.Second

	// lifecycleBuffer is larger than the list buffers: a missed list update is
	// repaired by the next one, a missed lifecycle event is not.
	lifecycleBuffer = 256
)

// Bus events relayed to websocket clients. Display state is not among them:
// each connection reads the store directly so it never misses the newest
// snapshot.
var relayedEvents = []events.EventType{
	events.EventSettings,
	events.EventSchedules,
	events.EventPresets,
	events.EventScheduleLifecycle,
}

func relayBuffer(eventType events.EventType) int {
	if eventType == events.EventScheduleLifecycle {
		return lifecycleBuffer
	}
	return events.DefaultBuffer
}

type busEvent struct {
	Type    events.EventType
	Payload events.Payload
}

type commandReply struct {
	ID     string `json:"id,omitempty"`
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")
	conn.SetReadLimit(1 << 20)

	telemetry.WebsocketConnections.Inc()
	defer telemetry.WebsocketConnections.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := "anonymous"
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims != nil {
		client = claims.ClientID
	}
	logger := a.logger.With().Str("client", client).Logger()

	states, unsubscribe := a.store.Subscribe(presentation.DefaultSubscriberBuffer)
	defer unsubscribe()

	relayed := make(chan busEvent, 32)
	var lifecycle events.Subscriber
	for _, eventType := range relayedEvents {
		sub := a.bus.SubscribeBuffered(eventType, relayBuffer(eventType))
		defer a.bus.Unsubscribe(eventType, sub)
		if eventType == events.EventScheduleLifecycle {
			lifecycle = sub
		}
		go func(eventType events.EventType, sub events.Subscriber) {
			for payload := range sub {
				select {
				case relayed <- busEvent{Type: eventType, Payload: payload}:
				case <-ctx.Done():
					return
				}
			}
		}(eventType, sub)
	}

	snap := a.store.Snapshot()
	initial := []struct {
		eventType events.EventType
		payload   any
	}{
		{events.EventDisplayState, snap},
		{events.EventSettings, events.Payload{"idle": snap.State.Idle}},
		{events.EventSchedules, events.Payload{"schedules": a.scheduler.Schedules()}},
		{events.EventPresets, events.Payload{"presets": a.scheduler.Presets()}},
	}
	for _, msg := range initial {
		if err := a.writeEvent(ctx, conn, string(msg.eventType), msg.payload); err != nil {
			logger.Debug().Err(err).Msg("websocket initial write failed")
			return
		}
	}

	commands := make(chan Command, 8)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			var cmd Command
			if err := json.Unmarshal(data, &cmd); err != nil {
				logger.Debug().Err(err).Msg("ignoring malformed command")
				continue
			}
			select {
			case commands <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()

	var reported uint64
	reportMissed := func() {
		if missed := a.bus.Missed(lifecycle); missed > reported {
			logger.Warn().Uint64("missed", missed-reported).Msg("websocket client fell behind, schedule lifecycle events dropped")
			reported = missed
		}
	}

	logger.Info().Msg("websocket client connected")
	defer logger.Info().Msg("websocket client disconnected")
	defer reportMissed()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case rerr := <-readErr:
			switch ws.CloseStatus(rerr) {
			case ws.StatusNormalClosure, ws.StatusGoingAway:
				conn.Close(ws.StatusNormalClosure, "")
			default:
				logger.Debug().Err(rerr).Msg("websocket read ended")
			}
			return
		case snap, ok := <-states:
			if !ok {
				return
			}
			err = a.writeEvent(ctx, conn, string(events.EventDisplayState), snap)
		case ev := <-relayed:
			err = a.writeEvent(ctx, conn, string(ev.Type), ev.Payload)
			if ev.Type == events.EventScheduleLifecycle {
				reportMissed()
			}
		case cmd := <-commands:
			err = a.writeEvent(ctx, conn, "reply", a.runCommand(ctx, cmd))
		case <-ticker.C:
			reportMissed()
			err = a.writeEvent(ctx, conn, "ping", nil)
		}
		if err != nil {
			logger.Debug().Err(err).Msg("websocket write failed")
			conn.Close(ws.StatusInternalError, "write failed")
			return
		}
	}
}

func (a *API) runCommand(ctx context.Context, cmd Command) commandReply {
	reply := commandReply{ID: cmd.ID, Action: cmd.Action}
	result, err := a.Execute(ctx, cmd.Action, cmd.Data)
	if err != nil {
		_, reply.Error = statusFor(err)
		return reply
	}
	reply.OK = true
	reply.Result = result
	return reply
}

func (a *API) writeEvent(ctx context.Context, conn *ws.Conn, eventType string, payload any) error {
	data, err := json.Marshal(map[string]any{
		"type":    eventType,
		"payload": payload,
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, ws.MessageText, data)
}
