/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/lectern/internal/auth"
	"github.com/friendsincode/lectern/internal/presentation"
)

// SurfaceConfig configures a headless rendering surface.
type SurfaceConfig struct {
	URL            string // events websocket, e.g. ws://host:8080/api/v1/events
	RemoteKey      string
	ReportInterval time.Duration
}

// Surface follows the display state over the events websocket, drives a
// video and an audio player, and reports their progress back.
type Surface struct {
	cfg     SurfaceConfig
	video   *Follower
	audio   *Follower
	logger  zerolog.Logger
	lastSeq uint64
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type command struct {
	Action string `json:"action"`
	Data   any    `json:"data,omitempty"`
}

type timeReport struct {
	Time     float64 `json:"time"`
	Duration float64 `json:"duration"`
}

// NewSurface creates a surface bound to two players.
func NewSurface(cfg SurfaceConfig, video, audio Player, logger zerolog.Logger) *Surface {
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = time.Second
	}
	logger = logger.With().Str("component", "surface").Logger()
	return &Surface{
		cfg:    cfg,
		video:  NewFollower(ChannelVideo, video, logger),
		audio:  NewFollower(ChannelAudio, audio, logger),
		logger: logger,
	}
}

// Run connects and follows state until ctx is cancelled or the connection
// drops.
func (s *Surface) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	header := http.Header{}
	if s.cfg.RemoteKey != "" {
		header.Set(auth.HeaderRemoteKey, s.cfg.RemoteKey)
	}
	conn, _, err := ws.Dial(ctx, s.cfg.URL, &ws.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	defer conn.Close(ws.StatusInternalError, "surface error")
	conn.SetReadLimit(4 << 20)

	s.logger.Info().Str("url", s.cfg.URL).Msg("surface connected")

	messages := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case messages <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "surface stopped")
			return nil
		case err := <-readErr:
			if ws.CloseStatus(err) == ws.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		case data := <-messages:
			if err := s.handleMessage(data); err != nil {
				s.logger.Warn().Err(err).Msg("failed to apply message")
			}
		case <-ticker.C:
			for _, f := range []*Follower{s.video, s.audio} {
				p, ok := f.Report()
				if !ok {
					continue
				}
				if err := s.send(ctx, conn, p); err != nil {
					return fmt.Errorf("report progress: %w", err)
				}
			}
		}
	}
}

func (s *Surface) handleMessage(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type != "display.state" {
		return nil
	}
	var snap presentation.Snapshot
	if err := json.Unmarshal(env.Payload, &snap); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	return s.ApplySnapshot(snap)
}

// ApplySnapshot applies a state snapshot, ignoring ones older than the last
// applied.
func (s *Surface) ApplySnapshot(snap presentation.Snapshot) error {
	if snap.Seq != 0 && snap.Seq <= s.lastSeq {
		return nil
	}
	s.lastSeq = snap.Seq
	st := snap.State

	videoErr := s.video.Apply(Media{
		Src:         st.Video.Src,
		Playing:     st.Video.Playing && st.Mode == presentation.ModeVideo,
		CurrentTime: st.Video.CurrentTime,
		Volume:      st.Video.Volume,
	})
	audioErr := s.audio.Apply(Media{
		Src:         st.Audio.Src,
		Playing:     st.Audio.Playing,
		CurrentTime: st.Audio.CurrentTime,
		Volume:      st.Audio.Volume,
	})
	return errors.Join(videoErr, audioErr)
}

func (s *Surface) send(ctx context.Context, conn *ws.Conn, p Progress) error {
	data, err := json.Marshal(command{
		Action: string(p.Channel) + ".time",
		Data:   timeReport{Time: p.Time, Duration: p.Duration},
	})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, ws.MessageText, data)
}
