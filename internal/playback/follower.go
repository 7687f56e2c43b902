/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Channel identifies which media sub-state a follower mirrors.
type Channel string

const (
	ChannelVideo Channel = "video"
	ChannelAudio Channel = "audio"
)

// Media is the slice of display state a follower acts on.
type Media struct {
	Src         string
	Playing     bool
	CurrentTime float64
	Volume      float64
}

// Progress is a position report bound for the store.
type Progress struct {
	Channel  Channel
	Time     float64
	Duration float64
}

// Follower applies one channel of display state to a Player.
type Follower struct {
	channel    Channel
	player     Player
	reconciler *Reconciler
	logger     zerolog.Logger

	src     string
	playing bool
	volume  float64
}

// NewFollower wires a player to a channel.
func NewFollower(channel Channel, player Player, logger zerolog.Logger) *Follower {
	return &Follower{
		channel:    channel,
		player:     player,
		reconciler: NewReconciler(),
		logger:     logger.With().Str("component", "follower").Str("channel", string(channel)).Logger(),
		volume:     -1,
	}
}

// Apply brings the player in line with m.
func (f *Follower) Apply(m Media) error {
	if m.Src != f.src {
		f.reconciler.Reset()
		f.src = m.Src
		f.playing = false
		if m.Src == "" {
			if err := f.player.Pause(); err != nil {
				return fmt.Errorf("pause %s: %w", f.channel, err)
			}
			return nil
		}
		if err := f.player.Load(m.Src); err != nil {
			return fmt.Errorf("load %s: %w", f.channel, err)
		}
		f.logger.Info().Str("src", m.Src).Msg("media loaded")
	}
	if f.src == "" {
		return nil
	}

	if m.Volume != f.volume {
		if err := f.player.SetVolume(m.Volume); err != nil {
			return fmt.Errorf("volume %s: %w", f.channel, err)
		}
		f.volume = m.Volume
	}

	seeked, err := f.reconciler.Reconcile(m.CurrentTime, f.player)
	if err != nil {
		return fmt.Errorf("seek %s: %w", f.channel, err)
	}
	if seeked {
		f.logger.Debug().Float64("position", m.CurrentTime).Msg("native seek")
	}

	if m.Playing != f.playing {
		if m.Playing {
			err = f.player.Play()
		} else {
			err = f.player.Pause()
		}
		if err != nil {
			return fmt.Errorf("transport %s: %w", f.channel, err)
		}
		f.playing = m.Playing
	}
	return nil
}

// Report returns the progress to publish, or false when nothing is loaded,
// the player is paused, or a seek is still settling.
func (f *Follower) Report() (Progress, bool) {
	if f.src == "" || !f.playing {
		return Progress{}, false
	}
	pos := f.player.Position()
	if !f.reconciler.Report(pos) {
		return Progress{}, false
	}
	return Progress{Channel: f.channel, Time: pos, Duration: f.player.Duration()}, true
}
