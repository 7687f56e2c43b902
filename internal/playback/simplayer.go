/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// SimPlayer is a Player that only keeps time. Seeks land after a configurable
// latency, like a real decoder that has to buffer before reporting the new
// position.
type SimPlayer struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	duration    float64
	seekLatency time.Duration

	src      string
	playing  bool
	base     float64
	baseAt   time.Time
	volume   float64
	target   float64
	settleAt time.Time
	seeking  bool
}

// NewSimPlayer returns a simulated player with a fixed media duration
// (zero means unknown).
func NewSimPlayer(clk clockwork.Clock, duration float64, seekLatency time.Duration) *SimPlayer {
	return &SimPlayer{clock: clk, duration: duration, seekLatency: seekLatency, volume: 1}
}

func (p *SimPlayer) Load(src string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.src = src
	p.playing = false
	p.base = 0
	p.seeking = false
	p.baseAt = p.clock.Now()
	return nil
}

func (p *SimPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return nil
	}
	p.base = p.positionLocked()
	p.baseAt = p.clock.Now()
	p.playing = true
	return nil
}

func (p *SimPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return nil
	}
	p.base = p.positionLocked()
	p.baseAt = p.clock.Now()
	p.playing = false
	return nil
}

func (p *SimPlayer) Seek(seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = p.positionLocked()
	p.baseAt = p.clock.Now()
	p.target = seconds
	p.settleAt = p.baseAt.Add(p.seekLatency)
	p.seeking = true
	return nil
}

func (p *SimPlayer) SetVolume(v float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
	return nil
}

// Volume returns the last volume set.
func (p *SimPlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Playing reports the transport state.
func (p *SimPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *SimPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *SimPlayer) Duration() float64 {
	return p.duration
}

func (p *SimPlayer) positionLocked() float64 {
	now := p.clock.Now()
	if p.seeking && !now.Before(p.settleAt) {
		p.seeking = false
		p.base = p.target
		p.baseAt = p.settleAt
	}
	pos := p.base
	if p.playing {
		pos += now.Sub(p.baseAt).Seconds()
	}
	if p.duration > 0 && pos > p.duration {
		pos = p.duration
	}
	return pos
}
