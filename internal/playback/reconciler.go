/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playback keeps a rendering surface's native player in step with
// the shared display state without the surface's own progress reports and
// remote seeks fighting each other.
package playback

import (
	"math"
	"sync"
)

// SeekThreshold is the drift, in seconds, tolerated between the stated
// position and the native player before a native seek is issued.
const SeekThreshold = 1.0

// maxSuppressedReports bounds how long reports stay muted while a seek has
// not settled, so a player that cannot reach the target still reports.
const maxSuppressedReports = 5

// Player is the native media player driven by a surface. Load leaves the
// player paused at zero.
type Player interface {
	Load(src string) error
	Play() error
	Pause() error
	Seek(seconds float64) error
	SetVolume(v float64) error
	Position() float64
	Duration() float64
}

// Reconciler merges stated positions into a native player.
//
// Reconcile is called with every position arriving from shared state; it only
// seeks when the drift exceeds SeekThreshold. The value it seeks to is
// remembered, and Report suppresses the surface's own progress reports until
// the native player has caught up with that value, so a stale report cannot
// undo the seek that is still in flight.
type Reconciler struct {
	mu         sync.Mutex
	threshold  float64
	lastSeek   float64
	inFlight   bool
	suppressed int
}

// NewReconciler returns a reconciler using SeekThreshold.
func NewReconciler() *Reconciler {
	return &Reconciler{threshold: SeekThreshold}
}

// Reconcile seeks p to stated when it has drifted by more than the threshold.
// It reports whether a native seek was issued.
func (r *Reconciler) Reconcile(stated float64, p Player) (bool, error) {
	if math.IsNaN(stated) || math.IsInf(stated, 0) {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight && stated == r.lastSeek {
		return false, nil
	}
	if math.Abs(p.Position()-stated) <= r.threshold {
		return false, nil
	}
	if err := p.Seek(stated); err != nil {
		return false, err
	}
	r.lastSeek = stated
	r.inFlight = true
	r.suppressed = 0
	return true, nil
}

// Report decides whether the native position should be published as
// progress. It returns false while a seek is still settling.
func (r *Reconciler) Report(native float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.inFlight {
		return true
	}
	if math.Abs(native-r.lastSeek) <= r.threshold || r.suppressed >= maxSuppressedReports {
		r.inFlight = false
		r.suppressed = 0
		return true
	}
	r.suppressed++
	return false
}

// Reset forgets any in-flight seek, used when new media is loaded.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight = false
	r.suppressed = 0
	r.lastSeek = 0
}

// LastSeek returns the last position deliberately seeked to.
func (r *Reconciler) LastSeek() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeek, r.inFlight
}
