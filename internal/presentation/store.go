/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package presentation

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/lectern/internal/telemetry"
)

// Cause names the operation that produced a snapshot.
type Cause string

const (
	CauseSetMode        Cause = "set_mode"
	CauseGoIdle         Cause = "go_idle"
	CauseIdleSettings   Cause = "idle_settings"
	CauseLoadText       Cause = "load_text"
	CauseLoadBible      Cause = "load_bible_chapter"
	CauseSlide          Cause = "slide"
	CauseLoadVideo      Cause = "load_video"
	CauseVideoTransport Cause = "video_transport"
	CauseVideoSeek      Cause = "video_seek"
	CauseVideoVolume    Cause = "video_volume"
	CauseVideoProgress  Cause = "video_progress"
	CauseLoadAudio      Cause = "load_audio"
	CauseAudioTransport Cause = "audio_transport"
	CauseAudioSeek      Cause = "audio_seek"
	CauseAudioVolume    Cause = "audio_volume"
	CauseAudioProgress  Cause = "audio_progress"
)

// Snapshot is an immutable copy of the display state after one committed
// mutation. Seq increases by one per commit.
type Snapshot struct {
	Seq   uint64       `json:"seq"`
	Cause Cause        `json:"cause"`
	At    time.Time    `json:"at"`
	State DisplayState `json:"state"`
}

// DefaultSubscriberBuffer is the per-subscriber queue length.
const DefaultSubscriberBuffer = 32

// Store owns the DisplayState. All mutations are serialized; subscribers
// receive one snapshot per commit, in commit order.
type Store struct {
	mu     sync.Mutex
	state  DisplayState
	seq    uint64
	now    func() time.Time
	subs   map[int]chan Snapshot
	nextID int
	logger zerolog.Logger
}

// NewStore creates a store in the default idle state using the given idle
// settings.
func NewStore(idle IdleState, logger zerolog.Logger) *Store {
	state := DefaultState()
	state.Idle = idle.normalize()
	return &Store{
		state:  state,
		now:    time.Now,
		subs:   make(map[int]chan Snapshot),
		logger: logger.With().Str("component", "presentation").Logger(),
	}
}

// State returns a copy of the current state.
func (s *Store) State() DisplayState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Snapshot returns the current state with its sequence number.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Seq: s.seq, At: s.now(), State: s.state.Clone()}
}

// Mode returns the current primary mode.
func (s *Store) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Mode
}

// Subscribe registers for snapshots. The returned function unsubscribes and
// closes the channel. When a subscriber falls behind, its oldest queued
// snapshot is discarded so the newest one is always delivered.
func (s *Store) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan Snapshot, buffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// commit applies mutate to a copy of the state. If mutate reports a change,
// the copy becomes the state and a snapshot is delivered to every subscriber
// before the lock is released.
func (s *Store) commit(cause Cause, mutate func(*DisplayState) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	if !mutate(&next) {
		return
	}
	s.state = next
	s.seq++
	at := s.now()
	telemetry.StateCommitsTotal.WithLabelValues(string(cause)).Inc()

	for id, ch := range s.subs {
		snap := Snapshot{Seq: s.seq, Cause: cause, At: at, State: next.Clone()}
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
		s.logger.Debug().Int("subscriber", id).Uint64("seq", s.seq).Msg("subscriber lagging, dropped oldest snapshot")
	}
}

// SetMode switches the primary mode. Unknown modes are ignored.
func (s *Store) SetMode(mode Mode) {
	if !mode.Valid() {
		return
	}
	s.commit(CauseSetMode, func(st *DisplayState) bool {
		st.Mode = mode
		return true
	})
}

// GoIdle shows the idle screen and pauses video, keeping its position.
// Audio is left playing.
func (s *Store) GoIdle() {
	s.commit(CauseGoIdle, func(st *DisplayState) bool {
		st.Mode = ModeIdle
		st.Video.Playing = false
		return true
	})
}

// SetIdleSettings replaces the idle screen configuration.
func (s *Store) SetIdleSettings(idle IdleState) {
	idle = idle.normalize()
	s.commit(CauseIdleSettings, func(st *DisplayState) bool {
		st.Idle = idle
		return true
	})
}

// LoadText splits content into slides and shows the first one. An empty
// title and content yields zero slides, which blanks the text surface.
func (s *Store) LoadText(title, content string, contentType ContentType) {
	if contentType == "" {
		contentType = ContentCustom
	}
	slides := SplitSlides(content)
	s.commit(CauseLoadText, func(st *DisplayState) bool {
		st.Text = TextState{
			Title:        title,
			Slides:       slides,
			CurrentSlide: 0,
			ContentType:  contentType,
		}
		st.Mode = ModeText
		return true
	})
}

// LoadBibleChapter shows pre-split verse slides starting at startIndex.
func (s *Store) LoadBibleChapter(title string, slides []string, startIndex int, ctx BibleContext) {
	copied := append([]string{}, slides...)
	ctx.Verses = append([]int(nil), ctx.Verses...)
	s.commit(CauseLoadBible, func(st *DisplayState) bool {
		st.Text = TextState{
			Title:        title,
			Slides:       copied,
			CurrentSlide: clampIndex(startIndex, len(copied)),
			ContentType:  ContentBible,
			BibleContext: &ctx,
		}
		st.Mode = ModeText
		return true
	})
}

// NextSlide advances one slide; a no-op on the last slide.
func (s *Store) NextSlide() {
	s.commit(CauseSlide, func(st *DisplayState) bool {
		if st.Text.CurrentSlide+1 >= len(st.Text.Slides) {
			return false
		}
		st.Text.CurrentSlide++
		return true
	})
}

// PrevSlide goes back one slide; a no-op on the first slide.
func (s *Store) PrevSlide() {
	s.commit(CauseSlide, func(st *DisplayState) bool {
		if st.Text.CurrentSlide <= 0 {
			return false
		}
		st.Text.CurrentSlide--
		return true
	})
}

// GoToSlide jumps to index. Out-of-range indices are ignored.
func (s *Store) GoToSlide(index int) {
	s.commit(CauseSlide, func(st *DisplayState) bool {
		if index < 0 || index >= len(st.Text.Slides) {
			return false
		}
		st.Text.CurrentSlide = index
		return true
	})
}

// LoadVideo replaces the video with src, stopped at zero, and switches to
// video mode. Volume carries over.
func (s *Store) LoadVideo(src string) {
	s.commit(CauseLoadVideo, func(st *DisplayState) bool {
		st.Video = VideoState{Src: src, Volume: st.Video.Volume}
		st.Mode = ModeVideo
		return true
	})
}

// PlayVideo starts video playback.
func (s *Store) PlayVideo() {
	s.commit(CauseVideoTransport, func(st *DisplayState) bool {
		st.Video.Playing = true
		return true
	})
}

// PauseVideo pauses video playback.
func (s *Store) PauseVideo() {
	s.commit(CauseVideoTransport, func(st *DisplayState) bool {
		st.Video.Playing = false
		return true
	})
}

// StopVideo pauses video and rewinds it.
func (s *Store) StopVideo() {
	s.commit(CauseVideoTransport, func(st *DisplayState) bool {
		st.Video.Playing = false
		st.Video.CurrentTime = 0
		return true
	})
}

// SeekVideo moves the video position on behalf of a remote.
func (s *Store) SeekVideo(seconds float64) {
	if !finite(seconds) {
		return
	}
	s.commit(CauseVideoSeek, func(st *DisplayState) bool {
		st.Video.CurrentTime = clampPosition(seconds, st.Video.Duration)
		return true
	})
}

// SetVolume sets the video volume, clamped to [0,1].
func (s *Store) SetVolume(v float64) {
	if !finite(v) {
		return
	}
	s.commit(CauseVideoVolume, func(st *DisplayState) bool {
		st.Video.Volume = clampUnit(v)
		return true
	})
}

// UpdateVideoTime records progress reported by the rendering surface.
func (s *Store) UpdateVideoTime(seconds, duration float64) {
	if !finite(seconds) || !finite(duration) {
		return
	}
	s.commit(CauseVideoProgress, func(st *DisplayState) bool {
		st.Video.CurrentTime = math.Max(0, seconds)
		st.Video.Duration = math.Max(0, duration)
		return true
	})
}

// LoadAudio replaces the audio with src, stopped at zero. The mode is left
// unchanged. Volume carries over.
func (s *Store) LoadAudio(src, name string) {
	s.commit(CauseLoadAudio, func(st *DisplayState) bool {
		st.Audio = AudioState{Src: src, Name: name, Volume: st.Audio.Volume}
		return true
	})
}

// PlayAudio starts audio playback.
func (s *Store) PlayAudio() {
	s.commit(CauseAudioTransport, func(st *DisplayState) bool {
		st.Audio.Playing = true
		return true
	})
}

// PauseAudio pauses audio playback.
func (s *Store) PauseAudio() {
	s.commit(CauseAudioTransport, func(st *DisplayState) bool {
		st.Audio.Playing = false
		return true
	})
}

// StopAudio pauses audio and rewinds it.
func (s *Store) StopAudio() {
	s.commit(CauseAudioTransport, func(st *DisplayState) bool {
		st.Audio.Playing = false
		st.Audio.CurrentTime = 0
		return true
	})
}

// SeekAudio moves the audio position on behalf of a remote.
func (s *Store) SeekAudio(seconds float64) {
	if !finite(seconds) {
		return
	}
	s.commit(CauseAudioSeek, func(st *DisplayState) bool {
		st.Audio.CurrentTime = clampPosition(seconds, st.Audio.Duration)
		return true
	})
}

// SetAudioVolume sets the audio volume, clamped to [0,1].
func (s *Store) SetAudioVolume(v float64) {
	if !finite(v) {
		return
	}
	s.commit(CauseAudioVolume, func(st *DisplayState) bool {
		st.Audio.Volume = clampUnit(v)
		return true
	})
}

// UpdateAudioTime records progress reported by the rendering surface.
func (s *Store) UpdateAudioTime(seconds, duration float64) {
	if !finite(seconds) || !finite(duration) {
		return
	}
	s.commit(CauseAudioProgress, func(st *DisplayState) bool {
		st.Audio.CurrentTime = math.Max(0, seconds)
		st.Audio.Duration = math.Max(0, duration)
		return true
	})
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clampUnit(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// clampPosition keeps a seek inside the media when its duration is known.
func clampPosition(seconds, duration float64) float64 {
	if seconds < 0 {
		return 0
	}
	if duration > 0 && seconds > duration {
		return duration
	}
	return seconds
}

func clampIndex(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
