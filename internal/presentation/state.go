/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package presentation holds the authoritative display state: which surface
// is live (idle clock, text slides, video) and the independent audio channel.
package presentation

// Mode enumerates the primary presentation surfaces. Audio is not a mode; it
// plays alongside any of them.
type Mode string

const (
	ModeIdle  Mode = "idle"
	ModeText  Mode = "text"
	ModeVideo Mode = "video"
)

// Valid reports whether m is a known primary mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeIdle, ModeText, ModeVideo:
		return true
	}
	return false
}

// Position places an overlay on the idle screen.
type Position string

const (
	PositionTopLeft     Position = "top-left"
	PositionTopRight    Position = "top-right"
	PositionCenter      Position = "center"
	PositionBottomLeft  Position = "bottom-left"
	PositionBottomRight Position = "bottom-right"
)

// Valid reports whether p is one of the five overlay positions.
func (p Position) Valid() bool {
	switch p {
	case PositionTopLeft, PositionTopRight, PositionCenter, PositionBottomLeft, PositionBottomRight:
		return true
	}
	return false
}

// ContentType tags where text slides came from.
type ContentType string

const (
	ContentHymn   ContentType = "hymn"
	ContentBible  ContentType = "bible"
	ContentCustom ContentType = "custom"
)

// Clock font size bounds, in percent of the default size.
const (
	MinClockFontSize     = 10
	MaxClockFontSize     = 400
	DefaultClockFontSize = 100
)

// IdleState configures the idle (clock) screen.
type IdleState struct {
	Wallpaper           string   `json:"wallpaper,omitempty"`
	ShowClock           bool     `json:"show_clock"`
	ClockFontSize       int      `json:"clock_font_size"`
	ClockPosition       Position `json:"clock_position"`
	AudioWidgetPosition Position `json:"audio_widget_position"`
}

// BibleContext lets remotes navigate a loaded chapter verse by verse.
// Verses[i] is the verse number shown on slide i.
type BibleContext struct {
	BookID   int    `json:"book_id"`
	BookName string `json:"book_name"`
	Chapter  int    `json:"chapter"`
	Verses   []int  `json:"verses"`
}

// TextState is the paginated text sub-state.
type TextState struct {
	Title        string        `json:"title"`
	Slides       []string      `json:"slides"`
	CurrentSlide int           `json:"current_slide"`
	ContentType  ContentType   `json:"content_type"`
	BibleContext *BibleContext `json:"bible_context,omitempty"`
}

// VideoState is the video sub-state. Times are in seconds.
type VideoState struct {
	Src         string  `json:"src"`
	Playing     bool    `json:"playing"`
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
	Volume      float64 `json:"volume"`
}

// AudioState is the background audio sub-state. Times are in seconds.
type AudioState struct {
	Src         string  `json:"src"`
	Name        string  `json:"name"`
	Playing     bool    `json:"playing"`
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
	Volume      float64 `json:"volume"`
}

// DisplayState is a complete snapshot of what the display shows.
type DisplayState struct {
	Mode  Mode       `json:"mode"`
	Idle  IdleState  `json:"idle"`
	Text  TextState  `json:"text"`
	Video VideoState `json:"video"`
	Audio AudioState `json:"audio"`
}

// DefaultIdle returns the idle settings used when none are configured.
func DefaultIdle() IdleState {
	return IdleState{
		ShowClock:           true,
		ClockFontSize:       DefaultClockFontSize,
		ClockPosition:       PositionCenter,
		AudioWidgetPosition: PositionBottomRight,
	}
}

// DefaultState returns the state of a freshly started display.
func DefaultState() DisplayState {
	return DisplayState{
		Mode:  ModeIdle,
		Idle:  DefaultIdle(),
		Text:  TextState{Slides: []string{}, ContentType: ContentCustom},
		Video: VideoState{Volume: 1},
		Audio: AudioState{Volume: 1},
	}
}

// Clone returns a deep copy; the result shares no memory with s.
func (s DisplayState) Clone() DisplayState {
	out := s
	out.Text.Slides = append([]string{}, s.Text.Slides...)
	if s.Text.BibleContext != nil {
		bc := *s.Text.BibleContext
		bc.Verses = append([]int(nil), s.Text.BibleContext.Verses...)
		out.Text.BibleContext = &bc
	}
	return out
}

// normalize fills unset or invalid idle fields with defaults.
func (i IdleState) normalize() IdleState {
	def := DefaultIdle()
	if i.ClockFontSize == 0 {
		i.ClockFontSize = def.ClockFontSize
	}
	if i.ClockFontSize < MinClockFontSize {
		i.ClockFontSize = MinClockFontSize
	}
	if i.ClockFontSize > MaxClockFontSize {
		i.ClockFontSize = MaxClockFontSize
	}
	if !i.ClockPosition.Valid() {
		i.ClockPosition = def.ClockPosition
	}
	if !i.AudioWidgetPosition.Valid() {
		i.AudioWidgetPosition = def.AudioWidgetPosition
	}
	return i
}
