/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// EventDisplayState carries a full display state snapshot after every
	// mutation.
	EventDisplayState EventType = "display.state"
	// EventSettings carries the idle settings whenever they change.
	EventSettings EventType = "display.settings"

	EventSchedules         EventType = "schedules.updated"
	EventPresets           EventType = "presets.updated"
	EventScheduleLifecycle EventType = "schedule.lifecycle"
)

// All lists every event type, in a stable order.
var All = []EventType{
	EventDisplayState,
	EventSettings,
	EventSchedules,
	EventPresets,
	EventScheduleLifecycle,
}

// DefaultBuffer is the channel capacity handed out by Subscribe.
const DefaultBuffer = 16

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub. Publishing never blocks; a
// subscriber whose buffer is full misses the payload.
type Bus struct {
	mu      sync.RWMutex
	subs    map[EventType][]Subscriber
	dropped map[EventType]uint64
	missed  map[Subscriber]uint64
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		subs:    make(map[EventType][]Subscriber),
		dropped: make(map[EventType]uint64),
		missed:  make(map[Subscriber]uint64),
	}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	return b.SubscribeBuffered(eventType, DefaultBuffer)
}

// SubscribeBuffered registers a subscriber with a custom buffer size.
func (b *Bus) SubscribeBuffered(eventType EventType, size int) Subscriber {
	if size < 1 {
		size = 1
	}
	ch := make(Subscriber, size)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.missed[ch] = 0
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send.
	b.mu.RLock()
	var full []Subscriber
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
			full = append(full, sub)
		}
	}
	b.mu.RUnlock()
	if len(full) == 0 {
		return
	}
	b.mu.Lock()
	b.dropped[eventType] += uint64(len(full))
	for _, sub := range full {
		// Skip subscribers that unsubscribed in between.
		if _, ok := b.missed[sub]; ok {
			b.missed[sub]++
		}
	}
	b.mu.Unlock()
}

// Dropped returns how many deliveries of eventType were missed by full
// subscribers.
func (b *Bus) Dropped(eventType EventType) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped[eventType]
}

// Missed returns how many payloads sub lost to a full buffer.
func (b *Bus) Missed(sub Subscriber) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.missed[sub]
}

// Unsubscribe removes the subscriber. Unsubscribing twice is a no-op.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			delete(b.missed, sub)
			close(sub)
			return
		}
	}
}
