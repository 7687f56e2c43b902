/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus mirrors the in-process event bus onto NATS so that
// external consumers (stage lighting, recording, dashboards) can follow the
// presentation without a websocket.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/lectern/internal/events"
)

// SubjectPrefix prefixes every relayed subject: lectern.events.<type>.
const SubjectPrefix = "lectern.events."

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "lectern",
		MaxReconnects: -1, // unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Connect dials NATS with reconnect logging.
func Connect(cfg NATSConfig, logger zerolog.Logger) (*nats.Conn, error) {
	logger = logger.With().Str("component", "nats").Logger()
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	logger.Info().Str("url", conn.ConnectedUrl()).Msg("nats connected")
	return conn, nil
}

// Publisher is the subset of *nats.Conn the relay needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Message is the JSON envelope published on each subject.
type Message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

// Relay forwards every bus event to NATS.
type Relay struct {
	conn   Publisher
	bus    *events.Bus
	nodeID string
	logger zerolog.Logger

	mu   sync.Mutex
	subs map[events.EventType]events.Subscriber
	wg   sync.WaitGroup
}

// NewRelay creates a relay for the given bus.
func NewRelay(conn Publisher, bus *events.Bus, logger zerolog.Logger) *Relay {
	return &Relay{
		conn:   conn,
		bus:    bus,
		nodeID: NodeID(),
		logger: logger.With().Str("component", "nats_relay").Logger(),
		subs:   make(map[events.EventType]events.Subscriber),
	}
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.Start()
	<-ctx.Done()
	r.Stop()
	return ctx.Err()
}

// Start subscribes to every event type and begins forwarding.
func (r *Relay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, et := range events.All {
		if _, ok := r.subs[et]; ok {
			continue
		}
		sub := r.bus.SubscribeBuffered(et, 64)
		r.subs[et] = sub
		r.wg.Add(1)
		go r.forward(et, sub)
	}
	r.logger.Info().Str("node", r.nodeID).Msg("nats relay started")
}

// Stop unsubscribes and waits for in-flight forwards.
func (r *Relay) Stop() {
	r.mu.Lock()
	for et, sub := range r.subs {
		r.bus.Unsubscribe(et, sub)
		delete(r.subs, et)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Relay) forward(et events.EventType, sub events.Subscriber) {
	defer r.wg.Done()
	subject := SubjectPrefix + string(et)
	for payload := range sub {
		data, err := Marshal(et, payload, r.nodeID)
		if err != nil {
			r.logger.Warn().Err(err).Str("event", string(et)).Msg("failed to encode event")
			continue
		}
		if err := r.conn.Publish(subject, data); err != nil {
			r.logger.Debug().Err(err).Str("subject", subject).Msg("nats publish failed")
		}
	}
}

// Marshal builds the wire envelope for one event.
func Marshal(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(Message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

// Unmarshal parses a relayed message.
func Unmarshal(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal nats message: %w", err)
	}
	return &msg, nil
}

// NodeID identifies this process in relayed messages.
func NodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "lectern"
	}
	return host + "-" + uuid.NewString()[:8]
}
