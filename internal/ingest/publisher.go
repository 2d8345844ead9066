// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package ingest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mfaulds/feedrank/internal/behavior"
	"github.com/mfaulds/feedrank/internal/feed"
	"github.com/mfaulds/feedrank/internal/logging"
	"github.com/mfaulds/feedrank/internal/metrics"
)

// EventPublisher validates and publishes behavior events onto the
// pipeline. A circuit breaker keeps a broken transport from stalling
// every API request behind publish retries.
type EventPublisher struct {
	pub        message.Publisher
	serializer *behavior.Serializer
	breaker    *gobreaker.CircuitBreaker[any]

	mu     sync.RWMutex
	closed bool
}

// NewEventPublisher wraps a transport publisher.
func NewEventPublisher(pub message.Publisher) *EventPublisher {
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "event-publisher",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("publish breaker state change")
		},
	})
	return &EventPublisher{
		pub:        pub,
		serializer: behavior.NewSerializer(),
		breaker:    breaker,
	}
}

// Publish validates, serializes and publishes one event. The event ID
// doubles as the broker-side deduplication key, so redelivered API
// retries collapse to one stored event.
func (p *EventPublisher) Publish(event *behavior.Event) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return errors.New("publisher is closed")
	}
	p.mu.RUnlock()

	data, err := p.serializer.Marshal(event)
	if err != nil {
		metrics.EventsRejected.Inc()
		return err
	}

	msg := message.NewMessage(event.EventID, data)
	msg.Metadata.Set(natsgo.MsgIdHdr, event.EventID)
	msg.Metadata.Set("user_id", event.UserID)
	msg.Metadata.Set("behavior_type", string(event.Type))

	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.pub.Publish(behavior.Topic, msg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("publish %s: pipeline breaker open: %w", event.EventID, feed.ErrUpstreamUnavailable)
		}
		return fmt.Errorf("publish %s: %v: %w", event.EventID, err, feed.ErrUpstreamUnavailable)
	}

	metrics.EventsPublished.Inc()
	return nil
}

// Close marks the publisher closed. The underlying transport is owned
// and closed by PubSub.
func (p *EventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
