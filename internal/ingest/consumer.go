// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/mfaulds/feedrank/internal/behavior"
	"github.com/mfaulds/feedrank/internal/logging"
	"github.com/mfaulds/feedrank/internal/metrics"
)

// Appender is the write end of the behavior log.
type Appender interface {
	AppendEvents(ctx context.Context, events []*behavior.Event) error
}

// ConsumerConfig holds batching consumer settings.
type ConsumerConfig struct {
	// BatchSize triggers a flush once this many events are buffered.
	BatchSize int

	// FlushInterval bounds how long a partial batch waits.
	FlushInterval time.Duration
}

// DefaultConsumerConfig returns production defaults.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		BatchSize:     500,
		FlushInterval: 2 * time.Second,
	}
}

// BatchConsumer buffers pipeline events and appends them to the
// behavior log in batches: one transaction per batch instead of one
// per event.
//
// Messages are acked on buffer, not on flush. A crash between the two
// can lose up to one batch; the flush interval bounds that window and
// JetStream redelivery covers process restarts mid-ack.
type BatchConsumer struct {
	appender   Appender
	serializer *behavior.Serializer
	cfg        ConsumerConfig

	mu  sync.Mutex
	buf []*behavior.Event
}

// NewBatchConsumer creates the consumer. Zero config fields fall back
// to defaults.
func NewBatchConsumer(appender Appender, cfg ConsumerConfig) *BatchConsumer {
	defaults := DefaultConsumerConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	return &BatchConsumer{
		appender:   appender,
		serializer: behavior.NewSerializer(),
		cfg:        cfg,
		buf:        make([]*behavior.Event, 0, cfg.BatchSize),
	}
}

// Handle is the router handler for behavior messages. A malformed
// payload is dropped and counted rather than returned as an error:
// redelivery cannot fix a payload that never parsed.
func (c *BatchConsumer) Handle(msg *message.Message) error {
	event, err := c.serializer.Unmarshal(msg.Payload)
	if err != nil {
		metrics.EventsRejected.Inc()
		logging.Warn().
			Err(err).
			Str("message_uuid", msg.UUID).
			Msg("dropping malformed behavior event")
		return nil
	}

	c.mu.Lock()
	c.buf = append(c.buf, event)
	full := len(c.buf) >= c.cfg.BatchSize
	c.mu.Unlock()

	if full {
		return c.Flush(msg.Context())
	}
	return nil
}

// Flush writes the buffered batch to the behavior log. On failure the
// batch stays buffered for the next attempt, capped at ten batches to
// bound memory during a store outage.
func (c *BatchConsumer) Flush(ctx context.Context) error {
	c.mu.Lock()
	if len(c.buf) == 0 {
		c.mu.Unlock()
		return nil
	}
	batch := c.buf
	c.buf = make([]*behavior.Event, 0, c.cfg.BatchSize)
	c.mu.Unlock()

	start := time.Now()
	if err := c.appender.AppendEvents(ctx, batch); err != nil {
		c.requeue(batch)
		return fmt.Errorf("append batch of %d: %w", len(batch), err)
	}

	logging.Debug().
		Int("count", len(batch)).
		Dur("duration", time.Since(start)).
		Msg("behavior batch flushed")
	return nil
}

// requeue puts a failed batch back at the front of the buffer.
func (c *BatchConsumer) requeue(batch []*behavior.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	limit := c.cfg.BatchSize * 10
	combined := append(batch, c.buf...)
	if len(combined) > limit {
		dropped := len(combined) - limit
		combined = combined[dropped:]
		logging.Error().
			Int("dropped", dropped).
			Msg("behavior buffer overflow, oldest events dropped")
	}
	c.buf = combined
}

// Run flushes partial batches on the configured interval until the
// context ends, then performs a final flush.
func (c *BatchConsumer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.Flush(flushCtx); err != nil {
				logging.Error().Err(err).Msg("final behavior flush failed")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := c.Flush(ctx); err != nil {
				logging.Error().Err(err).Msg("behavior flush failed, batch retained")
			}
		}
	}
}

// Buffered returns the number of events waiting to be flushed.
func (c *BatchConsumer) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}
