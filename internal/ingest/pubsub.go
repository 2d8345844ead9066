// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

// Package ingest is the behavior event pipeline: events accepted by the
// API are published to a topic, and a batching consumer appends them to
// the behavior log. The transport is selected at runtime: NATS JetStream
// for durable multi-instance deployments, an in-process channel for
// single-node ones and for tests.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mfaulds/feedrank/internal/behavior"
	"github.com/mfaulds/feedrank/internal/config"
)

// PubSub bundles the publisher and subscriber ends of the pipeline
// together with whatever infrastructure backs them.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	embedded *EmbeddedServer
	conn     *natsgo.Conn
}

// NewPubSub builds the pipeline transport. With NATS disabled both ends
// share one in-process channel; otherwise it connects to (or embeds) a
// NATS server, provisions the behavior stream and returns JetStream
// publisher and subscriber.
func NewPubSub(ctx context.Context, cfg config.NATSConfig, logger watermill.LoggerAdapter) (*PubSub, error) {
	if logger == nil {
		logger = NewWatermillLogger()
	}

	if !cfg.Enabled {
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, logger)
		return &PubSub{Publisher: ch, Subscriber: ch}, nil
	}

	ps := &PubSub{}
	url := cfg.URL

	if cfg.EmbeddedServer {
		embedded, err := NewEmbeddedServer(cfg.StoreDir)
		if err != nil {
			return nil, fmt.Errorf("embedded nats: %w", err)
		}
		ps.embedded = embedded
		url = embedded.ClientURL()
	}

	if err := ps.provisionStream(ctx, url, cfg); err != nil {
		ps.shutdownEmbedded()
		return nil, err
	}

	pub, err := newNATSPublisher(url, logger)
	if err != nil {
		ps.shutdownEmbedded()
		return nil, err
	}
	ps.Publisher = pub

	sub, err := newNATSSubscriber(url, cfg, logger)
	if err != nil {
		_ = pub.Close()
		ps.shutdownEmbedded()
		return nil, err
	}
	ps.Subscriber = sub

	return ps, nil
}

// provisionStream creates or updates the behavior stream so publishers
// and subscribers find it in a known shape. Idempotent.
func (ps *PubSub) provisionStream(ctx context.Context, url string, cfg config.NATSConfig) error {
	nc, err := natsgo.Connect(url,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	ps.conn = nc

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("jetstream context: %w", err)
	}

	streamCfg := jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Subjects:    []string{behavior.Topic, cfg.RouterPoisonTopic},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Duplicates:  2 * time.Minute,
		Discard:     jetstream.DiscardOld,
		AllowDirect: true,
	}

	if _, err := js.Stream(ctx, cfg.StreamName); err == nil {
		if _, err := js.UpdateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("update stream %s: %w", cfg.StreamName, err)
		}
		return nil
	} else if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("check stream %s: %w", cfg.StreamName, err)
	}

	if _, err := js.CreateStream(ctx, streamCfg); err != nil {
		return fmt.Errorf("create stream %s: %w", cfg.StreamName, err)
	}
	return nil
}

func newNATSPublisher(url string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsConnOptions(logger),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}
	return pub, nil
}

func newNATSSubscriber(url string, cfg config.NATSConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	subOpts := []natsgo.SubOpt{
		natsgo.MaxDeliver(cfg.RouterRetryCount),
		natsgo.MaxAckPending(1000),
		natsgo.AckWait(30 * time.Second),
		natsgo.DeliverNew(),
		natsgo.BindStream(cfg.StreamName),
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     cfg.RouterCloseTimeout,
		NatsOptions:      natsConnOptions(logger),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision:    false,
			AckAsync:         false,
			SubscribeOptions: subOpts,
			DurablePrefix:    cfg.DurableName,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats subscriber: %w", err)
	}
	return sub, nil
}

func natsConnOptions(logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}

// Close shuts the transport down, subscriber first so in-flight
// messages drain before the publisher and server go away.
func (ps *PubSub) Close() error {
	var errs []error
	if ps.Subscriber != nil {
		if err := ps.Subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
	}
	// With gochannel both ends are the same object; close it once.
	if ps.Publisher != nil && !ps.sharedChannel() {
		if err := ps.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if ps.conn != nil {
		ps.conn.Close()
	}
	ps.shutdownEmbedded()
	return errors.Join(errs...)
}

// sharedChannel reports whether publisher and subscriber are the same
// in-process channel.
func (ps *PubSub) sharedChannel() bool {
	sub, ok := ps.Publisher.(message.Subscriber)
	return ok && sub == ps.Subscriber
}

func (ps *PubSub) shutdownEmbedded() {
	if ps.embedded != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = ps.embedded.Shutdown(ctx)
	}
}
