// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/mfaulds/feedrank/internal/behavior"
	"github.com/mfaulds/feedrank/internal/config"
)

// RouterConfig holds pipeline router settings.
type RouterConfig struct {
	// CloseTimeout bounds how long handlers get to finish on shutdown.
	CloseTimeout time.Duration

	// Retry settings for transient handler failures.
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	// PoisonTopic receives messages that exhaust their retries.
	PoisonTopic string
}

// DefaultRouterConfig returns production defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      5,
		RetryInitialInterval: time.Second,
		RetryMaxInterval:     time.Minute,
		RetryMultiplier:      2.0,
		PoisonTopic:          "behavior.poison",
	}
}

// RouterConfigFrom maps service NATS configuration onto the router.
func RouterConfigFrom(cfg config.NATSConfig) RouterConfig {
	rc := DefaultRouterConfig()
	if cfg.RouterRetryCount > 0 {
		rc.RetryMaxRetries = cfg.RouterRetryCount
	}
	if cfg.RouterPoisonTopic != "" {
		rc.PoisonTopic = cfg.RouterPoisonTopic
	}
	if cfg.RouterCloseTimeout > 0 {
		rc.CloseTimeout = cfg.RouterCloseTimeout
	}
	return rc
}

// Router wraps the Watermill router with the pipeline's middleware:
// panic recovery, exponential backoff retry and poison queue routing
// for messages that keep failing.
type Router struct {
	router *message.Router
	logger watermill.LoggerAdapter
}

// NewRouter builds the router. poisonPublisher receives exhausted
// messages; pass the pipeline publisher so poisoned events stay on the
// same transport.
func NewRouter(cfg RouterConfig, poisonPublisher message.Publisher, logger watermill.LoggerAdapter) (*Router, error) {
	if logger == nil {
		logger = NewWatermillLogger()
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: cfg.CloseTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	wmRouter.AddMiddleware(middleware.Recoverer)

	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retry.Middleware)

	if poisonPublisher != nil && cfg.PoisonTopic != "" {
		poison, err := middleware.PoisonQueue(poisonPublisher, cfg.PoisonTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue: %w", err)
		}
		wmRouter.AddMiddleware(poison)
	}

	return &Router{router: wmRouter, logger: logger}, nil
}

// AddBehaviorHandler subscribes the batching consumer to the behavior
// topic.
func (r *Router) AddBehaviorHandler(subscriber message.Subscriber, consumer *BatchConsumer) {
	r.router.AddConsumerHandler(
		"behavior-appender",
		behavior.Topic,
		subscriber,
		consumer.Handle,
	)
}

// Run starts the router and blocks until the context is canceled.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// RunAsync starts the router in the background. The returned channel
// closes once the router is accepting messages.
func (r *Router) RunAsync(ctx context.Context) <-chan struct{} {
	running := make(chan struct{})

	go func() {
		go func() {
			if err := r.router.Run(ctx); err != nil {
				r.logger.Error("router stopped", err, nil)
			}
		}()
		<-r.router.Running()
		close(running)
	}()

	return running
}

// Running returns a channel that closes when the router is running.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// IsRunning reports whether the router is processing messages.
func (r *Router) IsRunning() bool {
	return r.router.IsRunning()
}

// Close stops the router, waiting up to CloseTimeout for in-flight
// messages.
func (r *Router) Close() error {
	return r.router.Close()
}
