// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

// Package main is the entry point for the feedrank server.
//
// Feedrank ingests user behavior events, builds decayed interest
// profiles from them, and serves personalized feeds blended from
// content-based, collaborative and trending candidate generators.
//
// # Startup order
//
//  1. Configuration: koanf layering of defaults, config.yaml and
//     FEEDRANK_* environment variables
//  2. Logging: global zerolog logger
//  3. Behavior log: DuckDB store for events and content
//  4. Profile layer: Badger-cached interest profile builder
//  5. Similarity index and candidate generators
//  6. Ingest pipeline: Watermill router over NATS JetStream or an
//     in-process channel
//  7. HTTP API under supervision
//
// # Signal handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// connections, the pipeline flushes its partial batch, and the
// supervisor tree waits for every service up to its shutdown timeout.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfaulds/feedrank/internal/api"
	"github.com/mfaulds/feedrank/internal/config"
	"github.com/mfaulds/feedrank/internal/database"
	"github.com/mfaulds/feedrank/internal/feed"
	"github.com/mfaulds/feedrank/internal/feed/generators"
	"github.com/mfaulds/feedrank/internal/ingest"
	"github.com/mfaulds/feedrank/internal/logging"
	"github.com/mfaulds/feedrank/internal/profile"
	"github.com/mfaulds/feedrank/internal/similarity"
	"github.com/mfaulds/feedrank/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("feedrank failed")
	}
}

//nolint:gocyclo // sequential wiring of the service graph
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("nats", cfg.NATS.Enabled).
		Int("port", cfg.Server.Port).
		Msg("starting feedrank")

	// Behavior log.
	db, err := database.New(database.Config{
		Path:      cfg.Database.Path,
		MaxMemory: cfg.Database.MaxMemory,
		Threads:   cfg.Database.Threads,
	})
	if err != nil {
		return fmt.Errorf("open behavior store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("closing behavior store")
		}
	}()

	// Interest profiles with a Badger-backed cache.
	store, err := profile.NewStore(cfg.Profile.CachePath, cfg.Profile.CacheTTL)
	if err != nil {
		return fmt.Errorf("open profile cache: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("closing profile cache")
		}
	}()

	builder := profile.NewBuilder(db, store, profile.Config{
		HalfLife:    cfg.Profile.HalfLife,
		EventWindow: cfg.Profile.EventWindow,
		MaxEvents:   cfg.Profile.MaxEvents,
		CacheTTL:    cfg.Profile.CacheTTL,
	})

	index := similarity.NewIndex(builder, db, similarity.Config{
		CacheTTL:      cfg.Similarity.CacheTTL,
		MaxCandidates: cfg.Similarity.MaxCandidates,
		ActiveWindow:  cfg.Similarity.ActiveWindow,
	})

	// Candidate generators and the composer.
	contentGen := generators.NewContentBased(builder, db, generators.ContentBasedConfig{
		SeenWindow: cfg.Feed.SeenWindow,
	})
	collabGen := generators.NewCollaborative(index, db, generators.CollaborativeConfig{
		Neighbors:  cfg.Feed.Neighbors,
		SeenWindow: cfg.Feed.SeenWindow,
	})
	trendingGen := generators.NewTrending(db, generators.TrendingConfig{})

	composer, err := feed.NewComposer(
		[]feed.Generator{contentGen, collabGen, trendingGen},
		feed.Config{
			GeneratorTimeout: cfg.Feed.GeneratorTimeout,
			DiversityCap:     cfg.Feed.DiversityCap,
			DefaultLimit:     cfg.Feed.DefaultLimit,
			MaxLimit:         cfg.Feed.MaxLimit,
			Weights:          feed.DefaultConfig().Weights,
		},
	)
	if err != nil {
		return fmt.Errorf("build composer: %w", err)
	}

	// Shutdown context, canceled by SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ingest pipeline.
	wmLogger := ingest.NewWatermillLogger()
	pubsub, err := ingest.NewPubSub(ctx, cfg.NATS, wmLogger)
	if err != nil {
		return fmt.Errorf("build pipeline transport: %w", err)
	}
	defer func() {
		if err := pubsub.Close(); err != nil {
			logging.Error().Err(err).Msg("closing pipeline transport")
		}
	}()

	publisher := ingest.NewEventPublisher(pubsub.Publisher)
	consumer := ingest.NewBatchConsumer(db, ingest.ConsumerConfig{
		BatchSize:     cfg.NATS.BatchSize,
		FlushInterval: cfg.NATS.FlushInterval,
	})

	router, err := ingest.NewRouter(ingest.RouterConfigFrom(cfg.NATS), pubsub.Publisher, wmLogger)
	if err != nil {
		return fmt.Errorf("build pipeline router: %w", err)
	}
	router.AddBehaviorHandler(pubsub.Subscriber, consumer)

	// HTTP API.
	handlers := api.NewHandlers(
		publisher, composer, trendingGen, builder, index, db,
		api.HandlerConfig{
			DefaultNeighbors: cfg.Feed.Neighbors,
			MaxLimit:         cfg.Feed.MaxLimit,
			IngestRate:       cfg.Server.IngestRate,
			IngestBurst:      cfg.Server.IngestBurst,
		},
	)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers, cfg.Server).Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	// Supervision tree: pipeline, refresh and API layers restart
	// independently.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{})

	tree.AddPipelineService(supervisor.NewPipelineService("pipeline-router", router))
	tree.AddPipelineService(supervisor.NewPipelineService("batch-flusher", consumer))
	tree.AddRefreshService(supervisor.NewRefreshService(db, builder, supervisor.RefreshConfig{
		Interval:     cfg.Profile.RefreshInterval,
		ActiveWindow: cfg.Similarity.ActiveWindow,
	}))
	tree.AddAPIService(supervisor.NewHTTPServerService(server, 10*time.Second))

	logging.Info().Str("addr", server.Addr).Msg("feedrank running")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", fmt.Sprint(svc.Service)).Msg("service missed shutdown timeout")
		}
	}

	logging.Info().Msg("feedrank stopped")
	return nil
}
