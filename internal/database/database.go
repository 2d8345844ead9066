// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

// Package database is the durable behavior log and content catalog,
// backed by DuckDB. Appends are the write path of the ingest pipeline;
// the analytical read queries feed the profile builder, similarity
// index and candidate generators.
//
// Serve-time reads go through a circuit breaker: when the store is
// unhealthy, callers get ErrUpstreamUnavailable quickly instead of
// piling up on a failing database.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	// DuckDB database/sql driver.
	_ "github.com/duckdb/duckdb-go/v2"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mfaulds/feedrank/internal/feed"
	"github.com/mfaulds/feedrank/internal/logging"
	"github.com/mfaulds/feedrank/internal/metrics"
)

// Config holds database settings.
type Config struct {
	// Path is the DuckDB file path. Empty opens an in-memory database.
	Path string

	// MaxMemory caps DuckDB memory usage, e.g. "2GB".
	MaxMemory string

	// Threads is the DuckDB thread count. 0 = runtime.NumCPU().
	Threads int
}

// DB wraps the DuckDB connection with the behavior log schema and a
// circuit breaker around serve-time reads.
type DB struct {
	conn    *sql.DB
	cfg     Config
	breaker *gobreaker.CircuitBreaker[any]
}

// New opens (or creates) the database and initializes the schema.
func New(cfg Config) (*DB, error) {
	connStr := ""
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		threads := cfg.Threads
		if threads <= 0 {
			threads = runtime.NumCPU()
		}
		maxMemory := cfg.MaxMemory
		if maxMemory == "" {
			maxMemory = "2GB"
		}
		connStr = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
			cfg.Path, threads, maxMemory)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}
	db.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "behavior-store",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("store circuit breaker state change")
			metrics.StoreBreakerState.Set(breakerStateValue(to))
		},
	})

	if err := db.initSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return db, nil
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// initSchema creates the behavior log and content catalog tables.
func (db *DB) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS behavior_events (
			event_id     VARCHAR NOT NULL,
			user_id      VARCHAR NOT NULL,
			behavior_type VARCHAR NOT NULL,
			content_id   VARCHAR NOT NULL,
			content_type VARCHAR NOT NULL,
			ts           TIMESTAMP NOT NULL,
			metadata     VARCHAR
		)`,
		`CREATE INDEX IF NOT EXISTS idx_behavior_user_ts ON behavior_events (user_id, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_behavior_content ON behavior_events (content_id)`,
		`CREATE TABLE IF NOT EXISTS content_items (
			content_id   VARCHAR PRIMARY KEY,
			content_type VARCHAR NOT NULL,
			topics       VARCHAR,
			created_at   TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_content_type_created ON content_items (content_type, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

// read runs a serve-time read through the circuit breaker. Failures
// (including an open breaker) surface as ErrUpstreamUnavailable so
// callers can classify without knowing store internals.
func read[T any](ctx context.Context, db *DB, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := db.breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%s: store breaker open: %w", op, feed.ErrUpstreamUnavailable)
		}
		return zero, fmt.Errorf("%s: %v: %w", op, err, feed.ErrUpstreamUnavailable)
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected result type %T", op, result)
	}
	return typed, nil
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
