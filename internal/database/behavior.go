// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/mfaulds/feedrank/internal/behavior"
	"github.com/mfaulds/feedrank/internal/database/query"
	"github.com/mfaulds/feedrank/internal/metrics"
)

// AppendEvent durably appends one behavior event to the log.
// The log is append-only: duplicates are kept and order is not enforced.
func (db *DB) AppendEvent(ctx context.Context, event *behavior.Event) error {
	return db.AppendEvents(ctx, []*behavior.Event{event})
}

// AppendEvents appends a batch of events in a single transaction.
func (db *DB) AppendEvents(ctx context.Context, events []*behavior.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO behavior_events
		(event_id, user_id, behavior_type, content_id, content_type, ts, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare append: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, event := range events {
		if err := event.Validate(); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		meta, err := encodeMetadata(event.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			event.EventID, event.UserID, string(event.Type),
			event.ContentID, string(event.ContentType),
			event.Timestamp.UTC(), meta,
		); err != nil {
			return fmt.Errorf("insert event %s: %w", event.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}

	for _, event := range events {
		metrics.EventsIngested.WithLabelValues(string(event.Type)).Inc()
	}
	return nil
}

func encodeMetadata(m map[string]string) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeMetadata(s sql.NullString) (map[string]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// EventsForUser returns the user's events since the given time, ordered
// by event timestamp ascending. Arrival order is irrelevant: consumers
// always see timestamp order regardless of how events reached the log.
func (db *DB) EventsForUser(ctx context.Context, userID string, since time.Time, limit int) ([]behavior.Event, error) {
	return read(ctx, db, "events for user", func(ctx context.Context) ([]behavior.Event, error) {
		rows, err := db.conn.QueryContext(ctx, `
			SELECT event_id, user_id, behavior_type, content_id, content_type, ts, metadata
			FROM behavior_events
			WHERE user_id = ? AND ts >= ?
			ORDER BY ts ASC
			LIMIT ?`,
			userID, since.UTC(), limit)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rows.Close() }()
		return scanEvents(rows)
	})
}

// PositiveEvents returns strong positive engagements (like, save, share)
// by any of the given users within the window, newest first.
func (db *DB) PositiveEvents(ctx context.Context, userIDs []string, contentType behavior.ContentType, since time.Time, limit int) ([]behavior.Event, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	return read(ctx, db, "positive events", func(ctx context.Context) ([]behavior.Event, error) {
		args := query.StringArgs(userIDs, 3)
		args = append(args, string(contentType), since.UTC(), limit)

		//nolint:gosec // placeholders are "?" only, values are bound
		q := fmt.Sprintf(`
			SELECT event_id, user_id, behavior_type, content_id, content_type, ts, metadata
			FROM behavior_events
			WHERE user_id IN (%s)
			  AND behavior_type IN ('like', 'save', 'share')
			  AND content_type = ?
			  AND ts >= ?
			ORDER BY ts DESC
			LIMIT ?`, query.Placeholders(len(userIDs)))

		rows, err := db.conn.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rows.Close() }()
		return scanEvents(rows)
	})
}

// SeenContentIDs returns the set of content the user has interacted with
// in any way within the window.
func (db *DB) SeenContentIDs(ctx context.Context, userID string, contentType behavior.ContentType, since time.Time) (map[string]struct{}, error) {
	return read(ctx, db, "seen content", func(ctx context.Context) (map[string]struct{}, error) {
		rows, err := db.conn.QueryContext(ctx, `
			SELECT DISTINCT content_id
			FROM behavior_events
			WHERE user_id = ? AND content_type = ? AND ts >= ?`,
			userID, string(contentType), since.UTC())
		if err != nil {
			return nil, err
		}
		defer func() { _ = rows.Close() }()

		seen := make(map[string]struct{})
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}
			seen[id] = struct{}{}
		}
		return seen, rows.Err()
	})
}

// ActiveUsers returns users with at least one event in the window,
// most recently active first.
func (db *DB) ActiveUsers(ctx context.Context, since time.Time, limit int) ([]string, error) {
	return read(ctx, db, "active users", func(ctx context.Context) ([]string, error) {
		rows, err := db.conn.QueryContext(ctx, `
			SELECT user_id
			FROM behavior_events
			WHERE ts >= ?
			GROUP BY user_id
			ORDER BY max(ts) DESC
			LIMIT ?`,
			since.UTC(), limit)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rows.Close() }()

		var users []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}
			users = append(users, id)
		}
		return users, rows.Err()
	})
}

// EventCount returns the total number of events in the log.
func (db *DB) EventCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM behavior_events`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("event count: %w", err)
	}
	return count, nil
}

func scanEvents(rows *sql.Rows) ([]behavior.Event, error) {
	var events []behavior.Event
	for rows.Next() {
		var (
			event        behavior.Event
			behaviorType string
			contentType  string
			meta         sql.NullString
		)
		if err := rows.Scan(&event.EventID, &event.UserID, &behaviorType,
			&event.ContentID, &contentType, &event.Timestamp, &meta); err != nil {
			return nil, err
		}
		event.Type = behavior.Type(behaviorType)
		event.ContentType = behavior.ContentType(contentType)
		event.SchemaVersion = behavior.SchemaVersion

		metadata, err := decodeMetadata(meta)
		if err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", event.EventID, err)
		}
		event.Metadata = metadata

		events = append(events, event)
	}
	return events, rows.Err()
}
