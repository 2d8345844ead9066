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
	"github.com/mfaulds/feedrank/internal/feed"
)

// UpsertContent inserts or replaces a content catalog entry.
func (db *DB) UpsertContent(ctx context.Context, item feed.ContentItem) error {
	topics, err := encodeTopics(item.Topics)
	if err != nil {
		return fmt.Errorf("encode topics: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO content_items (content_id, content_type, topics, created_at)
		VALUES (?, ?, ?, ?)`,
		item.ID, string(item.ContentType), topics, item.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert content %s: %w", item.ID, err)
	}
	return nil
}

// ContentItems returns catalog entries for the given IDs. Missing IDs
// are silently absent from the result.
func (db *DB) ContentItems(ctx context.Context, ids []string) ([]feed.ContentItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return read(ctx, db, "content items", func(ctx context.Context) ([]feed.ContentItem, error) {
		//nolint:gosec // placeholders are "?" only, values are bound
		q := fmt.Sprintf(`
			SELECT content_id, content_type, topics, created_at
			FROM content_items
			WHERE content_id IN (%s)`, query.Placeholders(len(ids)))

		rows, err := db.conn.QueryContext(ctx, q, query.StringArgs(ids, 0)...)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rows.Close() }()
		return scanContentItems(rows)
	})
}

// UnseenContent returns catalog entries of the given type published
// since publishedAfter that the user has not interacted with since
// seenAfter. Interactions older than the seen window do not exclude:
// content a user touched months ago is eligible again.
func (db *DB) UnseenContent(ctx context.Context, userID string, contentType behavior.ContentType, publishedAfter, seenAfter time.Time, limit int) ([]feed.ContentItem, error) {
	return read(ctx, db, "unseen content", func(ctx context.Context) ([]feed.ContentItem, error) {
		rows, err := db.conn.QueryContext(ctx, `
			SELECT c.content_id, c.content_type, c.topics, c.created_at
			FROM content_items c
			WHERE c.content_type = ?
			  AND c.created_at >= ?
			  AND NOT EXISTS (
				SELECT 1 FROM behavior_events e
				WHERE e.user_id = ? AND e.content_id = c.content_id AND e.ts >= ?
			  )
			ORDER BY c.created_at DESC
			LIMIT ?`,
			string(contentType), publishedAfter.UTC(), userID, seenAfter.UTC(), limit)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rows.Close() }()
		return scanContentItems(rows)
	})
}

// EngagementStats aggregates engagement counts per content item of the
// given type over the window, heaviest engagement first.
func (db *DB) EngagementStats(ctx context.Context, contentType behavior.ContentType, since time.Time, limit int) ([]feed.EngagementStats, error) {
	return read(ctx, db, "engagement stats", func(ctx context.Context) ([]feed.EngagementStats, error) {
		rows, err := db.conn.QueryContext(ctx, `
			SELECT e.content_id,
				count(*) FILTER (WHERE e.behavior_type = 'view')    AS views,
				count(*) FILTER (WHERE e.behavior_type = 'like')    AS reactions,
				count(*) FILTER (WHERE e.behavior_type = 'comment') AS comments,
				count(*) FILTER (WHERE e.behavior_type = 'share')   AS shares,
				coalesce(c.created_at, min(e.ts)) AS created_at
			FROM behavior_events e
			LEFT JOIN content_items c ON c.content_id = e.content_id
			WHERE e.content_type = ? AND e.ts >= ?
			GROUP BY e.content_id, c.created_at
			ORDER BY count(*) DESC
			LIMIT ?`,
			string(contentType), since.UTC(), limit)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rows.Close() }()

		var stats []feed.EngagementStats
		for rows.Next() {
			s := feed.EngagementStats{ContentType: contentType}
			if err := rows.Scan(&s.ContentID, &s.Views, &s.Reactions,
				&s.Comments, &s.Shares, &s.CreatedAt); err != nil {
				return nil, err
			}
			stats = append(stats, s)
		}
		return stats, rows.Err()
	})
}

func encodeTopics(topics map[string]float64) (sql.NullString, error) {
	if len(topics) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(topics)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func scanContentItems(rows *sql.Rows) ([]feed.ContentItem, error) {
	var items []feed.ContentItem
	for rows.Next() {
		var (
			item        feed.ContentItem
			contentType string
			topics      sql.NullString
		)
		if err := rows.Scan(&item.ID, &contentType, &topics, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.ContentType = behavior.ContentType(contentType)

		if topics.Valid && topics.String != "" {
			if err := json.Unmarshal([]byte(topics.String), &item.Topics); err != nil {
				return nil, fmt.Errorf("decode topics for %s: %w", item.ID, err)
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
