// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mfaulds/feedrank/internal/behavior"
	"github.com/mfaulds/feedrank/internal/feed"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{}) // in-memory
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func eventAt(userID string, bt behavior.Type, contentID string, ct behavior.ContentType, ts time.Time) *behavior.Event {
	e := behavior.NewEvent(userID, bt, contentID, ct)
	e.Timestamp = ts
	return e
}

func TestAppendAndReadBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	events := []*behavior.Event{
		eventAt("u1", behavior.TypeView, "p1", behavior.ContentPost, now.Add(-2*time.Hour)),
		eventAt("u1", behavior.TypeLike, "p2", behavior.ContentPost, now.Add(-time.Hour)),
		eventAt("u2", behavior.TypeSave, "p1", behavior.ContentPost, now),
	}
	if err := db.AppendEvents(ctx, events); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := db.EventsForUser(ctx, "u1", now.Add(-24*time.Hour), 100)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	// Timestamp order, not insertion order.
	if !got[0].Timestamp.Before(got[1].Timestamp) {
		t.Error("events not in timestamp order")
	}
	if got[0].ContentID != "p1" || got[1].Type != behavior.TypeLike {
		t.Errorf("unexpected events: %+v", got)
	}
}

func TestAppendKeepsDuplicates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	e := eventAt("u1", behavior.TypeLike, "p1", behavior.ContentPost, now)
	if err := db.AppendEvent(ctx, e); err != nil {
		t.Fatal(err)
	}
	dup := *e
	if err := db.AppendEvent(ctx, &dup); err != nil {
		t.Fatal(err)
	}

	got, err := db.EventsForUser(ctx, "u1", now.Add(-time.Hour), 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %d events, want 2 (log never deduplicates)", len(got))
	}
}

func TestAppendRejectsInvalid(t *testing.T) {
	db := newTestDB(t)
	e := behavior.NewEvent("", behavior.TypeView, "p1", behavior.ContentPost)
	err := db.AppendEvent(context.Background(), e)
	if !errors.Is(err, behavior.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestSeenContentIDs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = db.AppendEvents(ctx, []*behavior.Event{
		eventAt("u1", behavior.TypeView, "p1", behavior.ContentPost, now),
		eventAt("u1", behavior.TypeLike, "p2", behavior.ContentPost, now),
		eventAt("u1", behavior.TypeView, "r1", behavior.ContentReel, now),
		eventAt("u2", behavior.TypeView, "p3", behavior.ContentPost, now),
	})

	seen, err := db.SeenContentIDs(ctx, "u1", behavior.ContentPost, now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 {
		t.Fatalf("seen = %v, want p1 and p2", seen)
	}
	if _, ok := seen["p1"]; !ok {
		t.Error("p1 missing from seen set")
	}
	if _, ok := seen["r1"]; ok {
		t.Error("reel leaked into post seen set")
	}
}

func TestUnseenContent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	items := []feed.ContentItem{
		{ID: "p1", ContentType: behavior.ContentPost, Topics: map[string]float64{"cooking": 1}, CreatedAt: now.Add(-time.Hour)},
		{ID: "p2", ContentType: behavior.ContentPost, Topics: map[string]float64{"hiking": 1}, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "r1", ContentType: behavior.ContentReel, CreatedAt: now},
	}
	for _, item := range items {
		if err := db.UpsertContent(ctx, item); err != nil {
			t.Fatal(err)
		}
	}
	_ = db.AppendEvent(ctx, eventAt("u1", behavior.TypeView, "p1", behavior.ContentPost, now))

	unseen, err := db.UnseenContent(ctx, "u1", behavior.ContentPost, now.Add(-24*time.Hour), now.Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(unseen) != 1 || unseen[0].ID != "p2" {
		t.Fatalf("unseen = %+v, want only p2", unseen)
	}
	if unseen[0].Topics["hiking"] != 1 {
		t.Error("topic vector lost in round trip")
	}

	// Interactions older than the seen window stop excluding.
	unseen, err = db.UnseenContent(ctx, "u1", behavior.ContentPost, now.Add(-24*time.Hour), now.Add(time.Minute), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(unseen) != 2 {
		t.Errorf("expired seen window: got %d items, want 2", len(unseen))
	}
}

func TestEngagementStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = db.UpsertContent(ctx, feed.ContentItem{ID: "p1", ContentType: behavior.ContentPost, CreatedAt: now.Add(-3 * time.Hour)})

	_ = db.AppendEvents(ctx, []*behavior.Event{
		eventAt("u1", behavior.TypeView, "p1", behavior.ContentPost, now),
		eventAt("u2", behavior.TypeView, "p1", behavior.ContentPost, now),
		eventAt("u3", behavior.TypeLike, "p1", behavior.ContentPost, now),
		eventAt("u4", behavior.TypeComment, "p1", behavior.ContentPost, now),
		eventAt("u5", behavior.TypeShare, "p1", behavior.ContentPost, now),
		eventAt("u1", behavior.TypeView, "p2", behavior.ContentPost, now),
	})

	stats, err := db.EngagementStats(ctx, behavior.ContentPost, now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 {
		t.Fatalf("got %d rows, want 2", len(stats))
	}

	// Heaviest engagement first.
	top := stats[0]
	if top.ContentID != "p1" {
		t.Fatalf("top = %s, want p1", top.ContentID)
	}
	if top.Views != 2 || top.Reactions != 1 || top.Comments != 1 || top.Shares != 1 {
		t.Errorf("counts = %+v", top)
	}
	// views + reactions*2 + comments*3 + shares*5 = 2 + 2 + 3 + 5
	if got := top.RawScore(); got != 12 {
		t.Errorf("raw score = %f, want 12", got)
	}
}

func TestActiveUsers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = db.AppendEvents(ctx, []*behavior.Event{
		eventAt("u1", behavior.TypeView, "p1", behavior.ContentPost, now.Add(-time.Hour)),
		eventAt("u2", behavior.TypeView, "p1", behavior.ContentPost, now),
		eventAt("u3", behavior.TypeView, "p1", behavior.ContentPost, now.Add(-30*24*time.Hour)),
	})

	users, err := db.ActiveUsers(ctx, now.Add(-7*24*time.Hour), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Fatalf("active = %v, want u2 and u1", users)
	}
	if users[0] != "u2" {
		t.Errorf("most recently active = %s, want u2", users[0])
	}
}

func TestPositiveEvents(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = db.AppendEvents(ctx, []*behavior.Event{
		eventAt("u1", behavior.TypeLike, "p1", behavior.ContentPost, now),
		eventAt("u1", behavior.TypeView, "p2", behavior.ContentPost, now),
		eventAt("u2", behavior.TypeSave, "p3", behavior.ContentPost, now),
		eventAt("u3", behavior.TypeShare, "p4", behavior.ContentPost, now),
	})

	got, err := db.PositiveEvents(ctx, []string{"u1", "u2"}, behavior.ContentPost, now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2 (view excluded, u3 excluded)", len(got))
	}
	for _, e := range got {
		if !e.Type.Positive() {
			t.Errorf("non-positive event %s leaked through", e.Type)
		}
	}
}
