// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

// Package behavior defines the behavior event model: the append-only record
// of user interactions that every downstream component (profiles, similarity,
// feed generation) is derived from.
package behavior

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the current event schema version.
// Bump on breaking changes to the wire format.
const SchemaVersion = "1.0"

// Topic is the pipeline subject behavior events are published to.
const Topic = "behavior.events"

// ErrValidation is the sentinel for malformed or incomplete events.
// Wrapped by ValidationError; callers test with errors.Is.
var ErrValidation = errors.New("behavior validation failed")

// Type classifies what the user did.
type Type string

// Behavior types, ordered roughly by how strongly they signal interest.
const (
	TypeView      Type = "view"
	TypeClick     Type = "click"
	TypeDwellTime Type = "dwell_time"
	TypeLike      Type = "like"
	TypeComment   Type = "comment"
	TypeShare     Type = "share"
	TypeSave      Type = "save"
	TypeFollow    Type = "follow"
	TypeSearch    Type = "search"
)

// Valid reports whether t is a known behavior type.
func (t Type) Valid() bool {
	switch t {
	case TypeView, TypeClick, TypeDwellTime, TypeLike, TypeComment,
		TypeShare, TypeSave, TypeFollow, TypeSearch:
		return true
	default:
		return false
	}
}

// BaseWeight returns the interest weight of a single occurrence of this
// behavior, before recency decay. Deliberate actions outrank passive ones:
// save > share > comment > like > click > view > dwell_time.
func (t Type) BaseWeight() float64 {
	switch t {
	case TypeSave:
		return 5.0
	case TypeShare:
		return 4.0
	case TypeComment:
		return 3.0
	case TypeFollow:
		return 2.5
	case TypeLike:
		return 2.0
	case TypeClick, TypeSearch:
		return 1.0
	case TypeView:
		return 0.5
	case TypeDwellTime:
		return 0.3
	default:
		return 0.0
	}
}

// Positive reports whether this behavior is a strong positive engagement,
// the kind worth surfacing to similar users.
func (t Type) Positive() bool {
	switch t {
	case TypeLike, TypeSave, TypeShare:
		return true
	default:
		return false
	}
}

// ContentType classifies what the behavior targeted.
type ContentType string

// Content types.
const (
	ContentPost  ContentType = "post"
	ContentReel  ContentType = "reel"
	ContentGroup ContentType = "group"
	ContentEvent ContentType = "event"
	ContentUser  ContentType = "user"
	ContentTopic ContentType = "topic"
	ContentStory ContentType = "story"
)

// Valid reports whether c is a known content type.
func (c ContentType) Valid() bool {
	switch c {
	case ContentPost, ContentReel, ContentGroup, ContentEvent,
		ContentUser, ContentTopic, ContentStory:
		return true
	default:
		return false
	}
}

// Event is a single recorded user behavior. Events are append-only facts:
// they are never updated or deduplicated, and may arrive out of order.
// Timestamp, not arrival order, determines how an event is interpreted.
type Event struct {
	// EventID uniquely identifies this event (UUID).
	EventID string `json:"event_id" validate:"required"`

	// SchemaVersion is the event schema version for forward compatibility.
	SchemaVersion string `json:"schema_version" validate:"required"`

	// UserID is the acting user.
	UserID string `json:"user_id" validate:"required"`

	// Type is the behavior performed (view, like, save, ...).
	Type Type `json:"behavior_type" validate:"required"`

	// ContentID is the target of the behavior.
	ContentID string `json:"content_id" validate:"required"`

	// ContentType is the kind of content targeted (post, reel, ...).
	ContentType ContentType `json:"content_type" validate:"required"`

	// Timestamp is when the behavior happened, UTC.
	Timestamp time.Time `json:"timestamp" validate:"required"`

	// Metadata carries optional context (dwell seconds, referrer surface).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewEvent constructs an event with a fresh ID, the current schema version,
// and a UTC timestamp.
func NewEvent(userID string, behaviorType Type, contentID string, contentType ContentType) *Event {
	return &Event{
		EventID:       uuid.New().String(),
		SchemaVersion: SchemaVersion,
		UserID:        userID,
		Type:          behaviorType,
		ContentID:     contentID,
		ContentType:   contentType,
		Timestamp:     time.Now().UTC(),
	}
}

// ValidationError describes a single invalid event field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap makes errors.Is(err, ErrValidation) true for every field error.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Validate checks the event for required fields and known enum values.
// Returns the first problem found as a *ValidationError.
func (e *Event) Validate() error {
	if e.EventID == "" {
		return &ValidationError{Field: "event_id", Message: "required"}
	}
	if e.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "required"}
	}
	if e.ContentID == "" {
		return &ValidationError{Field: "content_id", Message: "required"}
	}
	if !e.Type.Valid() {
		return &ValidationError{Field: "behavior_type", Message: fmt.Sprintf("unknown behavior type %q", e.Type)}
	}
	if !e.ContentType.Valid() {
		return &ValidationError{Field: "content_type", Message: fmt.Sprintf("unknown content type %q", e.ContentType)}
	}
	if e.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "required"}
	}
	return nil
}

// Age returns how old the event is relative to now.
func (e *Event) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}
