// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package behavior

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Serializer converts events to and from their wire format.
// Both directions validate, so malformed events are rejected at the
// boundary instead of corrupting the log.
type Serializer struct{}

// NewSerializer creates an event serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Marshal validates and serializes an event to JSON.
func (s *Serializer) Marshal(event *Event) ([]byte, error) {
	if event == nil {
		return nil, &ValidationError{Field: "event", Message: "nil event"}
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("validate event: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// Unmarshal deserializes and validates an event from JSON.
func (s *Serializer) Unmarshal(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("validate event: %w", err)
	}
	return &event, nil
}
