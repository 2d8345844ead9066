// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// NewSlogLogger returns an *slog.Logger that forwards records to the
// global zerolog logger, for libraries that require slog (the
// supervisor's event hook does).
func NewSlogLogger() *slog.Logger {
	return slog.New(slogHandler{})
}

// slogHandler bridges slog records onto zerolog. Groups are flattened;
// the supervisor's log volume does not justify nested field handling.
type slogHandler struct {
	attrs []slog.Attr
}

func (h slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return mapSlogLevel(level) >= zerolog.GlobalLevel()
}

func (h slogHandler) Handle(_ context.Context, rec slog.Record) error {
	logger := Logger()
	ev := logger.WithLevel(mapSlogLevel(rec.Level))
	for _, attr := range h.attrs {
		ev = ev.Interface(attr.Key, attr.Value.Any())
	}
	rec.Attrs(func(attr slog.Attr) bool {
		ev = ev.Interface(attr.Key, attr.Value.Any())
		return true
	})
	ev.Msg(rec.Message)
	return nil
}

func (h slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return slogHandler{attrs: merged}
}

func (h slogHandler) WithGroup(_ string) slog.Handler {
	return h
}

func mapSlogLevel(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
