// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package supervisor

import (
	"context"
	"errors"
)

// Runner is a blocking, context-aware run loop. Both the ingest router
// and the batch flusher satisfy it.
type Runner interface {
	Run(ctx context.Context) error
}

// PipelineService supervises one ingest pipeline component.
type PipelineService struct {
	runner Runner
	name   string
}

// NewPipelineService wraps a pipeline run loop for supervision.
func NewPipelineService(name string, runner Runner) *PipelineService {
	return &PipelineService{runner: runner, name: name}
}

// Serve implements suture.Service. Context cancellation is a normal
// stop, not a restartable failure.
func (s *PipelineService) Serve(ctx context.Context) error {
	err := s.runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	return err
}

// String identifies the service in supervisor logs.
func (s *PipelineService) String() string {
	return s.name
}
