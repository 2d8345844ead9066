// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package supervisor

import (
	"context"
	"time"

	"github.com/mfaulds/feedrank/internal/logging"
	"github.com/mfaulds/feedrank/internal/profile"
)

// ActiveUserSource lists recently active users for refresh.
type ActiveUserSource interface {
	ActiveUsers(ctx context.Context, since time.Time, limit int) ([]string, error)
}

// ProfileWarmer rebuilds cached interest profiles.
type ProfileWarmer interface {
	Invalidate(userID string)
	Profile(ctx context.Context, userID string) (*profile.InterestProfile, error)
}

// RefreshConfig holds profile refresh settings.
type RefreshConfig struct {
	// Interval between refresh sweeps.
	Interval time.Duration

	// ActiveWindow bounds which users count as active.
	ActiveWindow time.Duration

	// MaxUsers caps users refreshed per sweep.
	MaxUsers int
}

// DefaultRefreshConfig returns production defaults.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Interval:     time.Hour,
		ActiveWindow: 7 * 24 * time.Hour,
		MaxUsers:     1000,
	}
}

// RefreshService periodically rebuilds interest profiles for active
// users so the feed serves warm profiles instead of paying the build
// cost on request.
type RefreshService struct {
	users  ActiveUserSource
	warmer ProfileWarmer
	cfg    RefreshConfig
}

// NewRefreshService creates the refresher. Zero config fields fall
// back to defaults.
func NewRefreshService(users ActiveUserSource, warmer ProfileWarmer, cfg RefreshConfig) *RefreshService {
	defaults := DefaultRefreshConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = defaults.ActiveWindow
	}
	if cfg.MaxUsers <= 0 {
		cfg.MaxUsers = defaults.MaxUsers
	}
	return &RefreshService{users: users, warmer: warmer, cfg: cfg}
}

// Serve implements suture.Service: one sweep per interval until the
// context ends. A failed sweep is logged and retried next interval
// rather than crashing the service.
func (s *RefreshService) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", s.cfg.Interval).
		Int("max_users", s.cfg.MaxUsers).
		Msg("profile refresh service running")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("profile refresh service stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				logging.Warn().Err(err).Msg("profile refresh sweep failed")
			}
		}
	}
}

// sweep rebuilds the profile of every recently active user.
func (s *RefreshService) sweep(ctx context.Context) error {
	start := time.Now()
	users, err := s.users.ActiveUsers(ctx, start.Add(-s.cfg.ActiveWindow), s.cfg.MaxUsers)
	if err != nil {
		return err
	}

	var refreshed, failed int
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.warmer.Invalidate(userID)
		if _, err := s.warmer.Profile(ctx, userID); err != nil {
			failed++
			logging.Debug().Err(err).Str("user_id", userID).Msg("profile refresh failed")
			continue
		}
		refreshed++
	}

	logging.Info().
		Int("refreshed", refreshed).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("profile refresh sweep complete")
	return nil
}

// String identifies the service in supervisor logs.
func (s *RefreshService) String() string {
	return "profile-refresh"
}
