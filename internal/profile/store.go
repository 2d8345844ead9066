// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package profile

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"

	"github.com/mfaulds/feedrank/internal/logging"
)

const keyPrefix = "profile:"

// Store is the materialized profile cache, backed by Badger. Entries
// expire after the TTL; a missing or expired entry just means the
// builder recomputes. Profiles are always reconstructible from the
// behavior log, so losing this store loses nothing.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// NewStore opens the profile cache at path. An empty path opens an
// in-memory store, used in tests and cache-less deployments.
func NewStore(path string, ttl time.Duration) (*Store, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	// Badger's default logger is chatty; route through zerolog instead.
	opts = opts.WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open profile store: %w", err)
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Store{db: db, ttl: ttl}, nil
}

// Get returns the cached profile and whether it was present.
func (s *Store) Get(userID string) (*InterestProfile, bool, error) {
	var p InterestProfile
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("profile store get: %w", err)
	}
	return &p, true, nil
}

// Put caches a profile with the store TTL.
func (s *Store) Put(p *InterestProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(keyPrefix+p.UserID), data).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("profile store put: %w", err)
	}
	return nil
}

// Delete removes a cached profile.
func (s *Store) Delete(userID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + userID))
	})
	if err != nil {
		return fmt.Errorf("profile store delete: %w", err)
	}
	return nil
}

// Close closes the underlying Badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

// badgerLogger adapts Badger's logger interface to zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	logging.Error().Msgf("badger: "+format, args...)
}

func (badgerLogger) Warningf(format string, args ...any) {
	logging.Warn().Msgf("badger: "+format, args...)
}

func (badgerLogger) Infof(format string, args ...any) {
	logging.Debug().Msgf("badger: "+format, args...)
}

func (badgerLogger) Debugf(format string, args ...any) {
	logging.Debug().Msgf("badger: "+format, args...)
}
