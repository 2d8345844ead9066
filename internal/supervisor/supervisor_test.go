// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/mfaulds/feedrank/internal/profile"
)

// mockHTTPServer simulates http.Server lifecycle.
type mockHTTPServer struct {
	started  chan struct{}
	shutdown chan struct{}
	serveErr error
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{
		started:  make(chan struct{}),
		shutdown: make(chan struct{}),
	}
}

func (m *mockHTTPServer) ListenAndServe() error {
	close(m.started)
	if m.serveErr != nil {
		return m.serveErr
	}
	<-m.shutdown
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(_ context.Context) error {
	close(m.shutdown)
	return nil
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	server := newMockHTTPServer()
	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-server.started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestHTTPServerServiceStartupFailure(t *testing.T) {
	server := newMockHTTPServer()
	server.serveErr = errors.New("address already in use")
	svc := NewHTTPServerService(server, time.Second)

	err := svc.Serve(context.Background())
	if err == nil || errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want startup failure", err)
	}
}

// mockRunner blocks until its context ends.
type mockRunner struct {
	ran chan struct{}
}

func (m *mockRunner) Run(ctx context.Context) error {
	close(m.ran)
	<-ctx.Done()
	return ctx.Err()
}

func TestPipelineServiceStopsWithContext(t *testing.T) {
	runner := &mockRunner{ran: make(chan struct{})}
	svc := NewPipelineService("test-runner", runner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-runner.ran
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("service did not stop")
	}
	if svc.String() != "test-runner" {
		t.Errorf("name = %s", svc.String())
	}
}

// mockUsers and mockWarmer script a refresh sweep.
type mockUsers struct {
	users []string
}

func (m *mockUsers) ActiveUsers(_ context.Context, _ time.Time, limit int) ([]string, error) {
	if len(m.users) > limit {
		return m.users[:limit], nil
	}
	return m.users, nil
}

type mockWarmer struct {
	mu          sync.Mutex
	invalidated []string
	built       []string
	failFor     string
}

func (m *mockWarmer) Invalidate(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, userID)
}

func (m *mockWarmer) Profile(_ context.Context, userID string) (*profile.InterestProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if userID == m.failFor {
		return nil, errors.New("store hiccup")
	}
	m.built = append(m.built, userID)
	return profile.NewInterestProfile(userID), nil
}

func TestRefreshServiceSweep(t *testing.T) {
	users := &mockUsers{users: []string{"u1", "u2", "u3"}}
	warmer := &mockWarmer{failFor: "u2"}
	svc := NewRefreshService(users, warmer, RefreshConfig{
		Interval:     10 * time.Millisecond,
		ActiveWindow: time.Hour,
		MaxUsers:     100,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = svc.Serve(ctx)

	warmer.mu.Lock()
	defer warmer.mu.Unlock()
	if len(warmer.invalidated) < 3 {
		t.Errorf("invalidated %d profiles, want at least one full sweep", len(warmer.invalidated))
	}
	for _, userID := range warmer.built {
		if userID == "u2" {
			t.Error("failed user recorded as built")
		}
	}
}

func TestTreeRunsServices(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
	tree := NewTree(logger, TreeConfig{})

	runner := &mockRunner{ran: make(chan struct{})}
	tree.AddPipelineService(NewPipelineService("runner", runner))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	select {
	case <-runner.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("supervised service never started")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("tree stopped with %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop")
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
