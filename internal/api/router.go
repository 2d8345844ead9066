// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mfaulds/feedrank/internal/config"
	"github.com/mfaulds/feedrank/internal/middleware"
)

// chiMiddleware adapts http.HandlerFunc middleware to Chi's
// func(http.Handler) http.Handler.
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Router assembles the HTTP surface.
type Router struct {
	handlers *Handlers
	cfg      config.ServerConfig
}

// NewRouter creates the router over a handler set.
func NewRouter(handlers *Handlers, cfg config.ServerConfig) *Router {
	return &Router{handlers: handlers, cfg: cfg}
}

// Setup builds the route tree.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.corsOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health probes get a permissive per-IP limit so monitors can poll
	// freely without opening an abuse vector.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Get("/live", rt.handlers.HealthLive)
		r.Get("/ready", rt.handlers.HealthReady)
	})

	// Kubernetes-style aliases.
	r.Get("/healthz", rt.handlers.HealthLive)
	r.Get("/readyz", rt.handlers.HealthReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.rateLimit())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		r.Post("/behavior", rt.handlers.PostBehavior)

		r.Get("/feed/user/{userID}", rt.handlers.GetUserFeed)
		r.Get("/feed/trending", rt.handlers.GetTrending)

		r.Get("/users/{userID}/profile", rt.handlers.GetProfile)
		r.Get("/users/{userID}/similar", rt.handlers.GetSimilarUsers)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (rt *Router) rateLimit() func(http.Handler) http.Handler {
	reqs := rt.cfg.RateLimitReqs
	window := rt.cfg.RateLimitWindow
	if reqs <= 0 {
		reqs = 600
	}
	if window <= 0 {
		window = time.Minute
	}
	return httprate.LimitByIP(reqs, window)
}

func (rt *Router) corsOrigins() []string {
	if len(rt.cfg.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return rt.cfg.CORSOrigins
}
