/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/settlements/*  Settlement lifecycle and generation
  /api/videos/*       Rate overrides
  /api/stars/*        Creator listings and earnings
  /api/scenarios/*    Demo scenarios (dev only)
  /metrics            Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public;
  production runs behind the platform gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Settlement routes. Config and items are registered before
		// {id} so chi never swallows them as settlement IDs.
		r.Route("/settlements", func(r chi.Router) {
			r.Get("/", h.ListSettlements)
			r.Post("/generate", h.Generate)
			r.Get("/config", h.GetConfig)
			r.Patch("/config", h.UpdateConfig)
			r.Patch("/items/{itemID}", h.UpdateItemAmount)
			r.Get("/{id}", h.GetSettlement)
			r.Patch("/{id}", h.UpdateNote)
			r.Delete("/{id}", h.DeleteSettlement)
			r.Patch("/{id}/complete", h.Complete)
			r.Patch("/{id}/cancel", h.Cancel)
			r.Patch("/{id}/processing", h.MarkProcessing)
			r.Get("/{id}/statement", h.GetStatement)
			r.Get("/{id}/pdf", h.GetStatement) // historical route name

		})

		// Video rate overrides
		r.Route("/videos", func(r chi.Router) {
			r.Patch("/{id}/rate", h.SetVideoRate)
		})

		// Creator routes
		r.Route("/stars", func(r chi.Router) {
			r.Get("/", h.ListStars)
			r.Get("/{id}/settlements", h.ListStarSettlements)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	return r
}
