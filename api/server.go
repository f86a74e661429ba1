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
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for operator consoles

ROUTE GROUPS:
  /api/households/*      Household registry and balances
  /api/distributions/*   Distribution recording and verification
  /api/reservations/*    Slot bookings
  /api/chain/*           Audit chain inspection
  /metrics               Prometheus scrape endpoint

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
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Household routes
		r.Route("/households", func(r chi.Router) {
			r.Post("/", h.RegisterHousehold)
			r.Get("/{id}", h.GetHousehold)
			r.Put("/{id}/members", h.UpdateMembers)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/distributions", h.GetDistributions)
			r.Get("/{id}/reservations", h.GetReservations)
		})

		// Distribution routes
		r.Route("/distributions", func(r chi.Router) {
			r.Post("/", h.Distribute)
			r.Get("/{id}", h.GetDistribution)
			r.Get("/{id}/verify", h.VerifyDistribution)
		})

		// Reservation routes
		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", h.Reserve)
			r.Get("/{id}", h.GetReservation)
			r.Post("/{id}/cancel", h.CancelReservation)
		})

		// Chain routes
		r.Route("/chain", func(r chi.Router) {
			r.Get("/head", h.ChainHead)
			r.Get("/validate", h.ValidateChain)
		})
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	return r
}
