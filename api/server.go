/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

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
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/duties/*         Duty record management
  /api/calculations/*   Monthly roll-ups, recalculation, export
  /api/rates/*          Rate era publishing
  /healthz              Liveness probe
  /metrics              Prometheus metrics

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
		// Duty routes
		r.Route("/duties", func(r chi.Router) {
			r.Get("/", h.ListDuties)
			r.Post("/", h.CreateDuty)
			r.Post("/bulk", h.BulkReplaceDuties)
			r.Get("/{id}", h.GetDuty)
			r.Put("/{id}", h.UpdateDuty)
			r.Delete("/{id}", h.DeleteDuty)
			r.Post("/{id}/revert", h.RevertDuty)
		})

		// Calculation routes
		r.Route("/calculations/{year}/{month}", func(r chi.Router) {
			r.Get("/", h.GetCalculation)
			r.Post("/recalculate", h.Recalculate)
			r.Get("/export", h.ExportCalculation)
		})

		// Rate routes
		r.Route("/rates", func(r chi.Router) {
			r.Get("/", h.ListRates)
			r.Post("/", h.PublishRate)
		})
	})

	// Operations endpoints
	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
