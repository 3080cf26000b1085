/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests from the admin console

ROUTE GROUPS:
  /api/domains              Registered domains
  /api/janitor/*            Stale staging purges
  /api/scenarios/*          Demo scenarios
  /api/{domain}/*           Staging, production, promotions

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultOrigins are allowed when no CORS origins are configured.
var DefaultOrigins = []string{"http://localhost:5173", "http://localhost:3000"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, origins ...string) *chi.Mux {
	if len(origins) == 0 {
		origins = DefaultOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/domains", h.ListDomains)
		r.Get("/janitor/runs", h.ListPurgeRuns)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})

		// Collection routes
		r.Route("/{domain}", func(r chi.Router) {
			r.Route("/staging", func(r chi.Router) {
				r.Get("/", h.GetStaging)
				r.Post("/", h.SaveStaging)
				r.Delete("/", h.DeleteStaging)
				r.Delete("/{id}", h.DeleteStaging)
			})
			r.Get("/production", h.GetProduction)
			r.Post("/production", h.Promote)
			r.Get("/promotions", h.ListPromotions)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
