/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logging:    logrus entry per request (logging.Middleware)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/accounts/*            Accounts, operations and per-account reports
  /api/planned-operations/*  Planned operation CRUD and split
  /api/budgets/*             Budget CRUD and split
  /api/links/*               Link listing and removal
  /api/runs, /api/actualize  Scheduled actualization
  /api/scenarios/*           Demo data for an empty database

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - scenarios.go: Demo scenario loaders
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"github.com/warp/budget-forecaster/core"
	"github.com/warp/budget-forecaster/logging"
)

// NewRouter creates a new router with all routes configured. An empty
// origins list disables CORS.
func NewRouter(h *Handler, logger logrus.FieldLogger, origins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(logger))
	r.Use(middleware.Recoverer)
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
		}))
	}

	r.Route("/api", func(r chi.Router) {
		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", h.GetAccount)
				r.Put("/balance", h.UpdateBalance)
				r.Post("/operations", h.CreateOperation)
				r.Put("/operations/{id}", h.UpdateOperation)
				r.Get("/operations/{id}/candidates", h.GetCandidates)
				r.Post("/categorize", h.Categorize)

				r.Get("/forecast", h.GetActualizedForecast)
				r.Get("/projection", h.GetProjection)
				r.Get("/balance-evolution", h.GetBalanceEvolution)
				r.Get("/summary", h.GetSummary)
				r.Get("/late", h.GetLateOccurrences)
				r.Get("/anticipated", h.GetAnticipatedOccurrences)

				r.Post("/links", h.CreateManualLink)
				r.Post("/links/refresh", h.RefreshLinks)
			})
		})

		// Range routes
		rangeRoutes := func(kind core.RangeKind) func(chi.Router) {
			return func(r chi.Router) {
				r.Get("/", h.ListRanges(kind))
				r.Post("/", h.CreateRange(kind))
				r.Get("/{id}", h.GetRange(kind))
				r.Put("/{id}", h.UpdateRange(kind))
				r.Delete("/{id}", h.DeleteRange(kind))
				r.Post("/{id}/split", h.SplitRange(kind))
			}
		}
		r.Route("/planned-operations", rangeRoutes(core.KindPlannedOperation))
		r.Route("/budgets", rangeRoutes(core.KindBudget))

		// Link routes
		r.Route("/links", func(r chi.Router) {
			r.Get("/", h.ListLinks)
			r.Delete("/{operation_id}", h.DeleteLink)
		})

		// Actualization routes
		r.Get("/runs", h.ListRuns)
		r.Post("/actualize", h.TriggerActualization)

		// Scenario routes
		r.Get("/scenarios", h.ListScenarios)
		r.Post("/scenarios/load", h.LoadScenario)
	})

	return r
}
