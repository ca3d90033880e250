/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request-scoped slog logger, one line per request
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend
  5. Auth:       Bearer token → budget.Actor (everything except health
                 and scenarios)

ROUTE GROUPS:
  /api/health           Liveness
  /api/centers/*        Center directory and template suggestions
  /api/budgets/*        Budget lifecycle
  /api/scenarios/*      Demo data (only when Options.EnableScenarios)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token parsing
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/paa-engine/log"
)

// Options controls router behaviour that differs between deployments.
type Options struct {
	AllowedOrigins  []string
	EnableScenarios bool
	Logger          *log.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth *Authenticator, opts Options) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(log.Middleware(logger.WithComponent(log.ComponentHTTP)))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		if opts.EnableScenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)

			r.Route("/centers", func(r chi.Router) {
				r.Get("/", h.ListCenters)
				r.Post("/", h.CreateCenter)
				r.Get("/{id}", h.GetCenter)
				r.Get("/{id}/activity-templates", h.SuggestTemplates)
			})

			r.Route("/budgets", func(r chi.Router) {
				r.Get("/", h.ListBudgets)
				r.Post("/", h.CreateBudget)
				r.Post("/preview", h.PreviewBudget)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.GetBudget)
					r.Put("/", h.UpdateBudget)
					r.Delete("/", h.DeleteBudget)
					r.Get("/summary", h.GetSummary)
					r.Post("/lines", h.AddExpenseLine)
					r.Delete("/lines/{lineID}", h.RemoveExpenseLine)
					r.Post("/submit", h.SubmitBudget)
					r.Post("/validate", h.ValidateBudget)
					r.Post("/reject", h.RejectBudget)
				})
			})
		})
	})

	return r
}
