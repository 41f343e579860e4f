package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes builds the router. runLimitRPM throttles the run endpoints only.
func (h *Handler) Routes(m *Middleware, metricsHandler http.Handler, corsOrigins []string, runLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.NoStore)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(m.CORS(corsOrigins))

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		// Long-lived stream; must not sit behind the timeout or compression writers
		r.Get("/events", h.HandleSSE)

		runLimit := m.RunLimit(runLimitRPM)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5, "application/json"))
			r.Use(m.Timeout(60 * time.Second))

			r.Get("/scenarios", h.ListScenarios)
			r.Get("/runs", h.ListRuns)

			r.With(runLimit).Post("/scenarios/{name}/run", h.RunScenario)
			r.With(runLimit).Post("/runs", h.RunScenarios)
		})
	})

	return r
}
