package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/wpchill/sessypress/internal/config"
)

// SetupRoutes configures the HTTP surface: the webhook ingestion
// endpoint on its configured slug, the reporting read API, and a
// health check.
func SetupRoutes(h *Handlers, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", h.HealthCheck)

	// SNS posts directly; no CORS needed on the webhook path.
	r.Post("/webhook/"+cfg.Webhook.EndpointSlug, h.HandleWebhook)

	r.Route("/api", func(r chi.Router) {
		origins := cfg.API.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"http://localhost:5173"}
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))

		r.Get("/events", h.ListEvents)
		r.Get("/events/summary", h.EventsSummary)
	})

	return r
}
