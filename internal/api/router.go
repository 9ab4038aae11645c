package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds settings for the API router.
type RouterConfig struct {
	// BackendAPIKey must be provided in X-API-Key or Authorization: Bearer <key>.
	// If empty, /v1 is served without auth.
	BackendAPIKey string

	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*".
	CorsAllowedOrigins string
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   parseOrigins(cfg.CorsAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/v1", func(r chi.Router) {
		if cfg.BackendAPIKey != "" {
			r.Use(APIKeyAuth(cfg.BackendAPIKey))
		}

		// Generation
		r.Post("/generate", h.Generate)
		r.Get("/jobs", h.ListJobs)
		r.Get("/jobs/{id}", h.GetJob)

		// Clips
		r.Get("/clips", h.ListClips)
		r.Get("/audio/habit/{habitType}/{habitId}", h.StreamHabitAudio)

		// Narrators
		r.Get("/narrators", h.ListNarrators)
		r.Post("/narrators", h.CreateNarrator)
		r.Get("/narrators/{id}", h.GetNarrator)
		r.Put("/narrators/{id}", h.UpdateNarrator)
		r.Delete("/narrators/{id}", h.DeleteNarrator)
		r.Post("/narrators/{id}/default", h.SetDefaultNarrator)
		r.Post("/narrators/{id}/generate", h.GenerateWithNarrator)

		// Reference samples
		r.Get("/narrator-samples", h.ListSamples)
		r.Post("/narrator-samples", h.UploadSample)
		r.Delete("/narrator-samples/{id}", h.DeleteSample)
	})

	return r
}

func parseOrigins(raw string) []string {
	trimmed := make([]string, 0)
	for _, o := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(o); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	if len(trimmed) == 0 {
		return []string{"*"}
	}
	return trimmed
}
