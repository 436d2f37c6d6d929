package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/jsvoboda/faceguard/internal/web/handlers"
	"github.com/jsvoboda/faceguard/internal/web/middleware"
)

func (s *Server) setupRoutes(deps Deps) {
	// Create handlers
	identitiesHandler := handlers.NewIdentitiesHandler(deps.Identities, deps.Store, deps.Vision)
	matchHandler := handlers.NewMatchHandler(deps.Store, deps.Vision)
	livenessHandler := handlers.NewLivenessHandler(deps.Registry, deps.Store, deps.Vision, deps.Anomalies)
	classifyHandler := handlers.NewClassifyHandler(deps.Anomalies)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAPIKey(s.config.Web.APIKey))

			// Identities
			r.Post("/identities", identitiesHandler.Enroll)
			r.Get("/identities", identitiesHandler.List)
			r.Delete("/identities/{id}", identitiesHandler.Delete)
			r.Post("/identities/reload", identitiesHandler.Reload)

			// Matching
			r.Post("/match", matchHandler.Match)

			// Liveness sessions
			r.Post("/liveness/{session}/frames", livenessHandler.Frame)
			r.Delete("/liveness/{session}", livenessHandler.Reset)

			// Anomalies
			r.Post("/classify", classifyHandler.Classify)
			r.Get("/anomalies", classifyHandler.Recent)
		})
	})
}
