package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the HTTP router. No auth middleware is
// wired: the spec's explicit "no authentication" Non-goal means every
// route here is open, unlike the building-automation reference this is
// patterned on.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health/live", s.handleHealthLive)
	r.Get("/health/ready", s.handleHealthReady)

	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics)
	}

	wsPath := s.deps.WSConfig.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.Get(wsPath, s.deps.Hub.ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scenes/{id}/activate", s.handleActivateScene)
		r.Post("/scenes/cycle", s.handleCycleScenes)
		r.Post("/devices/dim", s.handleDim)
		r.Post("/devices/{integration}/{device}/state", s.handleSetDeviceState)
		r.Post("/devices/{integration}/{device}/override", s.handleToggleOverride)
		r.Post("/routines/{id}/trigger", s.handleForceTriggerRoutine)
		r.Post("/integrations/{id}/action", s.handleCustomAction)
		r.Post("/expr/eval", s.handleEvalExpr)
		r.Put("/ui/{key}", s.handleUIAction)
	})

	return r
}
