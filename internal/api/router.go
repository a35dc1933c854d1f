package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - user must be logged in to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleCreateDevice)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Patch("/", s.handleUpdateDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Get("/queue", s.handleDeviceQueueStatus)
					r.Post("/session", s.handleBeginSession)
					r.Delete("/session", s.handleEndSession)
				})
			})

			// Scenario endpoints
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", s.handleListScenarios)
				r.Post("/", s.handleCreateScenario)
				r.Post("/import", s.handleImportScenario)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetScenario)
					r.Put("/", s.handleUpdateScenario)
					r.Delete("/", s.handleDeleteScenario)
				})
			})

			// Execution endpoints
			r.Route("/executions", func(r chi.Router) {
				r.Post("/", s.handleSubmitExecution)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetExecution)
					r.Post("/cancel", s.handleCancelExecution)
				})
			})

			// Unit endpoints
			r.Route("/units/{id}", func(r chi.Router) {
				r.Post("/cancel", s.handleCancelUnit)
				r.Post("/force-complete", s.handleForceCompleteUnit)
			})

			// Queue inspection
			r.Get("/queue", s.handleQueueSnapshot)

			// Execution reports
			r.Route("/reports", func(r chi.Router) {
				r.Get("/", s.handleListReports)
				r.Get("/{id}", s.handleGetReport)
			})

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
