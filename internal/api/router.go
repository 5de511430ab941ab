package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))

		r.Get("/homes", s.handleListHomes)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/state", s.handleGetDeviceState)
				r.Post("/commands", s.handleCommand)
				r.Put("/sensor-mode", s.handleSetSensorMode)
				r.Put("/model", s.handleConvertModel)
				r.Get("/firmware", s.handleFirmware)
				r.Post("/reset", s.handleReset)
			})
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.engine.Stats()
	resp := map[string]any{
		"status":     "ok",
		"version":    s.version,
		"discovered": stats.Discovered,
		"devices":    stats.Devices,
	}
	if s.channel != nil {
		resp["realtime"] = s.channel.Stats().State
	}
	writeJSON(w, http.StatusOK, resp)
}
