package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthCheckTimeout bounds each dependency check of /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// WebSocket auth is the ticket, validated in the handler.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/supervisor", func(r chi.Router) {
				r.Get("/", s.handleGetState)
				r.Post("/start", s.handleStart)
				r.Post("/stop", s.handleStop)
				r.Post("/wakeup", s.handleWakeup)
				r.Post("/command", s.handleCommand)
			})

			r.Route("/items", func(r chi.Router) {
				r.Get("/", s.handleListItems)
				r.Route("/{name}", func(r chi.Router) {
					r.Get("/", s.handleGetItem)
					r.Post("/activate", s.handleActivateItem)
					r.Post("/deactivate", s.handleDeactivateItem)
					r.Post("/run", s.handleRunItem)
				})
			})

			r.Get("/can-open", s.handleCanOpen)
			r.Route("/instruments", func(r chi.Router) {
				r.Get("/", s.handleListInstruments)
				r.Route("/{name}", func(r chi.Router) {
					r.Get("/", s.handleGetInstrument)
					r.Put("/flag", s.handleSetFlag)
					r.Post("/lock", s.handleLock)
					r.Post("/unlock", s.handleUnlock)
					r.Get("/can-open", s.handleCanOpen)
				})
			})

			r.Route("/questions", func(r chi.Router) {
				r.Get("/", s.handleListQuestions)
				r.Post("/answer", s.handleAnswer)
				r.Post("/{id}/answer", s.handleAnswer)
			})
		})
	})

	return r
}

// handleHealth reports the server and its dependencies. Any failing
// dependency turns the response into 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.health[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	body := map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"machine":        s.sup.State().String(),
		"ws_clients":     s.hub.ClientCount(),
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}
	writeJSON(w, status, body)
}
