// Package httpapi provides the HTTP surface: chi router, middleware
// (request id, logging, auth, rate limiting), and handlers for the
// agents, tasks, and history APIs.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/agentgate/agentgate/adapters/metrics"
	"github.com/agentgate/agentgate/app"
	"github.com/agentgate/agentgate/ports"
)

// Deps holds everything the HTTP handlers need.
type Deps struct {
	AuthEnabled bool
	KeyPrefix   string

	Keys      ports.KeyStore
	Limiter   *app.RateLimitService
	Tasks     *app.TaskManager
	Chat      *app.ChatService
	Research  *app.ResearchService
	Providers *app.ProviderManager
	Recorder  *app.UsageRecorder
	History   ports.HistoryStore
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Metrics   *metrics.Collector
	Logger    zerolog.Logger
}

// Handler serves the AgentGate HTTP API.
type Handler struct {
	deps Deps
}

// New creates the API handler.
func New(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// Router builds the chi router with the full middleware chain. Order:
// request id, logging (with request-history recording), recoverer,
// then per-group auth and rate limiting.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(h.requestIDMiddleware)
	r.Use(chimiddleware.RealIP)
	r.Use(h.loggingMiddleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(10 * time.Minute))
	if h.deps.Metrics != nil {
		r.Use(h.metricsMiddleware)
	}

	// Unauthenticated endpoints.
	r.Get("/health", h.handleHealth)
	r.Get("/health/providers", h.handleProvidersHealth)
	if h.deps.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Authenticated, rate limited endpoints grouped by agent scope.
	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.With(h.rateLimitMiddleware(scopeChat)).Post("/chat", h.handleChat)
		r.With(h.rateLimitMiddleware(scopeResearch)).Post("/agents/research", h.handleResearch)

		r.Route("/tasks", func(r chi.Router) {
			r.Use(h.rateLimitMiddleware(scopeTasks))
			r.Post("/", h.handleSubmitTask)
			r.Get("/", h.handleListTasks)
			r.Get("/{taskID}", h.handleGetTask)
			r.Get("/{taskID}/result", h.handleTaskResult)
			r.Delete("/{taskID}", h.handleCancelTask)
		})

		r.Route("/history", func(r chi.Router) {
			r.Use(h.rateLimitMiddleware(scopeHistory))
			r.Get("/requests", h.handleHistoryRequests)
			r.Get("/executions", h.handleHistoryExecutions)
			r.Get("/stats", h.handleHistoryStats)
		})
	})

	return r
}

// Rate limit agent scopes, one per route group.
const (
	scopeChat     = "chat"
	scopeResearch = "research"
	scopeTasks    = "tasks"
	scopeHistory  = "history"
)

// metricsMiddleware records request counts and latency, skipping the
// operational endpoints.
func (h *Handler) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		m := h.deps.Metrics
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := metrics.NormalizePath(r.URL.Path)
		status := statusLabel(ww.Status())
		m.RequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.RequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

// statusLabel returns a string label for the status code.
func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
