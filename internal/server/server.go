// Package server wires the HTTP listener: middleware, the proxy catch-all
// that hands every request to the Router, the read-only introspection API,
// Prometheus metrics, and a liveness probe.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/inferencegate/inferencegate/internal/api"
	"github.com/inferencegate/inferencegate/internal/config"
	"github.com/inferencegate/inferencegate/internal/metrics"
	"github.com/inferencegate/inferencegate/internal/router"
	"github.com/inferencegate/inferencegate/internal/store"
)

// Server holds the chi router and every dependency its handlers read from.
type Server struct {
	httpRouter chi.Router
	cfg        *config.Config
	gate       *router.Router
	metrics    *metrics.Metrics
}

// New builds a Server, wires routes and middleware, and returns it ready to
// use as an http.Handler.
func New(cfg *config.Config, gate *router.Router, s *store.Store) *Server {
	m, metricsHandler := metrics.New()

	srv := &Server{cfg: cfg, gate: gate, metrics: m}
	srv.routes(s, metricsHandler)
	return srv
}

// routes builds the chi router with all middleware and route definitions.
func (s *Server) routes(store *store.Store, metricsHandler http.Handler) {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(correlationID)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metricsHandler)
	r.Mount("/api", api.New(&api.API{Store: store, Config: s.cfg, Mode: s.gate.Mode}))

	// Every other method/path is the proxy surface — no method allow-list,
	// the gate fingerprints and caches whatever arrives.
	r.HandleFunc("/*", s.handleProxy)

	s.httpRouter = r
}

// correlationID stamps every response with an X-Request-Id the client can
// quote back when reporting an issue, independent of the cache
// fingerprint id — the request's own X-Request-Id when it carries one,
// otherwise a fresh UUIDv4.
func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			w.Header().Set("X-Request-Id", uuid.NewString())
		} else {
			w.Header().Set("X-Request-Id", r.Header.Get("X-Request-Id"))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.gate.Handle(rec, r)
	s.metrics.Observe(outcomeFromHeader(rec), time.Since(started).Seconds())
}

func outcomeFromHeader(rec *statusRecorder) string {
	if outcome := rec.Header().Get("X-InferenceGate-Outcome"); outcome != "" {
		return outcome
	}
	return "unknown"
}

// statusRecorder captures the status code the gate wrote, without altering
// response behavior — it only observes, passing every call through.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// ServeHTTP makes Server satisfy http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpRouter.ServeHTTP(w, r)
}
