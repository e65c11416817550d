// Package server exposes a read-only HTTP view of persisted sessions,
// predictions and traces, plus health and Prometheus endpoints.
package server

import (
	"net/http"
	"time"

	"github.com/abhisek/tutorloop/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config holds server-specific configuration.
type Config struct {
	Addr string

	// DefaultTraceLimit caps trace listings without an explicit limit.
	DefaultTraceLimit int
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:              "127.0.0.1:8080",
		DefaultTraceLimit: 500,
	}
}

// Repos groups the stores the server reads from.
type Repos struct {
	Sessions    store.SessionRepo
	Predictions store.PredictionRepo
	Traces      store.TraceRepo
}

// NewHTTPServer builds the status server.
func NewHTTPServer(cfg Config, repos Repos, log *zap.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg, repos, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewRouter returns the routes without binding a listener.
func NewRouter(cfg Config, repos Repos, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DefaultTraceLimit <= 0 {
		cfg.DefaultTraceLimit = DefaultConfig().DefaultTraceLimit
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	h := &handler{repos: repos, log: log, traceLimit: cfg.DefaultTraceLimit}
	r.Route("/api", func(r chi.Router) {
		r.Get("/predictions", h.predictions)
		r.Get("/sessions", h.listSessions)
		r.Get("/sessions/{student}/{topic}", h.showSession)
		r.Get("/traces/{student}", h.traces)
	})

	return r
}

// requestLogger logs one line per request at debug level.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
