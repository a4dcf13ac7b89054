// Package webhook is the HTTP boundary: it authenticates GitHub push
// deliveries and hands them to the job supervisor.
package webhook

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter serves GET /ping and POST /push under baseURL.
func NewRouter(baseURL string, push http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	routes := chi.NewRouter()
	routes.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, "pong")
	})
	routes.Method(http.MethodPost, "/push", push)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(logger))

	base := "/" + strings.Trim(baseURL, "/")
	if base == "/" {
		r.Mount("/", routes)
	} else {
		r.Mount(base, routes)
	}
	return r
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.status,
				"duration", time.Since(start).String(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}
