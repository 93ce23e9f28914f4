// Package api exposes the HTTP interface for the crawler service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/arxiv-crawler/internal/crawler"
)

// CrawlController is the scheduler surface the API drives.
type CrawlController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Running() bool
	Summary(ctx context.Context) (crawler.Summary, error)
}

// PaperReader is the read-only paper surface the API serves.
type PaperReader interface {
	GetByArxivID(ctx context.Context, arxivID string) (crawler.Paper, error)
	List(ctx context.Context, category string, limit, offset int) ([]crawler.Paper, error)
}

// ReadinessChecker reports whether the durability layer is reachable.
type ReadinessChecker interface {
	LoadCursor(ctx context.Context) (crawler.Cursor, error)
}

// Server wires HTTP handlers to the scheduler and stores.
type Server struct {
	router chi.Router
	crawl  CrawlController
	papers PaperReader
	ready  ReadinessChecker
	logger *zap.Logger

	// runCtx bounds background crawls to the process lifetime rather than
	// the triggering request.
	runCtx context.Context
}

// NewServer constructs a Server with middleware and routes. runCtx is the
// application context handed to background crawls started over HTTP.
func NewServer(
	runCtx context.Context,
	crawl CrawlController,
	papers PaperReader,
	ready ReadinessChecker,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		crawl:  crawl,
		papers: papers,
		ready:  ready,
		logger: logger,
		runCtx: runCtx,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/crawler", func(r chi.Router) {
			r.Post("/start", s.startCrawl)
			r.Post("/stop", s.stopCrawl)
			r.Get("/status", s.crawlStatus)
			r.Get("/progress", s.crawlProgress)
		})
		r.Route("/papers", func(r chi.Router) {
			r.Get("/", s.listPapers)
			r.Get("/{arxiv_id}", s.getPaper)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if _, err := s.ready.LoadCursor(r.Context()); err != nil && !errors.Is(err, crawler.ErrNotFound) {
			writeError(w, http.StatusServiceUnavailable, "progress store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
